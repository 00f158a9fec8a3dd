package models

import "time"

// DeliveryRefs carries the messaging-transport references needed to
// (re-)deliver a piece of gated content to its payer.
type DeliveryRefs struct {
	ChatID    int64  `json:"chat_id,omitempty"`
	FileID    string `json:"file_id,omitempty"`
	ChannelID int64  `json:"channel_id,omitempty"`
}

// Merge fills absent fields from other without overwriting populated ones.
// It reports whether anything changed.
func (d *DeliveryRefs) Merge(other DeliveryRefs) bool {
	changed := false
	if d.ChatID == 0 && other.ChatID != 0 {
		d.ChatID = other.ChatID
		changed = true
	}
	if d.FileID == "" && other.FileID != "" {
		d.FileID = other.FileID
		changed = true
	}
	if d.ChannelID == 0 && other.ChannelID != 0 {
		d.ChannelID = other.ChannelID
		changed = true
	}
	return changed
}

// PendingRoyalty is an open debt owed by a payer to an uploader for one
// unlock event. Records are never deleted; the paid and claimed flags only
// move forward.
type PendingRoyalty struct {
	ID                  string       `json:"id"`
	PayerID             int64        `json:"payer_id"`
	ContentID           string       `json:"content_id"`
	TokenInstanceID     string       `json:"token_instance_id,omitempty"`
	Title               string       `json:"title"`
	Amount              string       `json:"amount"`
	UploaderID          int64        `json:"uploader_id"`
	UploaderDisplayName string       `json:"uploader_display_name,omitempty"`
	Delivery            DeliveryRefs `json:"delivery,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
	ExpiresAt           time.Time    `json:"expires_at"`
	Paid                bool         `json:"paid"`
	PaidAt              *time.Time   `json:"paid_at,omitempty"`
	PaymentRef          string       `json:"payment_ref,omitempty"`
	Claimed             bool         `json:"claimed"`
	ClaimedAt           *time.Time   `json:"claimed_at,omitempty"`
	ClaimFailed         bool         `json:"claim_failed,omitempty"`
}

// Expired reports whether the payment window has closed at the given instant.
func (p *PendingRoyalty) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// Content is one registered IP asset as known to this service. The catalog
// is the upstream source for pricing and uploader identity during unlocks.
type Content struct {
	ID                string       `json:"id"`
	Title             string       `json:"title"`
	Amount            string       `json:"amount"`
	UploaderID        int64        `json:"uploader_id"`
	UploaderName      string       `json:"uploader_name,omitempty"`
	TokenInstanceID   string       `json:"token_instance_id,omitempty"`
	CompanionImageURI string       `json:"companion_image_uri,omitempty"`
	Delivery          DeliveryRefs `json:"delivery,omitempty"`
}

// CreateRoyaltyParams is the input to idempotent debt creation.
type CreateRoyaltyParams struct {
	PayerID             int64
	ContentID           string
	TokenInstanceID     string
	Title               string
	Amount              string
	UploaderID          int64
	UploaderDisplayName string
	Delivery            DeliveryRefs
}

// WalletBinding records the identifier/address pair persisted when a user
// links an external wallet. Payment reconciliation consults the binding
// before falling back to a brute-force address search.
type WalletBinding struct {
	UserID   int64     `json:"user_id"`
	Address  string    `json:"address"`
	LinkedAt time.Time `json:"linked_at"`
}

// PuzzleCompletion is the telemetry record written after a solved puzzle.
type PuzzleCompletion struct {
	SessionID   string    `json:"session_id"`
	PayerID     int64     `json:"payer_id"`
	ContentID   string    `json:"content_id"`
	Pieces      int       `json:"pieces"`
	CompletedAt time.Time `json:"completed_at"`
}

// UnlockRequest is the payload submitted after a puzzle attempt.
type UnlockRequest struct {
	PayerID   int64    `json:"payer_id"`
	SessionID string   `json:"session_id"`
	Sequence  []string `json:"sequence"`
	ContentID string   `json:"content_id"`
}

// UnlockResult reports the outcome of an unlock attempt. DerivativeIPID is
// empty when derivative registration failed; VideoForwarded is false when
// delivery failed, in which case no debt was created for the attempt.
type UnlockResult struct {
	Granted        bool            `json:"granted"`
	Reason         string          `json:"reason,omitempty"`
	PendingCount   int             `json:"pending_count,omitempty"`
	DerivativeIPID string          `json:"derivative_ip_id,omitempty"`
	VideoForwarded bool            `json:"video_forwarded"`
	MessageRef     string          `json:"message_ref,omitempty"`
	Royalty        *PendingRoyalty `json:"royalty,omitempty"`
}

// PayRequest is the payload for settling a pending royalty.
type PayRequest struct {
	PayerAddress string `json:"payer_address"`
	PayerID      int64  `json:"payer_id"`
}

// PayResult is returned on successful settlement.
type PayResult struct {
	TxRef         string `json:"tx_ref"`
	BalanceBefore string `json:"payer_balance_before"`
	BalanceAfter  string `json:"payer_balance_after"`
	Redelivered   bool   `json:"redelivered"`
}

// ContentClaim summarises one per-content claim attempt.
type ContentClaim struct {
	ContentID string `json:"content_id"`
	Count     int    `json:"count"`
	Amount    string `json:"amount"`
	Claimed   bool   `json:"claimed"`
	Error     string `json:"error,omitempty"`
}

// ClaimResult aggregates an uploader's claim run.
type ClaimResult struct {
	ClaimedCount int            `json:"claimed_count"`
	TotalAmount  string         `json:"total_amount"`
	PerContent   []ContentClaim `json:"per_content"`
}
