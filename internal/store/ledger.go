package store

import (
	"context"
	"errors"
	"time"

	"github.com/manudev97/first-frame-sub000/internal/models"
)

// RoyaltyTTL is the payment window granted at debt creation. It is computed
// once and never extended; expiry is enforced at payment initiation, not by
// the ledger itself.
const RoyaltyTTL = 24 * time.Hour

// ErrRoyaltyNotFound is returned when no record exists for the given id.
var ErrRoyaltyNotFound = errors.New("store: royalty not found")

// Ledger is the durable collection of pending-royalty records. Creation is
// idempotent over (payer, content) for unpaid records; records are never
// physically deleted.
type Ledger interface {
	// CreateOrGetPending returns the existing unpaid record for
	// (PayerID, ContentID) with delivery refs backfilled, or appends a new
	// one. The boolean reports whether a new record was created.
	CreateOrGetPending(ctx context.Context, params models.CreateRoyaltyParams) (*models.PendingRoyalty, bool, error)

	// Get returns a record by id or ErrRoyaltyNotFound.
	Get(ctx context.Context, id string) (*models.PendingRoyalty, error)

	// ListUnpaidByPayer returns every unpaid record for the payer across
	// all content. A non-empty result gates further unlocks.
	ListUnpaidByPayer(ctx context.Context, payerID int64) ([]models.PendingRoyalty, error)

	// MarkPaid sets paid, paidAt and the payment reference. It reports
	// false when the record does not exist and is not guarded by expiry.
	MarkPaid(ctx context.Context, id, paymentRef string) (bool, error)

	// ListClaimable returns paid, unclaimed records for the uploader.
	ListClaimable(ctx context.Context, uploaderID int64) ([]models.PendingRoyalty, error)

	// MarkClaimed finalises records whose external claim succeeded.
	MarkClaimed(ctx context.Context, ids []string) error

	// MarkClaimFailed flags records whose external claim failed so a later
	// run can retry them.
	MarkClaimFailed(ctx context.Context, ids []string) error

	Close() error
}
