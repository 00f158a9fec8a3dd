package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/manudev97/first-frame-sub000/internal/models"
)

// SnapshotLedger keeps the whole royalty collection in one JSON file that is
// rewritten on every mutation. All read-modify-write cycles are serialized
// behind a single mutex so concurrent mutations cannot lose updates.
type SnapshotLedger struct {
	mu      sync.Mutex
	path    string
	records []models.PendingRoyalty
	nowFn   func() time.Time
	idFn    func() string
}

// NewSnapshotLedger opens (or creates) the snapshot file at path.
func NewSnapshotLedger(path string) (*SnapshotLedger, error) {
	l := &SnapshotLedger{
		path:  path,
		nowFn: time.Now,
		idFn:  func() string { return uuid.NewString() },
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read snapshot: %w", err)
		}
		return l, nil
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &l.records); err != nil {
			return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
		}
	}
	return l, nil
}

// SetNowFunc overrides the time source for deterministic testing.
func (l *SnapshotLedger) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	l.nowFn = now
}

// SetIDFunc overrides id generation for deterministic testing.
func (l *SnapshotLedger) SetIDFunc(idFn func() string) {
	if idFn == nil {
		idFn = func() string { return uuid.NewString() }
	}
	l.idFn = idFn
}

func (l *SnapshotLedger) Close() error { return nil }

// persist rewrites the whole collection. The write goes through a temp file
// and rename so a crash mid-write cannot leave a torn snapshot.
func (l *SnapshotLedger) persist() error {
	data, err := json.MarshalIndent(l.records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	tmp := l.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return os.Rename(tmp, l.path)
}

func (l *SnapshotLedger) CreateOrGetPending(_ context.Context, params models.CreateRoyaltyParams) (*models.PendingRoyalty, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.records {
		r := &l.records[i]
		if r.Paid || r.PayerID != params.PayerID || !strings.EqualFold(r.ContentID, params.ContentID) {
			continue
		}
		if r.Delivery.Merge(params.Delivery) {
			if err := l.persist(); err != nil {
				return nil, false, err
			}
		}
		clone := *r
		return &clone, false, nil
	}

	now := l.nowFn()
	record := models.PendingRoyalty{
		ID:                  l.idFn(),
		PayerID:             params.PayerID,
		ContentID:           params.ContentID,
		TokenInstanceID:     params.TokenInstanceID,
		Title:               params.Title,
		Amount:              params.Amount,
		UploaderID:          params.UploaderID,
		UploaderDisplayName: params.UploaderDisplayName,
		Delivery:            params.Delivery,
		CreatedAt:           now,
		ExpiresAt:           now.Add(RoyaltyTTL),
	}
	l.records = append(l.records, record)
	if err := l.persist(); err != nil {
		return nil, false, err
	}
	clone := record
	return &clone, true, nil
}

func (l *SnapshotLedger) Get(_ context.Context, id string) (*models.PendingRoyalty, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.records {
		if l.records[i].ID == id {
			clone := l.records[i]
			return &clone, nil
		}
	}
	return nil, ErrRoyaltyNotFound
}

func (l *SnapshotLedger) ListUnpaidByPayer(_ context.Context, payerID int64) ([]models.PendingRoyalty, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.PendingRoyalty
	for i := range l.records {
		if l.records[i].PayerID == payerID && !l.records[i].Paid {
			out = append(out, l.records[i])
		}
	}
	return out, nil
}

func (l *SnapshotLedger) MarkPaid(_ context.Context, id, paymentRef string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.records {
		if l.records[i].ID != id {
			continue
		}
		now := l.nowFn()
		l.records[i].Paid = true
		l.records[i].PaidAt = &now
		if paymentRef != "" {
			l.records[i].PaymentRef = paymentRef
		}
		if err := l.persist(); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

func (l *SnapshotLedger) ListClaimable(_ context.Context, uploaderID int64) ([]models.PendingRoyalty, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.PendingRoyalty
	for i := range l.records {
		r := &l.records[i]
		if r.UploaderID == uploaderID && r.Paid && !r.Claimed {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (l *SnapshotLedger) MarkClaimed(_ context.Context, ids []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.nowFn()
	changed := false
	for i := range l.records {
		if !containsID(ids, l.records[i].ID) {
			continue
		}
		l.records[i].Claimed = true
		l.records[i].ClaimedAt = &now
		l.records[i].ClaimFailed = false
		changed = true
	}
	if !changed {
		return nil
	}
	return l.persist()
}

func (l *SnapshotLedger) MarkClaimFailed(_ context.Context, ids []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	changed := false
	for i := range l.records {
		if !containsID(ids, l.records[i].ID) || l.records[i].Claimed {
			continue
		}
		l.records[i].ClaimFailed = true
		changed = true
	}
	if !changed {
		return nil
	}
	return l.persist()
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
