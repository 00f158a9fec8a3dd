package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/manudev97/first-frame-sub000/internal/models"
)

func newTestLedger(t *testing.T) *SnapshotLedger {
	t.Helper()
	ledger, err := NewSnapshotLedger(filepath.Join(t.TempDir(), "royalties.json"))
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return ledger
}

func testParams() models.CreateRoyaltyParams {
	return models.CreateRoyaltyParams{
		PayerID:    42,
		ContentID:  "ip-1",
		Title:      "First Frame",
		Amount:     "0.1",
		UploaderID: 7,
		Delivery:   models.DeliveryRefs{ChatID: 42, FileID: "file-abc"},
	}
}

func TestCreateOrGetPendingIdempotent(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	first, created, err := ledger.CreateOrGetPending(ctx, testParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created {
		t.Fatal("first call should create")
	}
	if first.Paid {
		t.Fatal("new record must be unpaid")
	}
	if got := first.ExpiresAt.Sub(first.CreatedAt); got != RoyaltyTTL {
		t.Fatalf("ttl = %v, want %v", got, RoyaltyTTL)
	}

	second, created, err := ledger.CreateOrGetPending(ctx, testParams())
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if created {
		t.Fatal("second call must not create a duplicate")
	}
	if second.ID != first.ID {
		t.Fatalf("second id %s != first id %s", second.ID, first.ID)
	}

	unpaid, err := ledger.ListUnpaidByPayer(ctx, 42)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(unpaid) != 1 {
		t.Fatalf("unpaid count = %d, want 1", len(unpaid))
	}
}

func TestCreateOrGetPendingCaseInsensitiveContent(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	first, _, err := ledger.CreateOrGetPending(ctx, testParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	params := testParams()
	params.ContentID = "IP-1"
	second, created, err := ledger.CreateOrGetPending(ctx, params)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created || second.ID != first.ID {
		t.Fatalf("content id match must be case-insensitive")
	}
}

func TestCreateOrGetPendingBackfillsDelivery(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	params := testParams()
	params.Delivery = models.DeliveryRefs{ChatID: 42}
	if _, _, err := ledger.CreateOrGetPending(ctx, params); err != nil {
		t.Fatalf("create: %v", err)
	}

	params.Delivery = models.DeliveryRefs{ChatID: 99, FileID: "file-late"}
	record, _, err := ledger.CreateOrGetPending(ctx, params)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if record.Delivery.ChatID != 42 {
		t.Fatalf("populated chat id overwritten: %d", record.Delivery.ChatID)
	}
	if record.Delivery.FileID != "file-late" {
		t.Fatalf("missing file id not backfilled: %q", record.Delivery.FileID)
	}
}

func TestPaidRecordDoesNotBlockNewDebt(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	first, _, err := ledger.CreateOrGetPending(ctx, testParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ok, err := ledger.MarkPaid(ctx, first.ID, "0xtx"); err != nil || !ok {
		t.Fatalf("mark paid: ok=%v err=%v", ok, err)
	}

	second, created, err := ledger.CreateOrGetPending(ctx, testParams())
	if err != nil {
		t.Fatalf("create after paid: %v", err)
	}
	if !created || second.ID == first.ID {
		t.Fatal("paid record must not be reused for a new unlock")
	}
}

func TestMarkPaid(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	record, _, err := ledger.CreateOrGetPending(ctx, testParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	ok, err := ledger.MarkPaid(ctx, record.ID, "0xdeadbeef")
	if err != nil || !ok {
		t.Fatalf("mark paid: ok=%v err=%v", ok, err)
	}

	updated, err := ledger.Get(ctx, record.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !updated.Paid || updated.PaidAt == nil || updated.PaymentRef != "0xdeadbeef" {
		t.Fatalf("paid state not recorded: %+v", updated)
	}

	unpaid, err := ledger.ListUnpaidByPayer(ctx, 42)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(unpaid) != 0 {
		t.Fatalf("unpaid count after payment = %d, want 0", len(unpaid))
	}

	ok, err = ledger.MarkPaid(ctx, "missing-id", "0x1")
	if err != nil {
		t.Fatalf("mark paid missing: %v", err)
	}
	if ok {
		t.Fatal("marking an absent record must report false")
	}
}

func TestClaimLifecycle(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	record, _, err := ledger.CreateOrGetPending(ctx, testParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := ledger.MarkPaid(ctx, record.ID, "0xtx"); err != nil {
		t.Fatalf("mark paid: %v", err)
	}

	claimable, err := ledger.ListClaimable(ctx, 7)
	if err != nil {
		t.Fatalf("list claimable: %v", err)
	}
	if len(claimable) != 1 {
		t.Fatalf("claimable count = %d, want 1", len(claimable))
	}

	if err := ledger.MarkClaimFailed(ctx, []string{record.ID}); err != nil {
		t.Fatalf("mark claim failed: %v", err)
	}
	failed, err := ledger.Get(ctx, record.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if failed.Claimed || !failed.ClaimFailed {
		t.Fatalf("claim-failed marker not set: %+v", failed)
	}

	if err := ledger.MarkClaimed(ctx, []string{record.ID}); err != nil {
		t.Fatalf("mark claimed: %v", err)
	}
	claimed, err := ledger.Get(ctx, record.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !claimed.Claimed || claimed.ClaimedAt == nil || claimed.ClaimFailed {
		t.Fatalf("claimed state not recorded: %+v", claimed)
	}

	claimable, err = ledger.ListClaimable(ctx, 7)
	if err != nil {
		t.Fatalf("list claimable: %v", err)
	}
	if len(claimable) != 0 {
		t.Fatalf("claimable count after claim = %d, want 0", len(claimable))
	}
}

func TestSnapshotSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "royalties.json")
	ledger, err := NewSnapshotLedger(path)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	for i := 0; i < 5; i++ {
		params := testParams()
		params.ContentID = fmt.Sprintf("ip-%d", i)
		if _, _, err := ledger.CreateOrGetPending(context.Background(), params); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	reopened, err := NewSnapshotLedger(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	unpaid, err := reopened.ListUnpaidByPayer(context.Background(), 42)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(unpaid) != 5 {
		t.Fatalf("records after reopen = %d, want 5", len(unpaid))
	}
}

func TestInjectedClock(t *testing.T) {
	ledger := newTestLedger(t)
	frozen := time.Unix(1_700_000_000, 0).UTC()
	ledger.SetNowFunc(func() time.Time { return frozen })

	record, _, err := ledger.CreateOrGetPending(context.Background(), testParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !record.CreatedAt.Equal(frozen) {
		t.Fatalf("created at %v, want %v", record.CreatedAt, frozen)
	}
	if !record.ExpiresAt.Equal(frozen.Add(RoyaltyTTL)) {
		t.Fatalf("expires at %v, want %v", record.ExpiresAt, frozen.Add(RoyaltyTTL))
	}
}
