package service

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/manudev97/first-frame-sub000/internal/models"
	"github.com/manudev97/first-frame-sub000/internal/wallet"
)

// openDebt unlocks ip-1 for payer 42 and returns the created royalty.
func openDebt(t *testing.T, f *fixture) *models.PendingRoyalty {
	t.Helper()
	result, err := f.svc.AttemptUnlock(context.Background(), f.solveFor(42, "ip-1"))
	require.NoError(t, err)
	require.NotNil(t, result.Royalty)
	return result.Royalty
}

func TestPayRoyaltySettles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	royalty := openDebt(t, f)
	f.transport.sends = nil

	result, err := f.svc.PayRoyalty(ctx, royalty.ID, wallet.DeriveAddress(42), 42)
	require.NoError(t, err)
	require.Equal(t, "0xfeedface", result.TxRef)
	require.Equal(t, "10", result.BalanceBefore)
	require.Equal(t, "9.9", result.BalanceAfter)
	require.True(t, result.Redelivered)

	updated, err := f.ledger.Get(ctx, royalty.ID)
	require.NoError(t, err)
	require.True(t, updated.Paid)
	require.Equal(t, "0xfeedface", updated.PaymentRef)

	unpaid, err := f.ledger.ListUnpaidByPayer(ctx, 42)
	require.NoError(t, err)
	require.Empty(t, unpaid)

	// Redelivery after settlement must not carry the protection flag.
	require.Len(t, f.transport.sends, 1)
	require.False(t, f.transport.sends[0].Protect)

	// The payment went to the uploader's derived address amount.
	require.Len(t, f.chain.paidAmounts, 1)
	require.Equal(t, mustBase("0.1"), f.chain.paidAmounts[0])
}

func TestPayRoyaltyNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.PayRoyalty(context.Background(), "missing", wallet.DeriveAddress(42), 42)
	require.ErrorIs(t, err, ErrRoyaltyNotFound)
}

func TestPayRoyaltyAlreadyPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	royalty := openDebt(t, f)

	_, err := f.svc.PayRoyalty(ctx, royalty.ID, wallet.DeriveAddress(42), 42)
	require.NoError(t, err)

	_, err = f.svc.PayRoyalty(ctx, royalty.ID, wallet.DeriveAddress(42), 42)
	require.ErrorIs(t, err, ErrRoyaltyNotFound)
}

func TestPayRoyaltyExpired(t *testing.T) {
	f := newFixture(t)
	royalty := openDebt(t, f)

	f.svc.SetNowFunc(func() time.Time { return royalty.ExpiresAt.Add(time.Minute) })
	_, err := f.svc.PayRoyalty(context.Background(), royalty.ID, wallet.DeriveAddress(42), 42)
	require.ErrorIs(t, err, ErrRoyaltyExpired)

	// The record is left untouched.
	stored, getErr := f.ledger.Get(context.Background(), royalty.ID)
	require.NoError(t, getErr)
	require.False(t, stored.Paid)
}

func TestPayRoyaltyWalletMismatch(t *testing.T) {
	f := newFixture(t)
	royalty := openDebt(t, f)

	_, err := f.svc.PayRoyalty(context.Background(), royalty.ID,
		"0x0000000000000000000000000000000000000001", 42)
	require.ErrorIs(t, err, ErrWalletMismatch)
}

func TestPayRoyaltyRecoversIdentifierBySearch(t *testing.T) {
	f := newFixture(t)
	royalty := openDebt(t, f)

	// The caller's hint is off by 50; the claimed address belongs to 42.
	_, err := f.svc.PayRoyalty(context.Background(), royalty.ID, wallet.DeriveAddress(42), 92)
	require.NoError(t, err)
}

func TestPayRoyaltyUsesBinding(t *testing.T) {
	f := newFixture(t)
	royalty := openDebt(t, f)

	// An externally derived address that our own derivation never yields.
	externalAddr := "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	f.bindings.byAddress[externalAddr] = 42

	_, err := f.svc.PayRoyalty(context.Background(), royalty.ID, externalAddr, 42)
	require.NoError(t, err)
}

func TestPayRoyaltyInsufficientToken(t *testing.T) {
	f := newFixture(t)
	royalty := openDebt(t, f)
	f.chain.tokenBalance = mustBase("0.05")

	_, err := f.svc.PayRoyalty(context.Background(), royalty.ID, wallet.DeriveAddress(42), 42)
	require.ErrorIs(t, err, ErrInsufficientToken)

	var balErr *BalanceError
	require.ErrorAs(t, err, &balErr)
	require.Equal(t, mustBase("0.1"), balErr.Required)
	require.Equal(t, "https://faucet.example/", balErr.Hint)
}

func TestPayRoyaltyInsufficientGas(t *testing.T) {
	f := newFixture(t)
	royalty := openDebt(t, f)
	f.chain.gasBalance = big.NewInt(1)

	_, err := f.svc.PayRoyalty(context.Background(), royalty.ID, wallet.DeriveAddress(42), 42)
	require.ErrorIs(t, err, ErrInsufficientGas)
}

func TestPayRoyaltyApprovalRequired(t *testing.T) {
	f := newFixture(t)
	royalty := openDebt(t, f)
	f.chain.allowance = mustBase("0.01")

	_, err := f.svc.PayRoyalty(context.Background(), royalty.ID, wallet.DeriveAddress(42), 42)
	require.ErrorIs(t, err, ErrApprovalRequired)
}

func TestPayRoyaltySettlementTimeout(t *testing.T) {
	f := newFixture(t)
	royalty := openDebt(t, f)
	f.chain.settleErr = context.DeadlineExceeded

	_, err := f.svc.PayRoyalty(context.Background(), royalty.ID, wallet.DeriveAddress(42), 42)
	require.ErrorIs(t, err, ErrSettlementTimeout)

	// The record stays unpaid when settlement was not confirmed.
	stored, getErr := f.ledger.Get(context.Background(), royalty.ID)
	require.NoError(t, getErr)
	require.False(t, stored.Paid)
}

func TestPayRoyaltyExecutionFailureLeavesUnpaid(t *testing.T) {
	f := newFixture(t)
	royalty := openDebt(t, f)
	f.chain.payErr = errors.New("nonce too low")

	_, err := f.svc.PayRoyalty(context.Background(), royalty.ID, wallet.DeriveAddress(42), 42)
	require.ErrorIs(t, err, ErrChainUnavailable)

	stored, getErr := f.ledger.Get(context.Background(), royalty.ID)
	require.NoError(t, getErr)
	require.False(t, stored.Paid)
}

func TestPayRoyaltyRedeliveryFailureNonFatal(t *testing.T) {
	f := newFixture(t)
	royalty := openDebt(t, f)
	f.transport.sendErr = errors.New("chat deleted")

	result, err := f.svc.PayRoyalty(context.Background(), royalty.ID, wallet.DeriveAddress(42), 42)
	require.NoError(t, err)
	require.False(t, result.Redelivered)

	stored, getErr := f.ledger.Get(context.Background(), royalty.ID)
	require.NoError(t, getErr)
	require.True(t, stored.Paid)
}

func TestClaimRoyalties(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	royalty := openDebt(t, f)
	_, err := f.svc.PayRoyalty(ctx, royalty.ID, wallet.DeriveAddress(42), 42)
	require.NoError(t, err)

	result, err := f.svc.ClaimRoyalties(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, 1, result.ClaimedCount)
	require.Equal(t, "0.1", result.TotalAmount)
	require.Len(t, result.PerContent, 1)
	require.True(t, result.PerContent[0].Claimed)

	stored, err := f.ledger.Get(ctx, royalty.ID)
	require.NoError(t, err)
	require.True(t, stored.Claimed)
	require.NotNil(t, stored.ClaimedAt)

	// Nothing left to claim.
	again, err := f.svc.ClaimRoyalties(ctx, 7)
	require.NoError(t, err)
	require.Zero(t, again.ClaimedCount)
}

func TestClaimRoyaltiesExternalFailureKeepsRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	royalty := openDebt(t, f)
	_, err := f.svc.PayRoyalty(ctx, royalty.ID, wallet.DeriveAddress(42), 42)
	require.NoError(t, err)

	f.chain.claimErr = errors.New("escrow paused")
	result, err := f.svc.ClaimRoyalties(ctx, 7)
	require.NoError(t, err)
	require.Zero(t, result.ClaimedCount)
	require.Len(t, result.PerContent, 1)
	require.False(t, result.PerContent[0].Claimed)
	require.NotEmpty(t, result.PerContent[0].Error)

	// A failed external claim must not be marked claimed locally; the
	// record keeps a retry marker instead.
	stored, err := f.ledger.Get(ctx, royalty.ID)
	require.NoError(t, err)
	require.False(t, stored.Claimed)
	require.True(t, stored.ClaimFailed)

	// A later run with a healthy chain retries and succeeds.
	f.chain.claimErr = nil
	retry, err := f.svc.ClaimRoyalties(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, 1, retry.ClaimedCount)
}
