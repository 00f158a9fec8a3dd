package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/manudev97/first-frame-sub000/internal/chain"
	"github.com/manudev97/first-frame-sub000/internal/models"
	"github.com/manudev97/first-frame-sub000/internal/store"
	"github.com/manudev97/first-frame-sub000/internal/wallet"
)

// PayRoyalty settles one pending royalty. Preconditions run in order and the
// first failure wins; execution failures leave the record unpaid.
func (s *Service) PayRoyalty(ctx context.Context, royaltyID, claimedPayerAddress string, payerID int64) (*models.PayResult, error) {
	record, err := s.ledger.Get(ctx, royaltyID)
	if err != nil {
		if errors.Is(err, store.ErrRoyaltyNotFound) {
			return nil, ErrRoyaltyNotFound
		}
		return nil, fmt.Errorf("royalty lookup: %w", err)
	}
	if record.Paid {
		return nil, ErrRoyaltyNotFound
	}
	if record.Expired(s.nowFn()) {
		return nil, ErrRoyaltyExpired
	}

	receiver := s.uploaderAddress(ctx, record)

	if err := s.reconcilePayer(claimedPayerAddress, payerID); err != nil {
		return nil, err
	}

	required, err := chain.ToBaseUnits(record.Amount)
	if err != nil {
		return nil, fmt.Errorf("royalty amount: %w", err)
	}

	tokenBalance, err := s.chain.TokenBalance(ctx, claimedPayerAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChainUnavailable, err)
	}
	if tokenBalance.Cmp(required) < 0 {
		return nil, &BalanceError{Kind: ErrInsufficientToken, Required: required, Available: tokenBalance, Hint: s.faucetURL}
	}

	gasBalance, err := s.chain.GasBalance(ctx, claimedPayerAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChainUnavailable, err)
	}
	if gasBalance.Cmp(minGasWei) < 0 {
		return nil, &BalanceError{Kind: ErrInsufficientGas, Required: minGasWei, Available: gasBalance, Hint: s.faucetURL}
	}

	allowance, err := s.chain.Allowance(ctx, claimedPayerAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChainUnavailable, err)
	}
	if allowance.Cmp(required) < 0 {
		return nil, &BalanceError{Kind: ErrApprovalRequired, Required: required, Available: allowance,
			Hint: "approve the royalty contract for the required amount before retrying"}
	}

	txRef, err := s.chain.PayOnBehalf(ctx, claimedPayerAddress, receiver, record.ContentID, required)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChainUnavailable, err)
	}

	// A bounded settlement wait: past the budget the transaction may still
	// land on chain while the local record stays unpaid, so the caller
	// gets a distinct, pollable error instead of a generic failure.
	settleCtx, cancel := context.WithTimeout(ctx, s.settleTimeout)
	defer cancel()
	if err := s.chain.WaitForSettlement(settleCtx, txRef); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(settleCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: tx %s", ErrSettlementTimeout, txRef)
		}
		return nil, fmt.Errorf("%w: %v", ErrChainUnavailable, err)
	}

	if ok, err := s.ledger.MarkPaid(ctx, royaltyID, txRef); err != nil || !ok {
		// Money moved but the ledger update failed. Surface loudly; a
		// reconciliation sweep against the chain history settles this.
		s.logger.Error("settled payment not recorded", "royalty_id", royaltyID, "tx_ref", txRef, "err", err)
		if err == nil {
			err = store.ErrRoyaltyNotFound
		}
		return nil, fmt.Errorf("record settled payment %s: %w", txRef, err)
	}

	result := &models.PayResult{
		TxRef:         txRef,
		BalanceBefore: chain.FromBaseUnits(tokenBalance),
	}
	if after, err := s.chain.TokenBalance(ctx, claimedPayerAddress); err == nil {
		result.BalanceAfter = chain.FromBaseUnits(after)
	}

	// Redelivery without the protection flag: the debt is settled, the
	// payer may now keep and forward the file. Failure is non-fatal.
	if record.Delivery.FileID != "" {
		chatID := record.Delivery.ChatID
		if chatID == 0 {
			chatID = record.PayerID
		}
		if _, err := s.transport.SendFile(ctx, chatID, record.Delivery.FileID, record.Title, false); err != nil {
			s.logger.Warn("unprotected redelivery failed", "royalty_id", royaltyID, "err", err)
		} else {
			result.Redelivered = true
		}
	}
	return result, nil
}

// uploaderAddress resolves the receiving address, preferring the uploader id
// on the upstream content record over the one stored in the royalty.
func (s *Service) uploaderAddress(ctx context.Context, record *models.PendingRoyalty) string {
	uploaderID := record.UploaderID
	if content, err := s.catalog.Get(ctx, record.ContentID); err == nil && content.UploaderID != 0 {
		uploaderID = content.UploaderID
	}
	return wallet.DeriveAddress(uploaderID)
}

// reconcilePayer checks that the claimed address belongs to the payer. The
// wallet-connection subsystem may derive addresses differently than we do,
// so on mismatch the persisted binding is consulted first and the bounded
// brute-force search is kept as a backfill path.
func (s *Service) reconcilePayer(claimedAddress string, payerID int64) error {
	if wallet.Equal(wallet.DeriveAddress(payerID), claimedAddress) {
		return nil
	}
	if s.bindings != nil {
		if boundID, err := s.bindings.IdentifierForAddress(claimedAddress); err == nil && boundID == payerID {
			return nil
		}
	}
	found, err := wallet.FindIdentifier(claimedAddress, payerID, s.searchRadius)
	if err != nil {
		return ErrWalletMismatch
	}
	s.logger.Warn("payer identifier recovered by address search", "claimed", claimedAddress, "hint", payerID, "found", found)
	return nil
}

// ClaimRoyalties claims every settled, unclaimed royalty owed to the
// uploader, one external call per content id. Only groups whose external
// claim succeeds are marked claimed; failed groups keep a claim-failed
// marker so a later run retries them.
func (s *Service) ClaimRoyalties(ctx context.Context, uploaderID int64) (*models.ClaimResult, error) {
	records, err := s.ledger.ListClaimable(ctx, uploaderID)
	if err != nil {
		return nil, fmt.Errorf("list claimable: %w", err)
	}

	groups := make(map[string][]models.PendingRoyalty)
	for _, record := range records {
		key := strings.ToLower(record.ContentID)
		groups[key] = append(groups[key], record)
	}
	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	uploaderAddr := wallet.DeriveAddress(uploaderID)
	result := &models.ClaimResult{}
	total := decimal.Zero

	for _, key := range keys {
		group := groups[key]
		contentID := group[0].ContentID
		ids := make([]string, 0, len(group))
		amount := decimal.Zero
		for _, record := range group {
			ids = append(ids, record.ID)
			if d, err := decimal.NewFromString(record.Amount); err == nil {
				amount = amount.Add(d)
			}
		}
		claim := models.ContentClaim{ContentID: contentID, Count: len(group), Amount: amount.String()}

		if _, err := s.chain.ClaimRevenue(ctx, contentID, uploaderAddr); err != nil {
			s.logger.Warn("revenue claim failed", "content_id", contentID, "uploader_id", uploaderID, "err", err)
			claim.Error = err.Error()
			if err := s.ledger.MarkClaimFailed(ctx, ids); err != nil {
				s.logger.Error("claim-failed marker not persisted", "content_id", contentID, "err", err)
			}
		} else {
			if err := s.ledger.MarkClaimed(ctx, ids); err != nil {
				return nil, fmt.Errorf("mark claimed: %w", err)
			}
			claim.Claimed = true
			result.ClaimedCount += len(group)
			total = total.Add(amount)
		}
		result.PerContent = append(result.PerContent, claim)
	}

	result.TotalAmount = total.String()
	return result, nil
}
