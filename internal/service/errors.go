package service

import (
	"errors"
	"fmt"
	"math/big"
)

// Precondition failures are surfaced synchronously with a machine-readable
// tag and a remediation hint; none of them are retried automatically.
var (
	// ErrRoyaltyNotFound covers an absent record and one already paid.
	ErrRoyaltyNotFound = errors.New("royalty not found or already settled")
	// ErrContentNotFound is returned when the content catalog has no entry.
	ErrContentNotFound = errors.New("content not found")
	// ErrRoyaltyExpired means the payment window closed; only a fresh
	// unlock produces a new window.
	ErrRoyaltyExpired = errors.New("royalty payment window expired")
	// ErrWalletMismatch means the claimed payer address matches neither the
	// derived address, a stored binding, nor any identifier in the search
	// radius. Recovery requires a correct identifier from the caller.
	ErrWalletMismatch = errors.New("payer wallet does not match any known identifier")
	// ErrInsufficientToken means the payer cannot cover the royalty amount.
	ErrInsufficientToken = errors.New("insufficient token balance")
	// ErrInsufficientGas means the payer cannot cover execution fees.
	ErrInsufficientGas = errors.New("insufficient gas balance")
	// ErrApprovalRequired means the royalty contract lacks allowance; the
	// payer must approve out of band before retrying.
	ErrApprovalRequired = errors.New("token approval required")
	// ErrSettlementTimeout means the settlement wait exceeded its budget;
	// the transaction may still land, so callers should poll rather than
	// assume failure.
	ErrSettlementTimeout = errors.New("settlement confirmation timed out")
	// ErrChainUnavailable wraps opaque downstream ledger failures.
	ErrChainUnavailable = errors.New("registration ledger unavailable")
)

// BalanceError decorates a balance/allowance precondition failure with the
// figures the user needs to remediate it.
type BalanceError struct {
	Kind      error
	Required  *big.Int
	Available *big.Int
	Hint      string
}

func (e *BalanceError) Error() string {
	shortfall := new(big.Int).Sub(e.Required, e.Available)
	msg := fmt.Sprintf("%v: need %s, have %s (short %s)", e.Kind, e.Required, e.Available, shortfall)
	if e.Hint != "" {
		msg += "; " + e.Hint
	}
	return msg
}

func (e *BalanceError) Unwrap() error { return e.Kind }
