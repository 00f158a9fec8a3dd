// Package chain wraps the external content-registration ledger service. The
// service is an opaque collaborator reached over JSON-RPC; this package only
// shapes the call contract, no on-chain logic lives here.
package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"
)

// Client is the typed call contract against the registration ledger.
type Client interface {
	// RegisterDerivative registers a derivative IP asset for parentID and
	// returns the new asset id. The tag makes repeated registration of the
	// same derivative idempotent on the remote side.
	RegisterDerivative(ctx context.Context, parentID, uri, tag string) (string, error)

	// TokenBalance returns the payer's royalty-token balance in base units.
	TokenBalance(ctx context.Context, address string) (*big.Int, error)

	// GasBalance returns the native balance used to cover execution fees.
	GasBalance(ctx context.Context, address string) (*big.Int, error)

	// Allowance returns how much the royalty-paying contract may move on
	// the owner's behalf.
	Allowance(ctx context.Context, owner string) (*big.Int, error)

	// PayOnBehalf moves amount from payer to receiver for contentID and
	// returns the submitted transaction reference.
	PayOnBehalf(ctx context.Context, payer, receiver, contentID string, amount *big.Int) (string, error)

	// ClaimRevenue moves accumulated paid royalties for contentID out of
	// escrow into the uploader's balance.
	ClaimRevenue(ctx context.Context, contentID, uploader string) (string, error)

	// WaitForSettlement blocks until txRef is final or ctx expires.
	WaitForSettlement(ctx context.Context, txRef string) error
}

// RPCClient talks to the registration ledger over JSON-RPC.
type RPCClient struct {
	rpc *rpc.Client
}

// Dial connects to the registration ledger endpoint.
func Dial(ctx context.Context, url string) (*RPCClient, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", url, err)
	}
	return &RPCClient{rpc: client}, nil
}

func (c *RPCClient) Close() { c.rpc.Close() }

func (c *RPCClient) RegisterDerivative(ctx context.Context, parentID, uri, tag string) (string, error) {
	var ipID string
	if err := c.rpc.CallContext(ctx, &ipID, "ip_registerDerivative", parentID, uri, tag); err != nil {
		return "", fmt.Errorf("chain: register derivative: %w", err)
	}
	return ipID, nil
}

func (c *RPCClient) TokenBalance(ctx context.Context, address string) (*big.Int, error) {
	return c.balanceCall(ctx, "royalty_tokenBalance", address)
}

func (c *RPCClient) GasBalance(ctx context.Context, address string) (*big.Int, error) {
	return c.balanceCall(ctx, "royalty_gasBalance", address)
}

func (c *RPCClient) Allowance(ctx context.Context, owner string) (*big.Int, error) {
	return c.balanceCall(ctx, "royalty_allowance", owner)
}

func (c *RPCClient) balanceCall(ctx context.Context, method, address string) (*big.Int, error) {
	var result hexutil.Big
	if err := c.rpc.CallContext(ctx, &result, method, address); err != nil {
		return nil, fmt.Errorf("chain: %s: %w", method, err)
	}
	return (*big.Int)(&result), nil
}

func (c *RPCClient) PayOnBehalf(ctx context.Context, payer, receiver, contentID string, amount *big.Int) (string, error) {
	var txRef string
	err := c.rpc.CallContext(ctx, &txRef, "royalty_payOnBehalf", payer, receiver, contentID, (*hexutil.Big)(amount))
	if err != nil {
		return "", fmt.Errorf("chain: pay on behalf: %w", err)
	}
	return txRef, nil
}

func (c *RPCClient) ClaimRevenue(ctx context.Context, contentID, uploader string) (string, error) {
	var txRef string
	if err := c.rpc.CallContext(ctx, &txRef, "royalty_claimRevenue", contentID, uploader); err != nil {
		return "", fmt.Errorf("chain: claim revenue: %w", err)
	}
	return txRef, nil
}

func (c *RPCClient) WaitForSettlement(ctx context.Context, txRef string) error {
	var settled bool
	if err := c.rpc.CallContext(ctx, &settled, "royalty_waitForSettlement", txRef); err != nil {
		return fmt.Errorf("chain: wait for settlement: %w", err)
	}
	if !settled {
		return fmt.Errorf("chain: transaction %s not settled", txRef)
	}
	return nil
}

// TokenDecimals is the fixed-point precision of the royalty token.
const TokenDecimals = 18

// ToBaseUnits converts a decimal currency string ("0.1") into base units.
func ToBaseUnits(amount string) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("chain: parse amount %q: %w", amount, err)
	}
	if d.Sign() <= 0 {
		return nil, fmt.Errorf("chain: amount %q must be positive", amount)
	}
	return d.Shift(TokenDecimals).BigInt(), nil
}

// FromBaseUnits renders base units back as a decimal currency string.
func FromBaseUnits(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -TokenDecimals).String()
}
