// Package service orchestrates the unlock and payment workflows. It owns no
// data of its own; it reads and writes the royalty ledger and calls out to
// the registration ledger and the messaging transport.
package service

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/manudev97/first-frame-sub000/internal/chain"
	"github.com/manudev97/first-frame-sub000/internal/models"
	"github.com/manudev97/first-frame-sub000/internal/puzzle"
	"github.com/manudev97/first-frame-sub000/internal/store"
	"github.com/manudev97/first-frame-sub000/internal/telegram"
)

// Catalog resolves registered content records.
type Catalog interface {
	Get(ctx context.Context, contentID string) (*models.Content, error)
}

// Bindings resolves wallet addresses bound at link time.
type Bindings interface {
	IdentifierForAddress(address string) (int64, error)
}

// Telemetry records puzzle completions. Failures are logged, never fatal.
type Telemetry interface {
	RecordCompletion(completion models.PuzzleCompletion) error
}

// minGasWei is the native balance floor required before a payment is
// attempted, enough to cover one pay-on-behalf call with headroom.
var minGasWei = big.NewInt(1_000_000_000_000_000) // 0.001 in native units

// Service wires the royalty workflows together.
type Service struct {
	ledger    store.Ledger
	catalog   Catalog
	bindings  Bindings
	telemetry Telemetry
	chain     chain.Client
	transport telegram.Transport
	sessions  puzzle.Store
	logger    *slog.Logger

	nowFn         func() time.Time
	searchRadius  int64
	settleTimeout time.Duration
	faucetURL     string
}

// Config carries the service tunables.
type Config struct {
	SearchRadius  int64
	SettleTimeout time.Duration
	FaucetURL     string
}

// New constructs the workflow service.
func New(ledger store.Ledger, catalog Catalog, bindings Bindings, telemetry Telemetry,
	chainClient chain.Client, transport telegram.Transport, sessions puzzle.Store,
	logger *slog.Logger, cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SearchRadius <= 0 {
		cfg.SearchRadius = 100000
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = 90 * time.Second
	}
	return &Service{
		ledger:        ledger,
		catalog:       catalog,
		bindings:      bindings,
		telemetry:     telemetry,
		chain:         chainClient,
		transport:     transport,
		sessions:      sessions,
		logger:        logger,
		nowFn:         time.Now,
		searchRadius:  cfg.SearchRadius,
		settleTimeout: cfg.SettleTimeout,
		faucetURL:     cfg.FaucetURL,
	}
}

// SetNowFunc overrides the time source for deterministic testing.
func (s *Service) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.nowFn = now
}
