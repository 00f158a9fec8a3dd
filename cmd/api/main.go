package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/manudev97/first-frame-sub000/internal/api"
	"github.com/manudev97/first-frame-sub000/internal/chain"
	"github.com/manudev97/first-frame-sub000/internal/config"
	"github.com/manudev97/first-frame-sub000/internal/puzzle"
	"github.com/manudev97/first-frame-sub000/internal/service"
	"github.com/manudev97/first-frame-sub000/internal/store"
	"github.com/manudev97/first-frame-sub000/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()

	// The Postgres backend takes over when a DSN is configured; the JSON
	// snapshot file is the default for single-instance deployments.
	var ledger store.Ledger
	if cfg.DBSource != "" {
		ledger, err = store.NewPostgresLedger(ctx, cfg.DBSource)
		if err != nil {
			log.Fatalf("Unable to open Postgres ledger: %v", err)
		}
	} else {
		ledger, err = store.NewSnapshotLedger(cfg.LedgerPath)
		if err != nil {
			log.Fatalf("Unable to open snapshot ledger: %v", err)
		}
	}
	defer ledger.Close()

	catalog, err := store.NewFileCatalog(cfg.CatalogPath)
	if err != nil {
		log.Fatalf("Unable to open content catalog: %v", err)
	}

	bindings, err := store.NewBindingStore(cfg.BindingsPath, nil)
	if err != nil {
		log.Fatalf("Unable to open binding store: %v", err)
	}
	defer bindings.Close()

	chainClient, err := chain.Dial(ctx, cfg.ChainRPCURL)
	if err != nil {
		log.Fatalf("Unable to reach registration ledger: %v", err)
	}
	defer chainClient.Close()

	transport := telegram.NewBotClient(cfg.BotToken, "")
	sessions := puzzle.NewMemoryStore()

	settleTimeout, err := cfg.SettleTimeoutDuration()
	if err != nil {
		log.Fatal(err)
	}
	svc := service.New(ledger, catalog, bindings, bindings, chainClient, transport, sessions, logger, service.Config{
		SearchRadius:  cfg.SearchRadius,
		SettleTimeout: settleTimeout,
		FaucetURL:     cfg.FaucetURL,
	})

	handler := api.NewHandler(svc, ledger, bindings, sessions, logger, cfg.BotToken, cfg.RequireAuth)

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	handler.Register(r)

	log.Printf("Server starting on :%s (%s)", cfg.Port, cfg.Env)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal(err)
	}
}
