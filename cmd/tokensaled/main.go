package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tokensale/config"
	"tokensale/ledger"
	"tokensale/native/sale"
	"tokensale/observability"
	"tokensale/observability/logging"
	"tokensale/rpc"
	"tokensale/storage"
)

const (
	rpcTokenEnv    = "TOKENSALE_RPC_TOKEN"
	ledgerTokenEnv = "TOKENSALE_LEDGER_TOKEN"
	assetsTokenEnv = "TOKENSALE_ASSETS_TOKEN"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("TOKENSALE_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("tokensaled", env, logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	self, err := cfg.Identity()
	if err != nil {
		logger.Error("Failed to resolve engine identity", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	state, ok, err := storage.LoadState(db)
	if err != nil {
		logger.Error("Failed to load state snapshot", slog.Any("error", err))
		os.Exit(1)
	}
	if !ok {
		if cfg.Sale == nil {
			logger.Error("No state snapshot and no [Sale] bootstrap section in config")
			os.Exit(1)
		}
		meta, err := cfg.Sale.Metadata()
		if err != nil {
			logger.Error("Invalid [Sale] bootstrap section", slog.Any("error", err))
			os.Exit(1)
		}
		state = sale.NewState(meta)
		if err := storage.SaveState(db, state); err != nil {
			logger.Error("Failed to write initial snapshot", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("Initialised offering from config", "name", meta.Name, "supplyCap", meta.SupplyCap)
	}

	timeout := time.Duration(cfg.RequestTimeout) * time.Second

	engine := sale.NewEngine()
	engine.SetState(state)
	engine.SetIdentity(self)
	engine.SetLogger(logger.With("component", "sale"))
	if url := strings.TrimSpace(cfg.LedgerURL); url != "" {
		engine.SetFundsLedger(ledger.NewFundsClient(url, os.Getenv(ledgerTokenEnv), timeout))
	}
	if url := strings.TrimSpace(cfg.AssetStoreURL); url != "" {
		engine.SetAssetStore(ledger.NewAssetStoreClient(url, os.Getenv(assetsTokenEnv), timeout))
	}

	persist := func() error {
		snap, err := engine.Snapshot()
		if err != nil {
			return err
		}
		return storage.SaveState(db, snap)
	}

	metrics := observability.NewMetrics("tokensale")
	server := rpc.NewServer(engine, rpc.ServerConfig{
		AuthToken: strings.TrimSpace(os.Getenv(rpcTokenEnv)),
		Log:       logger.With("component", "rpc"),
		Metrics:   metrics,
		Persist:   persist,
	})

	httpServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting JSON-RPC server", "addr", cfg.RPCAddress)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("RPC server failed", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown failed", slog.Any("error", err))
	}
	if err := persist(); err != nil {
		logger.Error("Final snapshot failed", slog.Any("error", err))
	}
}
