package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/deeppool/params"
	"github.com/uhyunpark/deeppool/pkg/api"
	"github.com/uhyunpark/deeppool/pkg/app/core/account"
	"github.com/uhyunpark/deeppool/pkg/app/dex"
	"github.com/uhyunpark/deeppool/pkg/storage"
	"github.com/uhyunpark/deeppool/pkg/util"
)

func main() {
	// Load config: CONFIG_FILE (YAML) if set, then .env and environment variables
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		var err error
		if cfg, err = params.LoadFile(path, ""); err != nil {
			log.Fatalf("config: %v", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	// Setup logging (write to both console and file)
	var logger *zap.Logger
	var err error
	if cfg.Node.LogFile != "" {
		logger, err = util.NewLoggerWithFile(cfg.Node.LogFile, cfg.Node.LogLevel)
	} else {
		logger, err = util.NewLogger(cfg.Node.LogLevel)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile, "level", cfg.Node.LogLevel)

	// ---- Ledger and pool storage ----
	ledger, store, err := openStorage(cfg.Node.DataDir)
	if err != nil {
		sugar.Fatalw("storage_open_failed", "data_dir", cfg.Node.DataDir, "err", err)
	}
	defer ledger.Close()
	defer store.Close()

	var wal storage.WAL = storage.NewNopWAL()
	if cfg.Node.WALFile != "" {
		fw, err := storage.NewFileWAL(cfg.Node.WALFile)
		if err != nil {
			sugar.Fatalw("wal_open_failed", "path", cfg.Node.WALFile, "err", err)
		}
		wal = fw
	}
	defer wal.Close()

	// ---- App ----
	var operator common.Address
	if cfg.Node.Operator != "" {
		operator = common.HexToAddress(cfg.Node.Operator)
	} else {
		sugar.Warn("operator_unset - price points and epoch parameters cannot be submitted")
	}

	app, err := dex.New(dex.Config{
		EpochDuration: cfg.Epoch.Duration,
		Genesis:       cfg.Epoch.Genesis,
		Operator:      operator,
		Treasury:      common.HexToAddress(cfg.Registry.Treasury),
		FeeAsset:      cfg.Registry.FeeAsset,
		CreationFee:   cfg.Registry.CreationFee,
		PoolDefaults:  cfg.PoolDefaults(),
	}, logger, util.RealClock{}, ledger, store, wal)
	if err != nil {
		sugar.Fatalw("app_init_failed", "err", err)
	}

	// Bootstrap pools listed in config
	for _, pc := range cfg.Pools {
		created, err := app.EnsurePool(cfg.PoolConfig(pc))
		if err != nil {
			sugar.Fatalw("pool_bootstrap_failed", "base", pc.Base, "quote", pc.Quote, "err", err)
		}
		if created {
			sugar.Infow("pool_bootstrapped", "base", pc.Base, "quote", pc.Quote)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- API Server ----
	// Start HTTP/WebSocket server for frontend
	apiServer := api.NewServer(app, logger, api.Options{
		AllowedOrigins: cfg.API.AllowedOrigins,
		Faucet:         cfg.API.Faucet,
	})
	if cfg.API.Faucet {
		sugar.Warn("faucet_enabled - unsigned deposits are accepted")
	}

	go func() {
		if err := apiServer.Start(cfg.Node.APIAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sugar.Infow("node_starting",
		"epoch", app.Epoch(),
		"epoch_duration", cfg.Epoch.Duration,
		"pools", app.Registry().Count(),
		"operator", operator.Hex())

	// Epoch announcements until interrupted
	if err := app.Run(ctx); err != nil && ctx.Err() == nil {
		sugar.Errorw("app_run_failed", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("api_shutdown_failed", "err", err)
	}
	sugar.Info("node_stopped")
}

// openStorage opens Pebble-backed stores under dataDir, or in-memory ones
// when dataDir is empty.
func openStorage(dataDir string) (*account.Manager, storage.Store, error) {
	if dataDir == "" {
		return account.NewMemoryManager(), storage.NewInMemoryStore(), nil
	}
	ledger, err := account.NewManager(filepath.Join(dataDir, "accounts"))
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.NewPebbleStore(filepath.Join(dataDir, "pools"))
	if err != nil {
		ledger.Close()
		return nil, nil, err
	}
	return ledger, store, nil
}
