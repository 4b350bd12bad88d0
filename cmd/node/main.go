package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/uhyunpark/hyperswap/params"
	"github.com/uhyunpark/hyperswap/pkg/api"
	"github.com/uhyunpark/hyperswap/pkg/app/market"
	"github.com/uhyunpark/hyperswap/pkg/sink/kafka"
	"github.com/uhyunpark/hyperswap/pkg/sink/postgres"
	"github.com/uhyunpark/hyperswap/pkg/storage"
	"github.com/uhyunpark/hyperswap/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg, err := params.LoadFromEnv("") // "" means load from .env in current directory
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile, cfg.Node.Verbose)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile, "verbose", cfg.Node.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Ledger ----
	store, err := storage.NewStore(cfg.Storage.DataDir, cfg.Storage.RentLamportsPerByte)
	if err != nil {
		sugar.Fatalw("store_open_failed", "dir", cfg.Storage.DataDir, "err", err)
	}
	defer store.Close()

	app, err := market.NewApp(store, market.Config{
		Domain:            cfg.Domain,
		Clock:             util.RealClock{},
		FaucetMaxLamports: cfg.FaucetLamports(),
		Logger:            sugar,
	})
	if err != nil {
		sugar.Fatalw("app_init_failed", "err", err)
	}

	if cfg.Storage.GenesisFile != "" {
		applied, err := app.LoadGenesis(cfg.Storage.GenesisFile)
		if err != nil {
			sugar.Fatalw("genesis_failed", "file", cfg.Storage.GenesisFile, "err", err)
		}
		if !applied {
			sugar.Infow("genesis_skipped", "reason", "store already seeded")
		}
	}

	// ---- Event sinks (optional) ----
	if len(cfg.Sinks.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.Sinks.KafkaBrokers, cfg.Sinks.KafkaTopic)
		defer producer.Close()
		app.AddSink(producer)
		sugar.Infow("kafka_sink_enabled", "brokers", cfg.Sinks.KafkaBrokers, "topic", cfg.Sinks.KafkaTopic)
	}

	var history api.TradeHistory
	if cfg.Sinks.PostgresDSN != "" {
		pool, err := postgres.NewPool(ctx, cfg.Sinks.PostgresDSN)
		if err != nil {
			sugar.Fatalw("postgres_connect_failed", "err", err)
		}
		defer pool.Close()
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			sugar.Fatalw("postgres_migrate_failed", "err", err)
		}
		h := postgres.NewHistory(pool)
		app.AddSink(h)
		history = h
		sugar.Info("postgres_history_enabled")
	}

	// ---- API Server ----
	apiServer := api.NewServer(app, api.Options{
		Logger:      sugar,
		History:     history,
		Faucet:      cfg.Node.EnableFaucet,
		CORSOrigins: cfg.Node.CORSOrigins,
	})

	sugar.Infow("node_starting",
		"program_id", cfg.Domain.ProgramID,
		"authority", app.Authority(),
		"chain_id", cfg.Domain.ChainID,
		"faucet", cfg.Node.EnableFaucet)

	errCh := make(chan error, 1)
	go func() {
		errCh <- apiServer.Start(ctx, cfg.Node.APIAddr)
	}()

	select {
	case <-ctx.Done():
		sugar.Info("shutdown_requested")
	case err := <-errCh:
		if err != nil {
			sugar.Errorw("api_server_failed", "err", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("api_shutdown_failed", "err", err)
	}
}
