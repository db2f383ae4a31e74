package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	webAdapter "stock-ledger/internal/adapters/web"
	"stock-ledger/internal/app"
	"stock-ledger/internal/core"
	"stock-ledger/internal/db"
	"stock-ledger/internal/notify"
	"stock-ledger/internal/store/memory"
	"stock-ledger/internal/store/postgres"
)

func main() {
	_ = godotenv.Load()

	logger := newLogger()
	ctx := context.Background()

	var store core.Store
	switch driver := os.Getenv("STORE_DRIVER"); driver {
	case "", "postgres":
		pool, err := db.NewPool(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("database")
		}
		defer pool.Close()
		store = postgres.New(pool)
	case "memory":
		logger.Warn().Msg("using in-memory store, data will not survive a restart")
		store = memory.New()
	default:
		logger.Fatal().Str("driver", driver).Msg("unknown STORE_DRIVER")
	}

	ledger := core.NewLedger(store, logger)
	if v := os.Getenv("STORAGE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			logger.Fatal().Str("value", v).Msg("invalid STORAGE_TIMEOUT")
		}
		ledger.SetStorageTimeout(d)
	}

	feed := notify.NewFeed(256)
	publisher := notify.Multi{notify.NewLogPublisher(logger), feed}

	reservations := core.NewReservationTracker(store, ledger, logger)
	alerts := core.NewAlertEngine(store, ledger, nil, publisher, logger)
	receiving := core.NewReceiving(store, ledger, logger)
	locations := core.NewLocations(store, logger)

	sweepInterval := 5 * time.Minute
	if v := os.Getenv("SWEEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			logger.Fatal().Str("value", v).Msg("invalid SWEEP_INTERVAL")
		}
		sweepInterval = d
	}
	go alerts.RunSweeper(ctx, sweepInterval)

	svc := app.NewAppService(store, ledger, reservations, alerts, receiving, locations, feed, logger)

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	handler := webAdapter.NewHandler(svc, os.Getenv("ALLOWED_ORIGINS"), logger)

	logger.Info().Str("port", port).Dur("sweep_interval", sweepInterval).Msg("server starting")
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		logger.Fatal().Err(err).Msg("server")
	}
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if parsed, err := zerolog.ParseLevel(v); err == nil {
			level = parsed
		}
	}
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
}
