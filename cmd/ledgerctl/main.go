// Command ledgerctl runs operator actions against the ledger: refunds,
// disputes and the payout review workflow.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/creatorvault-backend/internal/app"
	"github.com/angelmondragon/creatorvault-backend/pkg/config"
	"github.com/angelmondragon/creatorvault-backend/pkg/db"
	"github.com/angelmondragon/creatorvault-backend/pkg/logger"
	"github.com/angelmondragon/creatorvault-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "ledgerctl", Output: os.Stderr})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(logg, "config", err)
	cfg.Service.Kind = "ledgerctl"

	logg = logger.New(logger.Options{
		ServiceName: "ledgerctl",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
		Output:      os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	requireResource(logg, "database", err)
	defer dbClient.Close()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Warn(logg.WithField(ctx, "error", err.Error()), "redis unavailable; creator-stats disabled")
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	square, err := app.SquarePayments(ctx, cfg, logg)
	requireResource(logg, "square", err)

	services, err := app.New(app.Params{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		Redis:      redisClient,
		Square:     square,
		Registerer: prometheus.NewRegistry(),
	})
	requireResource(logg, "ledger services", err)

	if err := run(ctx, services, os.Args[1:], os.Stdout); err != nil {
		os.Exit(report(os.Stderr, err))
	}
}

func requireResource(logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
