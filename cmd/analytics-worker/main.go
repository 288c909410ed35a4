package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/creatorvault-backend/internal/analytics/router"
	"github.com/angelmondragon/creatorvault-backend/internal/analytics/worker"
	"github.com/angelmondragon/creatorvault-backend/internal/analytics/writer"
	"github.com/angelmondragon/creatorvault-backend/pkg/bigquery"
	"github.com/angelmondragon/creatorvault-backend/pkg/config"
	"github.com/angelmondragon/creatorvault-backend/pkg/logger"
	"github.com/angelmondragon/creatorvault-backend/pkg/metrics"
	"github.com/angelmondragon/creatorvault-backend/pkg/ops"
	"github.com/angelmondragon/creatorvault-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/creatorvault-backend/pkg/pubsub"
	"github.com/angelmondragon/creatorvault-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "analytics-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "analytics-worker"

	logg = logger.New(logger.Options{
		ServiceName: "analytics-worker",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg, pubsub.Resources{
		Subscriptions: []string{cfg.PubSub.AnalyticsSubscription},
	})
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	bqClient, err := bigquery.NewClient(context.Background(), cfg.GCP, cfg.BigQuery, logg)
	requireResource(ctx, logg, "bigquery client", err)
	defer func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(ctx, "failed to close bigquery client", err)
		}
	}()

	subscription := pubsubClient.AnalyticsSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "analytics subscription", errors.New("subscription not configured"))
	}

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	analyticsWriter, err := writer.New(ctx, bqClient, writer.Config{LedgerTable: cfg.BigQuery.LedgerTable})
	requireResource(ctx, logg, "analytics bigquery writer", err)

	routingHandler, err := router.NewRouter(analyticsWriter, logg)
	requireResource(ctx, logg, "analytics router", err)

	logg.Info(logg.WithField(ctx, "event_types", routingHandler.EventTypes()), "analytics routes registered")

	service, err := worker.NewService(worker.ServiceParams{
		Subscription: subscription,
		Handler:      routingHandler,
		Guard:        manager,
		Logger:       logg,
		Metrics:      metrics.NewConsumerMetrics(prometheus.DefaultRegisterer, worker.ConsumerName),
	})
	requireResource(ctx, logg, "analytics worker service", err)

	opsServer, err := ops.NewServer(ops.Params{
		Addr:    cfg.Ops.Addr,
		Service: cfg.Service.Kind,
		Env:     cfg.App.Env,
		Logger:  logg,
		Checks: map[string]ops.Check{
			"redis":    redisClient.Ping,
			"pubsub":   pubsubClient.Ping,
			"bigquery": bqClient.Ping,
		},
	})
	requireResource(ctx, logg, "ops server", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(runCtx, "analytics worker ready")

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error { return service.Run(groupCtx) })
	group.Go(func() error { return opsServer.Run(groupCtx) })
	runErr := group.Wait()
	if err := analyticsWriter.Flush(context.Background()); err != nil {
		logg.Error(runCtx, "failed to flush analytics rows", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logg.Error(runCtx, "analytics worker failed", runErr)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
