// Command outbox-relay publishes committed summary events, summary requests
// and clinical documents from the outbox table to Redpanda.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/drfirst/go-clinctx/internal/app"
	"github.com/drfirst/go-clinctx/internal/config"
	"github.com/drfirst/go-clinctx/internal/infrastructure/postgres"
	"github.com/drfirst/go-clinctx/internal/infrastructure/redpanda"
	"github.com/drfirst/go-clinctx/internal/observability/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}
	if err := cfg.RequireBrokers(); err != nil {
		return err
	}

	logger, err := app.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := app.InitTracing(ctx, cfg, "outbox-relay")
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer tp.Shutdown(context.Background())

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer pool.Close()

	producerCfg := redpanda.DefaultProducerConfig()
	producerCfg.Brokers = cfg.KafkaBrokers
	producer, err := redpanda.NewProducer(producerCfg, logger)
	if err != nil {
		return fmt.Errorf("producer: %w", err)
	}
	defer producer.Close()

	relayCfg := postgres.DefaultRelayConfig()
	relayCfg.DeadLetterTopic = redpanda.TopicDeadLetter
	relay := postgres.NewRelay(pool, producer, metrics.New(nil), relayCfg, logger)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: metrics.Handler()}
	go func() {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	logger.Info("outbox relay started", zap.Strings("brokers", cfg.KafkaBrokers))
	relay.Run(ctx)

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
