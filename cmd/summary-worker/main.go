// Package main provides the summary worker entry point.
// Consumes summary requests and runs the clinical summary pipeline.
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
	"github.com/drfirst/go-clinctx/internal/domain/summary"
	"github.com/drfirst/go-clinctx/internal/infrastructure/redpanda"
	"github.com/drfirst/go-clinctx/internal/observability/metrics"
	"github.com/drfirst/go-clinctx/internal/orchestrator"
	"github.com/drfirst/go-clinctx/pkg/idempotency"
	"github.com/drfirst/go-clinctx/pkg/workerpool"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cfg.RequireDatabase(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cfg.RequireBrokers(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := app.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()
	tp, err := app.InitTracing(ctx, cfg, "summary-worker")
	if err != nil {
		logger.Fatal("tracing init failed", zap.Error(err))
	}
	defer tp.Shutdown(context.Background())

	// Connect to database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()

	m := metrics.New(nil)
	services, err := app.NewServices(ctx, cfg, m, logger)
	if err != nil {
		logger.Fatal("service wiring failed", zap.Error(err))
	}
	defer services.Close()

	pipeline, err := services.Pipeline(summary.NewRepository(pool, logger), cfg.Workers, logger)
	if err != nil {
		logger.Fatal("pipeline creation failed", zap.Error(err))
	}

	// Create worker pool
	poolCfg := workerpool.DefaultConfig()
	poolCfg.Workers = cfg.Workers

	workerPool, err := workerpool.New(poolCfg, pipeline.RunTask, logger)
	if err != nil {
		logger.Fatal("worker pool creation failed", zap.Error(err))
	}
	workerPool.Start()
	defer workerPool.Stop()

	inbox := idempotency.NewInbox(pool, idempotency.DefaultInboxConfig(), logger)
	if n, err := inbox.RecoverStaleEntries(ctx); err != nil {
		logger.Warn("stale inbox recovery failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("recovered stale inbox entries", zap.Int64("count", n))
	}
	inbox.StartCleanup()
	defer inbox.Stop()

	worker := orchestrator.NewWorker(pipeline, workerPool, inbox, m, logger)

	producerCfg := redpanda.DefaultProducerConfig()
	producerCfg.Brokers = cfg.KafkaBrokers
	producer, err := redpanda.NewProducer(producerCfg, logger)
	if err != nil {
		logger.Fatal("producer creation failed", zap.Error(err))
	}
	defer producer.Close()

	consumerCfg := redpanda.DefaultConsumerConfig()
	consumerCfg.Brokers = cfg.KafkaBrokers

	consumer, err := redpanda.NewConsumer(consumerCfg, worker.HandleMessage, logger)
	if err != nil {
		logger.Fatal("consumer creation failed", zap.Error(err))
	}
	consumer.WithDeadLetter(producer)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	consumer.Start(runCtx)
	logger.Info("summary worker started",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.Int("workers", poolCfg.Workers),
		zap.String("model", services.LLM.Model()))

	gaugesDone := make(chan struct{})
	go func() {
		defer close(gaugesDone)
		refreshEvery(runCtx, 15*time.Second, func(ctx context.Context) {
			m.ObserveBreakers(services.Breakers.GetHealthStatus())
			if counts, err := inbox.Stats(ctx); err != nil {
				logger.Warn("inbox stats failed", zap.Error(err))
			} else {
				m.ObserveInbox(counts)
			}
		})
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := redpanda.Ping(r.Context(), cfg.KafkaBrokers); err != nil {
			http.Error(w, "brokers unavailable", http.StatusServiceUnavailable)
			return
		}
		if workerPool.Saturated() {
			http.Error(w, "worker pool saturated", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})
	metricsServer := &http.Server{Addr: ":" + cfg.Port, Handler: mux}
	go func() {
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	// Wait for shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	stop()
	<-gaugesDone
	consumer.Stop()
	stats := consumer.Stats()
	logger.Info("consumer stopped",
		zap.Int64("handled", stats.Handled),
		zap.Int64("retries", stats.Retries),
		zap.Int64("dead_lettered", stats.DeadLettered),
		zap.Int64("dead_letter_failures", stats.DeadLetterFailures))
	ps := workerPool.Stats()
	logger.Info("worker pool totals",
		zap.Int64("completed", ps.Completed),
		zap.Int64("failed", ps.Failed),
		zap.Int64("retried", ps.Retried))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	metricsServer.Shutdown(shutdownCtx)
	logger.Info("summary worker stopped")
}

// refreshEvery calls refresh on each tick until ctx ends.
func refreshEvery(ctx context.Context, every time.Duration, refresh func(context.Context)) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh(ctx)
		}
	}
}
