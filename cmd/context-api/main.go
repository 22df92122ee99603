// Command context-api serves patient clinical contexts over HTTP and, when a
// database is configured, accepts summary requests.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/drfirst/go-clinctx/internal/api/handlers"
	"github.com/drfirst/go-clinctx/internal/api/middleware"
	"github.com/drfirst/go-clinctx/internal/app"
	"github.com/drfirst/go-clinctx/internal/config"
	"github.com/drfirst/go-clinctx/internal/domain/summary"
	"github.com/drfirst/go-clinctx/internal/observability/metrics"
	"github.com/drfirst/go-clinctx/internal/orchestrator"
	"github.com/drfirst/go-clinctx/pkg/circuitbreaker"
)

const breakerSampleInterval = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "context-api:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	logger, err := app.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := app.InitTracing(ctx, cfg, "context-api")
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer tp.Shutdown(context.Background())

	m := metrics.New(nil)
	breakers := circuitbreaker.NewManager(logger)
	fhir, err := app.NewFHIRClient(cfg, breakers, logger)
	if err != nil {
		return fmt.Errorf("fhir client: %w", err)
	}

	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	var summaries *handlers.SummaryHandler
	if pool != nil {
		defer pool.Close()
		summaries = handlers.NewSummaryHandler(summary.NewRepository(pool, logger), logger)
	} else {
		logger.Warn("DATABASE_URL not set, summary endpoints disabled")
	}

	contexts := handlers.NewContextHandler(orchestrator.NewBuilder(fhir, m, cfg.Workers, logger), fhir, logger)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(cfg, logger, contexts, summaries, readiness(pool, breakers)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.FHIRTimeout + 15*time.Second,
		IdleTimeout:  time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("context API listening",
			zap.String("addr", server.Addr),
			zap.String("fhir_base_url", fhir.BaseURL()),
			zap.Bool("summaries", summaries != nil))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(breakerSampleInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				m.ObserveBreakers(breakers.GetHealthStatus())
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openPool connects to the summary store. It returns nil when no database is configured.
func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil
	}
	pc, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("DATABASE_URL: %w", err)
	}
	pc.MaxConns = cfg.DBMaxConns
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping: %w", err)
	}
	return pool, nil
}

func newRouter(cfg *config.Config, logger *zap.Logger, contexts *handlers.ContextHandler, summaries *handlers.SummaryHandler, ready http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Tracing("context-api"))
	r.Use(middleware.Clinician)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"healthy","service":"context-api","version":%q}`, app.Version)
	})
	r.Get("/ready", ready)
	r.Handle("/metrics", metrics.Handler())
	r.Route("/api/v1", func(r chi.Router) {
		handlers.Mount(r, contexts, summaries)
	})
	return r
}

// readiness fails while the database is unreachable or any breaker is open.
func readiness(pool *pgxpool.Pool, breakers *circuitbreaker.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pool != nil {
			if err := pool.Ping(r.Context()); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		for _, s := range breakers.GetHealthStatus() {
			if !s.Healthy {
				http.Error(w, "circuit open: "+s.Name, http.StatusServiceUnavailable)
				return
			}
		}
		w.Write([]byte("ready"))
	}
}
