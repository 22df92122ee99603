// Package app wires configured infrastructure into the components the
// binaries run.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/drfirst/go-clinctx/internal/cda"
	"github.com/drfirst/go-clinctx/internal/config"
	"github.com/drfirst/go-clinctx/internal/infrastructure/archive"
	"github.com/drfirst/go-clinctx/internal/infrastructure/cache"
	"github.com/drfirst/go-clinctx/internal/infrastructure/fhirserver"
	"github.com/drfirst/go-clinctx/internal/infrastructure/llm"
	"github.com/drfirst/go-clinctx/internal/observability/metrics"
	"github.com/drfirst/go-clinctx/internal/observability/tracing"
	"github.com/drfirst/go-clinctx/internal/orchestrator"
	"github.com/drfirst/go-clinctx/pkg/circuitbreaker"
)

// Version is reported by health checks and tracing
const Version = "0.1.0"

// NewLogger builds the production logger, or the development one in dev
// environments. LOG_LEVEL sets the minimum level.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	zc := zap.NewProductionConfig()
	if cfg.IsDev() {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// InitTracing installs the tracer provider for a service
func InitTracing(ctx context.Context, cfg *config.Config, service string) (*tracing.Provider, error) {
	tc := tracing.DefaultConfig(service)
	tc.Version = Version
	tc.Environment = cfg.Env
	tc.Endpoint = cfg.OTLPEndpoint
	tc.Ratio = cfg.TraceSampleRate
	return tracing.Init(ctx, tc)
}

// FHIRConfig maps the service configuration onto the FHIR client
func FHIRConfig(cfg *config.Config) fhirserver.Config {
	return fhirserver.Config{
		BaseURL:  cfg.FHIRBaseURL,
		PageSize: cfg.FHIRPageSize,
		MaxPages: cfg.FHIRMaxPages,
		Timeout:  cfg.FHIRTimeout,
	}
}

// LLMConfig maps the service configuration onto the model client
func LLMConfig(cfg *config.Config) llm.Config {
	return llm.Config{
		BaseURL:     cfg.LLMBaseURL,
		APIKey:      cfg.LLMAPIKey,
		Model:       cfg.LLMModel,
		Temperature: cfg.LLMTemperature,
		MaxTokens:   cfg.LLMMaxTokens,
		Timeout:     cfg.LLMTimeout,
	}
}

// NewFHIRClient creates the FHIR client behind the "fhir" breaker
func NewFHIRClient(cfg *config.Config, breakers *circuitbreaker.Manager, logger *zap.Logger) (*fhirserver.Client, error) {
	cb, err := breakers.GetOrCreate("fhir", fhirserver.BreakerConfig())
	if err != nil {
		return nil, err
	}
	return fhirserver.New(FHIRConfig(cfg), cb, logger)
}

// Services are the long-lived collaborators of the summary pipeline
type Services struct {
	Breakers *circuitbreaker.Manager
	FHIR     *fhirserver.Client
	LLM      *llm.Client
	Cache    *cache.NarrativeCache
	Archive  *archive.Store
	Emitter  *cda.Emitter
	Metrics  *metrics.Metrics
}

// NewServices connects every collaborator named by cfg. Redis and MinIO
// stay disabled when their endpoints are unset.
func NewServices(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) (*Services, error) {
	s := &Services{
		Breakers: circuitbreaker.NewManager(logger),
		Emitter:  cda.NewEmitter(cfg.OrgName, cfg.OrgOID, ""),
		Metrics:  m,
	}

	var err error
	if s.FHIR, err = NewFHIRClient(cfg, s.Breakers, logger); err != nil {
		return nil, fmt.Errorf("fhir client: %w", err)
	}

	cb, err := s.Breakers.GetOrCreate("llm", llm.BreakerConfig())
	if err != nil {
		return nil, err
	}
	if s.LLM, err = llm.New(LLMConfig(cfg), cb, logger); err != nil {
		return nil, fmt.Errorf("llm client: %w", err)
	}

	if cfg.CacheEnabled() {
		s.Cache, err = cache.New(ctx, cache.Config{URL: cfg.RedisURL, TTL: cfg.NarrativeCacheTTL}, logger)
		if err != nil {
			return nil, err
		}
	}

	s.Archive, err = archive.New(archive.Config{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	}, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	if s.Archive.Enabled() {
		if err := s.Archive.EnsureBucket(ctx); err != nil {
			s.Close()
			return nil, err
		}
	}

	return s, nil
}

// Builder returns a context builder reading from the FHIR server
func (s *Services) Builder(concurrency int, logger *zap.Logger) *orchestrator.Builder {
	return orchestrator.NewBuilder(s.FHIR, s.Metrics, concurrency, logger)
}

// Pipeline assembles the summary pipeline. store may be nil for one-off
// runs that do not persist.
func (s *Services) Pipeline(store orchestrator.Store, concurrency int, logger *zap.Logger) (*orchestrator.Pipeline, error) {
	deps := orchestrator.Deps{
		Builder:   s.Builder(concurrency, logger),
		Narrator:  s.LLM,
		Emitter:   s.Emitter,
		Archive:   s.Archive,
		Publisher: s.FHIR,
		Store:     store,
		Metrics:   s.Metrics,
		Logger:    logger,
	}
	if s.Cache.Enabled() {
		deps.Cache = s.Cache
	}
	return orchestrator.New(deps)
}

// Close releases connections
func (s *Services) Close() {
	if s.Cache.Enabled() {
		s.Cache.Close()
	}
}
