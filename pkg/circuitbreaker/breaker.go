// Package circuitbreaker guards calls to the FHIR server and the text
// generation engine with sony/gobreaker, adding spans, OpenTelemetry
// counters and a registry for health reporting.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Config controls when a breaker opens and how it recovers
type Config struct {
	Name string
	// HalfOpenProbes is how many calls are let through while half-open
	HalfOpenProbes uint32
	// Window clears the counts periodically while closed
	Window time.Duration
	// Cooldown is how long the breaker stays open
	Cooldown time.Duration
	// ConsecutiveFailures opens the breaker while fewer than MinRequests calls
	// have been seen in the window
	ConsecutiveFailures uint32
	MinRequests         uint32
	// FailureRatio opens the breaker once MinRequests is reached
	FailureRatio float64
	// IsSuccessful reports whether an error still counts as a healthy call,
	// such as a 404 from the FHIR server. Nil counts every error as a failure.
	IsSuccessful func(err error) bool
}

// DefaultConfig suits both the FHIR server and the model endpoint
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		HalfOpenProbes:      2,
		Window:              time.Minute,
		Cooldown:            20 * time.Second,
		ConsecutiveFailures: 5,
		MinRequests:         10,
		FailureRatio:        0.6,
	}
}

// ReadyToTrip is the gobreaker trip function for c
func (c Config) ReadyToTrip(counts gobreaker.Counts) bool {
	if counts.Requests >= c.MinRequests {
		return float64(counts.TotalFailures) >= c.FailureRatio*float64(counts.Requests)
	}
	return counts.ConsecutiveFailures >= c.ConsecutiveFailures
}

// CircuitBreaker is a named gobreaker with tracing and a call counter
type CircuitBreaker struct {
	cb     *gobreaker.CircuitBreaker
	name   string
	tracer trace.Tracer
	calls  metric.Int64Counter
}

// New builds a breaker. State changes are logged at warn.
func New(cfg Config, logger *zap.Logger) (*CircuitBreaker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	calls, err := otel.Meter("circuit-breaker").Int64Counter("circuit_breaker_calls_total",
		metric.WithDescription("Calls through a circuit breaker by outcome"))
	if err != nil {
		return nil, fmt.Errorf("circuitbreaker: counter: %w", err)
	}

	ok := cfg.IsSuccessful
	if ok == nil {
		ok = func(err error) bool { return err == nil }
	}

	return &CircuitBreaker{
		name:   cfg.Name,
		tracer: otel.Tracer("circuit-breaker"),
		calls:  calls,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:         cfg.Name,
			MaxRequests:  cfg.HalfOpenProbes,
			Interval:     cfg.Window,
			Timeout:      cfg.Cooldown,
			ReadyToTrip:  cfg.ReadyToTrip,
			IsSuccessful: ok,
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state changed",
					zap.String("breaker", name),
					zap.Stringer("from", from),
					zap.Stringer("to", to))
			},
		}),
	}, nil
}

// Execute runs fn unless the circuit is open
func (c *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	ctx, span := c.tracer.Start(ctx, "breaker "+c.name, trace.WithAttributes(
		attribute.String("breaker.state", string(c.State())),
	))
	defer span.End()

	out, err := c.cb.Execute(func() (any, error) { return fn(ctx) })

	outcome := "success"
	switch {
	case IsOpen(err):
		outcome = "rejected"
	case err != nil:
		outcome = "failure"
	}
	c.calls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("name", c.name),
		attribute.String("outcome", outcome)))
	if err != nil {
		span.RecordError(err)
	}
	return out, err
}

// Do is Execute with a typed result.
func Do[T any](ctx context.Context, c *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	out, err := c.Execute(ctx, func(ctx context.Context) (any, error) { return fn(ctx) })
	v, _ := out.(T)
	return v, err
}

// IsOpen reports whether err is a rejection by an open or saturated
// half-open breaker.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func (c *CircuitBreaker) Name() string { return c.name }

func (c *CircuitBreaker) State() State {
	switch c.cb.State() {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	}
	return StateClosed
}

// Manager holds one breaker per downstream dependency
type Manager struct {
	logger *zap.Logger

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{logger: logger, breakers: map[string]*CircuitBreaker{}}
}

// GetOrCreate returns the breaker called name, creating it from cfg on
// first use. cfg.Name is replaced by name.
func (m *Manager) GetOrCreate(name string, cfg Config) (*CircuitBreaker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cb, ok := m.breakers[name]; ok {
		return cb, nil
	}
	cfg.Name = name
	cb, err := New(cfg, m.logger.With(zap.String("breaker", name)))
	if err != nil {
		return nil, err
	}
	m.breakers[name] = cb
	return cb, nil
}

// HealthStatus is one breaker's state for /health and metrics
type HealthStatus struct {
	Name     string `json:"name"`
	State    State  `json:"state"`
	Requests uint32 `json:"requests"`
	Failures uint32 `json:"failures"`
	Healthy  bool   `json:"healthy"`
}

// GetHealthStatus reports every breaker ordered by name
func (m *Manager) GetHealthStatus() []HealthStatus {
	m.mu.Lock()
	out := make([]HealthStatus, 0, len(m.breakers))
	for name, cb := range m.breakers {
		counts := cb.cb.Counts()
		state := cb.State()
		out = append(out, HealthStatus{
			Name:     name,
			State:    state,
			Requests: counts.Requests,
			Failures: counts.TotalFailures,
			Healthy:  state != StateOpen,
		})
	}
	m.mu.Unlock()

	slices.SortFunc(out, func(a, b HealthStatus) int { return strings.Compare(a.Name, b.Name) })
	return out
}
