package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

var errDown = errors.New("upstream down")

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cfg := DefaultConfig("fhir")
	cfg.ConsecutiveFailures = 3
	cfg.Cooldown = time.Minute

	cb, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		_, err := cb.Execute(context.Background(), func(context.Context) (any, error) {
			return nil, errDown
		})
		if !errors.Is(err, errDown) {
			t.Fatalf("call %d error = %v, want errDown", i, err)
		}
	}

	if cb.State() != StateOpen {
		t.Fatalf("State() = %s, want open", cb.State())
	}

	called := false
	_, err = cb.Execute(context.Background(), func(context.Context) (any, error) {
		called = true
		return nil, nil
	})
	if !IsOpen(err) {
		t.Errorf("error = %v, want open circuit", err)
	}
	if called {
		t.Error("function ran while the circuit was open")
	}
}

func TestIsSuccessfulKeepsCircuitClosed(t *testing.T) {
	errNotFound := errors.New("404")
	cfg := DefaultConfig("fhir")
	cfg.ConsecutiveFailures = 1
	cfg.IsSuccessful = func(err error) bool { return err == nil || errors.Is(err, errNotFound) }

	cb, _ := New(cfg, nil)
	for i := 0; i < 5; i++ {
		_, _ = cb.Execute(context.Background(), func(context.Context) (any, error) {
			return nil, errNotFound
		})
	}
	if cb.State() != StateClosed {
		t.Errorf("State() = %s, want closed", cb.State())
	}
}

func TestDoKeepsType(t *testing.T) {
	cb, _ := New(DefaultConfig("llm"), nil)

	got, err := Do(context.Background(), cb, func(context.Context) (string, error) {
		return "narrative", nil
	})
	if err != nil || got != "narrative" {
		t.Fatalf("Do() = %q, %v", got, err)
	}

	n, err := Do(context.Background(), cb, func(context.Context) (int, error) {
		return 0, errDown
	})
	if n != 0 || !errors.Is(err, errDown) {
		t.Errorf("Do() = %d, %v", n, err)
	}
}

func TestReadyToTripRatio(t *testing.T) {
	cfg := DefaultConfig("x")
	if cfg.ReadyToTrip(gobreaker.Counts{Requests: 20, TotalFailures: 11}) {
		t.Error("55% failures should not trip at 60% ratio")
	}
	if !cfg.ReadyToTrip(gobreaker.Counts{Requests: 20, TotalFailures: 12}) {
		t.Error("60% failures should trip")
	}
}

func TestManagerHealthSorted(t *testing.T) {
	m := NewManager(nil)
	if _, err := m.GetOrCreate("llm", DefaultConfig("")); err != nil {
		t.Fatal(err)
	}
	a, _ := m.GetOrCreate("fhir", DefaultConfig(""))
	b, _ := m.GetOrCreate("fhir", DefaultConfig(""))
	if a != b {
		t.Error("GetOrCreate() returned a second breaker for the same name")
	}

	statuses := m.GetHealthStatus()
	if len(statuses) != 2 || statuses[0].Name != "fhir" || statuses[1].Name != "llm" {
		t.Fatalf("GetHealthStatus() = %+v", statuses)
	}
	if !statuses[0].Healthy {
		t.Error("new breaker should be healthy")
	}
}
