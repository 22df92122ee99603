package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/drfirst/go-clinctx/internal/cda"
	"github.com/drfirst/go-clinctx/internal/domain/patientcontext"
	"github.com/drfirst/go-clinctx/internal/domain/summary"
	"github.com/drfirst/go-clinctx/internal/infrastructure/fhirserver"
	"github.com/drfirst/go-clinctx/internal/infrastructure/llm"
)

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", fmt.Errorf("fetch: %w", context.Canceled), false},
		{"plain", errors.New("connection reset"), false},
		{"empty context", &StageError{Stage: summary.StageContext, Err: patientcontext.ErrEmptyContext}, true},
		{"empty completion", llm.ErrEmptyCompletion, true},
		{"no patient", cda.ErrNoPatient, true},
		{"closed summary", fmt.Errorf("summary s1 is failed: %w", summary.ErrInvalidState), true},
		{"fhir 404", &fhirserver.StatusError{StatusCode: http.StatusNotFound}, true},
		{"fhir 429", &fhirserver.StatusError{StatusCode: http.StatusTooManyRequests}, false},
		{"fhir 502", &fhirserver.StatusError{StatusCode: http.StatusBadGateway}, false},
		{"llm 401", &llm.APIError{StatusCode: http.StatusUnauthorized}, true},
		{"llm 500", &llm.APIError{StatusCode: http.StatusInternalServerError}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPermanent(tt.err); got != tt.want {
				t.Errorf("IsPermanent(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestStageOf(t *testing.T) {
	err := fmt.Errorf("task failed after 3 attempts: %w", &StageError{Stage: summary.StageEmit, Err: errors.New("x")})
	if got := StageOf(err); got != summary.StageEmit {
		t.Errorf("StageOf() = %q", got)
	}
	if got := StageOf(errors.New("x")); got != "" {
		t.Errorf("StageOf(plain) = %q", got)
	}
}
