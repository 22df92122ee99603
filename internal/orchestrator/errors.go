package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/drfirst/go-clinctx/internal/cda"
	"github.com/drfirst/go-clinctx/internal/domain/patientcontext"
	"github.com/drfirst/go-clinctx/internal/domain/summary"
	"github.com/drfirst/go-clinctx/internal/infrastructure/fhirserver"
	"github.com/drfirst/go-clinctx/internal/infrastructure/llm"
)

// StageError reports the pipeline stage an error stopped at
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// StageOf returns the stage recorded in err, or "".
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// IsPermanent reports whether retrying err cannot succeed: missing patients,
// empty contexts, rejected requests, unrenderable documents and summaries
// that are no longer open.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, patientcontext.ErrEmptyContext) ||
		errors.Is(err, llm.ErrEmptyCompletion) ||
		errors.Is(err, cda.ErrNoPatient) ||
		errors.Is(err, summary.ErrInvalidState) {
		return true
	}

	var fe *fhirserver.StatusError
	if errors.As(err, &fe) {
		return fe.StatusCode < 500 && fe.StatusCode != http.StatusTooManyRequests
	}
	var ae *llm.APIError
	if errors.As(err, &ae) {
		return ae.StatusCode < 500 && ae.StatusCode != http.StatusTooManyRequests
	}
	return false
}
