package patientcontext

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is.
var (
	ErrEmptyContext = errors.New("empty clinical context")
	ErrNilResource  = errors.New("resource is required")
	ErrKindMismatch = errors.New("resource kind mismatch")
)

// EmptyContextError is returned when demographics are entirely unavailable,
// which is the only condition that prevents a context from being generated.
type EmptyContextError struct {
	PatientID string
	Field     string
	Code      string
	Message   string
}

func (e *EmptyContextError) Error() string {
	if e.PatientID != "" {
		return fmt.Sprintf("%s: %s (patient %s)", e.Field, e.Message, e.PatientID)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is matches ErrEmptyContext.
func (e *EmptyContextError) Is(target error) bool {
	return target == ErrEmptyContext
}
