package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/drfirst/go-clinctx/internal/api/middleware"
	"github.com/drfirst/go-clinctx/internal/domain/patientcontext"
	"github.com/drfirst/go-clinctx/internal/fhir/r4"
	"github.com/drfirst/go-clinctx/internal/infrastructure/fhirserver"
	"github.com/drfirst/go-clinctx/internal/orchestrator"
)

const (
	defaultPatientCount = 50
	maxPatientCount     = 500
)

// ContextBuilder aggregates a patient's records
type ContextBuilder interface {
	Build(ctx context.Context, patientID string) (*orchestrator.Built, error)
}

// PatientLister lists patients on the FHIR server
type PatientLister interface {
	ListPatients(ctx context.Context, count int) ([]r4.Patient, error)
}

// ContextHandler serves patient lists and clinical contexts
type ContextHandler struct {
	builder  ContextBuilder
	patients PatientLister
	logger   *zap.Logger
}

// NewContextHandler creates a new handler
func NewContextHandler(builder ContextBuilder, patients PatientLister, logger *zap.Logger) *ContextHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContextHandler{builder: builder, patients: patients, logger: logger}
}

// PatientSummary is one row of the patient list
type PatientSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Gender    string `json:"gender,omitempty"`
	BirthDate string `json:"birth_date,omitempty"`
}

// List handles GET /patients
func (h *ContextHandler) List(w http.ResponseWriter, r *http.Request) {
	count := defaultPatientCount
	if v := r.URL.Query().Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonError(w, "count must be a positive integer", http.StatusBadRequest)
			return
		}
		count = min(n, maxPatientCount)
	}

	patients, err := h.patients.ListPatients(r.Context(), count)
	if err != nil {
		h.logger.Error("list patients failed", zap.Error(err))
		jsonError(w, "FHIR server unavailable", http.StatusBadGateway)
		return
	}

	out := make([]PatientSummary, 0, len(patients))
	for i := range patients {
		d := patientcontext.DemographicsFromPatient(&patients[i])
		row := PatientSummary{ID: d.PatientID, Name: d.Name, Gender: d.Gender.Code}
		if !d.BirthDate.IsZero() {
			row.BirthDate = d.BirthDate.String()
		}
		out = append(out, row)
	}
	writeJSON(w, http.StatusOK, out)
}

// SkippedRecord describes a record left out of a context
type SkippedRecord struct {
	Kind    string `json:"kind"`
	ID      string `json:"id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ContextResponse is the JSON form of an aggregated context
type ContextResponse struct {
	PatientID      string          `json:"patient_id"`
	Digest         string          `json:"digest"`
	Sections       map[string]int  `json:"sections"`
	Skipped        []SkippedRecord `json:"skipped,omitempty"`
	Unavailable    []string        `json:"unavailable,omitempty"`
	DecodeFailures int             `json:"decode_failures,omitempty"`
	Text           string          `json:"text"`
}

// Context handles GET /patients/{id}/context. ?format=text returns the
// rendered context as plain text.
func (h *ContextHandler) Context(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("context-handler").Start(r.Context(), "get_context")
	defer span.End()

	id := chi.URLParam(r, "id")
	span.SetAttributes(attribute.String("patient_id", id))

	built, err := h.builder.Build(ctx, id)
	switch {
	case err == nil:
	case fhirserver.IsNotFound(err):
		jsonError(w, "patient not found", http.StatusNotFound)
		return
	case errors.Is(err, patientcontext.ErrEmptyContext):
		jsonError(w, "no clinical data available for patient", http.StatusUnprocessableEntity)
		return
	default:
		span.RecordError(err)
		h.logger.Error("build context failed",
			zap.String("patient_id", id),
			zap.String("request_id", middleware.GetRequestID(ctx)),
			zap.Error(err))
		jsonError(w, "failed to build clinical context", http.StatusBadGateway)
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(built.Text))
		return
	}

	resp := ContextResponse{
		PatientID:      id,
		Digest:         built.Digest,
		Sections:       built.SectionCounts(),
		DecodeFailures: len(built.DecodeErrors),
		Text:           built.Text,
	}
	for _, s := range built.Skipped {
		resp.Skipped = append(resp.Skipped, SkippedRecord{Kind: string(s.Kind), ID: s.ID, Code: s.Code, Message: s.Message})
	}
	for _, k := range built.Unavailable {
		resp.Unavailable = append(resp.Unavailable, string(k))
	}
	writeJSON(w, http.StatusOK, resp)
}
