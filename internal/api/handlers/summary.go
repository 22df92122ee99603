package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/drfirst/go-clinctx/internal/api/middleware"
	"github.com/drfirst/go-clinctx/internal/domain/summary"
)

const maxQuestionLength = 2000

// SummaryStore persists summaries and their documents
type SummaryStore interface {
	Save(ctx context.Context, agg *summary.Aggregate, doc *summary.Document) error
	Load(ctx context.Context, id string) (*summary.Aggregate, error)
	GetEvents(ctx context.Context, aggregateID string) ([]*summary.Event, error)
	ListByPatient(ctx context.Context, patientID string, limit int) ([]string, error)
	GetDocument(ctx context.Context, id string) (*summary.Document, error)
}

// SummaryHandler handles summary and document endpoints
type SummaryHandler struct {
	repo   SummaryStore
	logger *zap.Logger
}

// NewSummaryHandler creates a new handler
func NewSummaryHandler(repo SummaryStore, logger *zap.Logger) *SummaryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummaryHandler{repo: repo, logger: logger}
}

// Routes returns the summary routes
func (h *SummaryHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/events", h.GetEvents)
	return r
}

// DocumentRoutes returns the document routes
func (h *SummaryHandler) DocumentRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{id}", h.GetDocument)
	return r
}

// CreateRequest is the request body for requesting a summary
type CreateRequest struct {
	PatientID string `json:"patient_id"`
	Question  string `json:"question,omitempty"`
}

// SummaryResponse is the JSON form of a summary
type SummaryResponse struct {
	ID            string         `json:"id"`
	PatientID     string         `json:"patient_id"`
	Status        summary.Status `json:"status"`
	Version       int            `json:"version"`
	Question      string         `json:"question,omitempty"`
	ContextDigest string         `json:"context_digest,omitempty"`
	Sections      map[string]int `json:"sections,omitempty"`
	Skipped       int            `json:"skipped,omitempty"`
	Model         string         `json:"model,omitempty"`
	Narrative     string         `json:"narrative,omitempty"`
	Cached        bool           `json:"cached,omitempty"`
	DocumentID    string         `json:"document_id,omitempty"`
	DocumentRefID string         `json:"document_ref_id,omitempty"`
	FailedStage   string         `json:"failed_stage,omitempty"`
	FailureReason string         `json:"failure_reason,omitempty"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func newSummaryResponse(agg *summary.Aggregate) SummaryResponse {
	stage, reason := agg.Failure()
	return SummaryResponse{
		ID:            agg.ID(),
		PatientID:     agg.PatientID(),
		Status:        agg.Status(),
		Version:       agg.Version(),
		Question:      agg.Question(),
		ContextDigest: agg.ContextDigest(),
		Sections:      agg.SectionCounts(),
		Skipped:       agg.Skipped(),
		Model:         agg.Model(),
		Narrative:     agg.Narrative(),
		Cached:        agg.Cached(),
		DocumentID:    agg.DocumentID(),
		DocumentRefID: agg.DocumentRefID(),
		FailedStage:   stage,
		FailureReason: reason,
		UpdatedAt:     agg.UpdatedAt(),
	}
}

// Create handles POST /summaries. The summary is generated asynchronously;
// clients poll GET /summaries/{id}.
func (h *SummaryHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("summary-handler").Start(r.Context(), "create_summary")
	defer span.End()

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.PatientID = strings.TrimSpace(req.PatientID)
	req.Question = strings.TrimSpace(req.Question)
	if req.PatientID == "" {
		jsonError(w, "patient_id is required", http.StatusBadRequest)
		return
	}
	if len(req.Question) > maxQuestionLength {
		jsonError(w, "question is too long", http.StatusBadRequest)
		return
	}

	id := uuid.New().String()
	span.SetAttributes(attribute.String("summary_id", id), attribute.String("patient_id", req.PatientID))

	agg := summary.NewAggregate(id)
	if err := agg.Request(req.PatientID, req.Question, middleware.GetClinician(ctx), middleware.GetRequestID(ctx)); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.repo.Save(ctx, agg, nil); err != nil {
		span.RecordError(err)
		h.logger.Error("save summary failed", zap.String("summary_id", id), zap.Error(err))
		jsonError(w, "failed to save summary", http.StatusInternalServerError)
		return
	}

	h.logger.Info("summary requested",
		zap.String("summary_id", id),
		zap.String("patient_id", req.PatientID),
		zap.String("request_id", middleware.GetRequestID(ctx)),
	)

	w.Header().Set("Location", "/api/v1/summaries/"+id)
	writeJSON(w, http.StatusAccepted, newSummaryResponse(agg))
}

// Get handles GET /summaries/{id}
func (h *SummaryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	agg, err := h.repo.Load(r.Context(), id)
	if err != nil {
		h.notFoundOr500(w, "summary", id, err)
		return
	}
	writeJSON(w, http.StatusOK, newSummaryResponse(agg))
}

// GetEvents handles GET /summaries/{id}/events
func (h *SummaryHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	events, err := h.repo.GetEvents(r.Context(), id)
	if err != nil {
		h.logger.Error("get events failed", zap.String("summary_id", id), zap.Error(err))
		jsonError(w, "failed to get events", http.StatusInternalServerError)
		return
	}
	if len(events) == 0 {
		jsonError(w, "summary not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// ListForPatient handles GET /patients/{id}/summaries
func (h *SummaryHandler) ListForPatient(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "id")
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 100 {
			jsonError(w, "limit must be between 1 and 100", http.StatusBadRequest)
			return
		}
		limit = n
	}

	ids, err := h.repo.ListByPatient(r.Context(), patientID, limit)
	if err != nil {
		h.logger.Error("list summaries failed", zap.String("patient_id", patientID), zap.Error(err))
		jsonError(w, "failed to list summaries", http.StatusInternalServerError)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"patient_id": patientID, "summaries": ids})
}

// GetDocument handles GET /documents/{id}, returning the CDA XML
func (h *SummaryHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	doc, err := h.repo.GetDocument(r.Context(), id)
	if err != nil {
		h.notFoundOr500(w, "document", id, err)
		return
	}

	w.Header().Set("Content-Type", doc.MediaType)
	w.Header().Set("Content-Disposition", `inline; filename="`+doc.ID+`.xml"`)
	w.Write(doc.Content)
}

func (h *SummaryHandler) notFoundOr500(w http.ResponseWriter, what, id string, err error) {
	if errors.Is(err, summary.ErrNotFound) {
		jsonError(w, what+" not found", http.StatusNotFound)
		return
	}
	h.logger.Error("load "+what+" failed", zap.String("id", id), zap.Error(err))
	jsonError(w, "failed to load "+what, http.StatusInternalServerError)
}
