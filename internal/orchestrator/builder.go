// Package orchestrator fetches a patient's records, aggregates them into a
// clinical context and drives the summary pipeline.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/drfirst/go-clinctx/internal/clinical/adapter"
	"github.com/drfirst/go-clinctx/internal/domain/patientcontext"
	"github.com/drfirst/go-clinctx/internal/domain/summary"
	"github.com/drfirst/go-clinctx/internal/fhir/r4"
	"github.com/drfirst/go-clinctx/internal/infrastructure/fhirserver"
	"github.com/drfirst/go-clinctx/internal/observability/metrics"
)

// Source is the FHIR server the builder reads from
type Source interface {
	GetPatient(ctx context.Context, id string) (*r4.Patient, error)
	SearchByPatient(ctx context.Context, resourceType, patientID string, extra url.Values) ([]json.RawMessage, error)
}

// Medications are not patient-scoped in FHIR search; they arrive as
// includes of the MedicationRequest search.
var searchKinds = []adapter.Kind{
	adapter.KindCondition,
	adapter.KindMedicationRequest,
	adapter.KindAllergyIntolerance,
	adapter.KindObservation,
	adapter.KindProcedure,
	adapter.KindImmunization,
	adapter.KindDevice,
	adapter.KindCarePlan,
	adapter.KindDiagnosticReport,
	adapter.KindDocumentReference,
}

var searchParams = map[adapter.Kind]url.Values{
	adapter.KindMedicationRequest: {"_include": {"MedicationRequest:medication"}},
}

// Built is an aggregated patient context ready for generation
type Built struct {
	Context      *patientcontext.PatientContext
	Text         string
	Digest       string
	Skipped      []*adapter.MalformedRecordError
	DecodeErrors []error
	Unavailable  []adapter.Kind
}

// SectionCounts returns record counts keyed by resource type, omitting
// empty kinds.
func (b *Built) SectionCounts() map[string]int {
	out := make(map[string]int)
	for kind, n := range b.Context.Counts() {
		if n > 0 {
			out[string(kind)] = n
		}
	}
	return out
}

// Builder assembles patient contexts from the FHIR server
type Builder struct {
	source      Source
	metrics     *metrics.Metrics
	logger      *zap.Logger
	tracer      trace.Tracer
	concurrency int
}

// NewBuilder creates a builder. concurrency bounds parallel searches.
func NewBuilder(source Source, m *metrics.Metrics, concurrency int, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Builder{
		source:      source,
		metrics:     m,
		logger:      logger,
		tracer:      otel.Tracer("context-builder"),
		concurrency: concurrency,
	}
}

// Build fetches every supported record of the patient and renders the
// context. Malformed records are skipped; kinds the server refuses to search
// are reported in Unavailable.
func (b *Builder) Build(ctx context.Context, patientID string) (*Built, error) {
	ctx, span := b.tracer.Start(ctx, "build_context",
		trace.WithAttributes(attribute.String("patient_id", patientID)))
	defer span.End()

	start := time.Now()
	patient, err := b.source.GetPatient(ctx, patientID)
	if err != nil {
		span.RecordError(err)
		return nil, &StageError{Stage: summary.StageFetch, Err: err}
	}

	results := make([][]json.RawMessage, len(searchKinds))
	refused := make([]bool, len(searchKinds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, kind := range searchKinds {
		g.Go(func() error {
			raw, err := b.source.SearchByPatient(gctx, string(kind), patientID, searchParams[kind])
			var se *fhirserver.StatusError
			if errors.As(err, &se) && se.StatusCode < 500 && se.StatusCode != http.StatusTooManyRequests {
				refused[i] = true
				b.logger.Warn("search refused by server",
					zap.String("patient_id", patientID),
					zap.String("kind", string(kind)),
					zap.Int("status", se.StatusCode))
				return nil
			}
			if err != nil {
				return fmt.Errorf("search %s: %w", kind, err)
			}
			results[i] = raw
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, &StageError{Stage: summary.StageFetch, Err: err}
	}
	b.metrics.ObserveStage(summary.StageFetch, start)

	start = time.Now()
	built := &Built{Context: patientcontext.FromPatient(patient)}
	for i, kind := range searchKinds {
		if refused[i] {
			built.Unavailable = append(built.Unavailable, kind)
		}
	}

	seenMedication := make(map[string]bool)
	for _, raw := range results {
		for _, rec := range raw {
			b.adapt(built, patientID, rec, seenMedication)
		}
	}

	text, err := built.Context.GenerateClinicalContext()
	if err != nil {
		b.metrics.RecordContext(true)
		span.RecordError(err)
		return nil, &StageError{Stage: summary.StageContext, Err: err}
	}
	built.Text = text
	built.Digest = patientcontext.DigestText(text)
	built.DecodeErrors = built.Context.DecodeErrors()

	for _, derr := range built.DecodeErrors {
		var pde *adapter.PayloadDecodeError
		if errors.As(derr, &pde) {
			b.metrics.RecordDecodeFailure(string(pde.Kind))
		}
		b.logger.Warn("attachment payload unavailable",
			zap.String("patient_id", patientID),
			zap.Error(derr))
	}

	b.metrics.RecordContext(false)
	b.metrics.ObserveStage(summary.StageContext, start)

	span.SetAttributes(
		attribute.Int("context.records", built.Context.Len()),
		attribute.Int("context.skipped", len(built.Skipped)),
	)
	b.logger.Info("clinical context built",
		zap.String("patient_id", patientID),
		zap.Int("records", built.Context.Len()),
		zap.Int("skipped", len(built.Skipped)),
		zap.Int("decode_failures", len(built.DecodeErrors)))

	return built, nil
}

func (b *Builder) adapt(built *Built, patientID string, rec json.RawMessage, seenMedication map[string]bool) {
	r, err := adapter.Parse(rec)
	if err != nil {
		var mre *adapter.MalformedRecordError
		if !errors.As(err, &mre) {
			mre = &adapter.MalformedRecordError{Code: "UNKNOWN", Message: err.Error(), Cause: err}
		}
		built.Skipped = append(built.Skipped, mre)
		b.metrics.RecordSkipped(string(mre.Kind), mre.Code)
		b.logger.Warn("skipping malformed record",
			zap.String("patient_id", patientID),
			zap.String("kind", string(mre.Kind)),
			zap.String("resource_id", mre.ID),
			zap.String("code", mre.Code),
			zap.String("field", mre.Field))
		return
	}

	if r.Kind() == adapter.KindMedication {
		if seenMedication[r.ID()] {
			return
		}
		seenMedication[r.ID()] = true
	}

	if err := built.Context.Add(r); err != nil {
		b.logger.Error("add record failed",
			zap.String("patient_id", patientID),
			zap.String("kind", string(r.Kind())),
			zap.String("resource_id", r.ID()),
			zap.Error(err))
		return
	}
	b.metrics.RecordAdapted(string(r.Kind()))
}
