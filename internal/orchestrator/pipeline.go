package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-clinctx/internal/cda"
	"github.com/drfirst/go-clinctx/internal/domain/summary"
	"github.com/drfirst/go-clinctx/internal/fhir/r4"
	"github.com/drfirst/go-clinctx/internal/infrastructure/cache"
	"github.com/drfirst/go-clinctx/internal/infrastructure/llm"
	"github.com/drfirst/go-clinctx/internal/observability/metrics"
)

// Narrator generates narratives from a prompt
type Narrator interface {
	Model() string
	Narrate(ctx context.Context, p llm.Prompt) (*llm.Completion, error)
}

// NarrativeCache stores narratives by model, context digest and question
type NarrativeCache interface {
	Get(ctx context.Context, model, digest, question string) (*cache.Narrative, bool, error)
	Put(ctx context.Context, digest, question string, n *cache.Narrative) error
}

// DocumentArchive keeps emitted documents
type DocumentArchive interface {
	Enabled() bool
	Put(ctx context.Context, patientID, documentID string, xml []byte) (string, error)
}

// DocumentPublisher posts resources back to the FHIR server. A resource
// matching the ifNoneExist search is returned instead of created again.
type DocumentPublisher interface {
	CreateIfNoneExist(ctx context.Context, resourceType string, resource interface{}, ifNoneExist string) (json.RawMessage, error)
}

// Store persists summaries
type Store interface {
	Load(ctx context.Context, id string) (*summary.Aggregate, error)
	Save(ctx context.Context, agg *summary.Aggregate, doc *summary.Document) error
}

// Deps are the pipeline collaborators. Cache, Archive, Publisher and Store
// are optional.
type Deps struct {
	Builder   *Builder
	Narrator  Narrator
	Emitter   *cda.Emitter
	Cache     NarrativeCache
	Archive   DocumentArchive
	Publisher DocumentPublisher
	Store     Store
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

// Result is the outcome of one pipeline run
type Result struct {
	Summary   *summary.Aggregate
	Built     *Built
	Narrative string
	Document  *cda.Document
}

// Pipeline turns a summary request into a stored consultation note.
// It keeps no per-run state and may be shared by workers.
type Pipeline struct {
	Deps
	tracer trace.Tracer
}

// New creates a pipeline
func New(deps Deps) (*Pipeline, error) {
	if deps.Builder == nil || deps.Narrator == nil || deps.Emitter == nil {
		return nil, errors.New("builder, narrator and emitter are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Pipeline{Deps: deps, tracer: otel.Tracer("summary-pipeline")}, nil
}

// Run executes the request. Permanent failures are recorded on the summary;
// transient ones are returned without touching it so the caller may retry.
// Requests for completed summaries return the stored state.
func (p *Pipeline) Run(ctx context.Context, req summary.RequestMessage) (*Result, error) {
	ctx, span := p.tracer.Start(ctx, "summary_pipeline", trace.WithAttributes(
		attribute.String("summary_id", req.SummaryID),
		attribute.String("patient_id", req.PatientID),
	))
	defer span.End()

	agg, err := p.load(ctx, req)
	if err != nil {
		return nil, err
	}
	res := &Result{Summary: agg}
	if agg.Status() == summary.StatusCompleted {
		return res, nil
	}
	if agg.Status() != summary.StatusRequested {
		return res, fmt.Errorf("summary %s is %s: %w", agg.ID(), agg.Status(), summary.ErrInvalidState)
	}

	logger := p.Logger.With(
		zap.String("summary_id", agg.ID()),
		zap.String("patient_id", agg.PatientID()))

	built, err := p.Builder.Build(ctx, agg.PatientID())
	if err != nil {
		return p.fail(ctx, res, StageOf(err), err, logger)
	}
	res.Built = built
	if err := agg.RecordContext(built.Digest, built.SectionCounts(), len(built.Skipped), len(built.DecodeErrors)); err != nil {
		return res, err
	}

	gen, err := p.generate(ctx, built, agg.Question(), logger)
	if err != nil {
		return p.fail(ctx, res, summary.StageGenerate, err, logger)
	}
	res.Narrative = gen.text
	if err := agg.RecordNarrative(gen.model, gen.text, gen.cached); err != nil {
		return res, err
	}

	doc, archiveKey, refID, err := p.emit(ctx, agg, built, gen, logger)
	if err != nil {
		return p.fail(ctx, res, summary.StageEmit, err, logger)
	}
	res.Document = doc
	if err := agg.MarkEmitted(doc.ID, archiveKey, refID); err != nil {
		return res, err
	}

	if p.Store != nil {
		err := p.Store.Save(ctx, agg, &summary.Document{
			ID:         doc.ID,
			SummaryID:  agg.ID(),
			PatientID:  agg.PatientID(),
			MediaType:  cda.MediaType,
			Content:    doc.XML,
			ArchiveKey: archiveKey,
			CreatedAt:  doc.CreatedAt,
		})
		if err != nil {
			span.RecordError(err)
			return res, fmt.Errorf("save summary: %w", err)
		}
	}

	p.Metrics.RecordSummary("")
	logger.Info("summary completed",
		zap.String("document_id", doc.ID),
		zap.Bool("cached", gen.cached),
		zap.String("archive_key", archiveKey))
	return res, nil
}

// Abandon records a failure for a summary whose retries ran out.
func (p *Pipeline) Abandon(ctx context.Context, summaryID, stage, reason string) error {
	if p.Store == nil {
		return nil
	}
	agg, err := p.Store.Load(ctx, summaryID)
	if err != nil {
		return err
	}
	if err := agg.Fail(stage, reason); err != nil {
		if errors.Is(err, summary.ErrTerminal) {
			return nil
		}
		return err
	}
	p.Metrics.RecordSummary(stage)
	return p.Store.Save(ctx, agg, nil)
}

func (p *Pipeline) load(ctx context.Context, req summary.RequestMessage) (*summary.Aggregate, error) {
	if p.Store != nil {
		agg, err := p.Store.Load(ctx, req.SummaryID)
		if err == nil {
			return agg, nil
		}
		if !errors.Is(err, summary.ErrNotFound) {
			return nil, fmt.Errorf("load summary: %w", err)
		}
	}

	agg := summary.NewAggregate(req.SummaryID)
	if err := agg.Request(req.PatientID, req.Question, req.RequestedBy, ""); err != nil {
		return nil, err
	}
	return agg, nil
}

func (p *Pipeline) fail(ctx context.Context, res *Result, stage string, err error, logger *zap.Logger) (*Result, error) {
	if stage == "" {
		stage = summary.StageFetch
	}
	if !IsPermanent(err) {
		logger.Warn("summary stage failed, retryable", zap.String("stage", stage), zap.Error(err))
		return res, &StageError{Stage: stage, Err: err}
	}

	logger.Error("summary failed", zap.String("stage", stage), zap.Error(err))
	p.Metrics.RecordSummary(stage)
	if ferr := res.Summary.Fail(stage, err.Error()); ferr == nil && p.Store != nil {
		if serr := p.Store.Save(ctx, res.Summary, nil); serr != nil {
			logger.Error("save failed summary", zap.Error(serr))
		}
	}

	var se *StageError
	if errors.As(err, &se) {
		return res, err
	}
	return res, &StageError{Stage: stage, Err: err}
}

type narrative struct {
	model  string
	text   string
	cached bool
}

func (p *Pipeline) generate(ctx context.Context, built *Built, question string, logger *zap.Logger) (*narrative, error) {
	start := time.Now()
	defer p.Metrics.ObserveStage(summary.StageGenerate, start)

	model := p.Narrator.Model()
	if p.Cache != nil {
		hit, ok, err := p.Cache.Get(ctx, model, built.Digest, question)
		if err != nil {
			logger.Warn("narrative cache read failed", zap.Error(err))
		}
		p.Metrics.RecordCache(ok)
		if ok {
			return &narrative{model: hit.Model, text: hit.Text, cached: true}, nil
		}
	}

	d := built.Context.Demographics()
	out, err := p.Narrator.Narrate(ctx, llm.Prompt{
		PatientID:   d.PatientID,
		PatientName: d.Name,
		Context:     built.Text,
		Question:    question,
	})
	if err != nil {
		return nil, err
	}

	if p.Cache != nil {
		err := p.Cache.Put(ctx, built.Digest, question, &cache.Narrative{
			Model:       model,
			Text:        out.Text,
			GeneratedAt: time.Now().UTC(),
		})
		if err != nil {
			logger.Warn("narrative cache write failed", zap.Error(err))
		}
	}
	return &narrative{model: out.Model, text: out.Text}, nil
}

// emit renders the CDA document, archives it and posts the
// DocumentReference. Archive and post failures are logged and leave the
// corresponding reference empty. The document id is derived from the summary
// id, so a run retried after a failed save overwrites the same archive object
// and finds its earlier DocumentReference.
func (p *Pipeline) emit(ctx context.Context, agg *summary.Aggregate, built *Built, n *narrative, logger *zap.Logger) (*cda.Document, string, string, error) {
	start := time.Now()
	defer p.Metrics.ObserveStage(summary.StageEmit, start)

	doc, err := p.Emitter.Emit(cda.Note{
		DocumentID:   cda.DocumentID(agg.ID()),
		Question:     agg.Question(),
		Narrative:    n.text,
		Context:      built.Text,
		Model:        n.model,
		Demographics: built.Context.Demographics(),
	})
	if err != nil {
		return nil, "", "", err
	}

	var archiveKey string
	if p.Archive != nil && p.Archive.Enabled() {
		archiveKey, err = p.Archive.Put(ctx, doc.PatientID, doc.ID, doc.XML)
		if err != nil {
			logger.Warn("archive document failed", zap.String("document_id", doc.ID), zap.Error(err))
			archiveKey = ""
		}
	}

	var refID string
	if p.Publisher != nil {
		ref := p.Emitter.EmitDocumentReference(doc)
		ident := ref.MasterIdentifier
		raw, err := p.Publisher.CreateIfNoneExist(ctx, r4.TypeDocumentReference, ref, "identifier="+ident.System+"|"+ident.Value)
		if err != nil {
			logger.Warn("post DocumentReference failed", zap.String("document_id", doc.ID), zap.Error(err))
		} else {
			var created struct {
				ID string `json:"id"`
			}
			if json.Unmarshal(raw, &created) == nil && created.ID != "" {
				refID = r4.TypeDocumentReference + "/" + created.ID
			}
		}
	}

	return doc, archiveKey, refID, nil
}
