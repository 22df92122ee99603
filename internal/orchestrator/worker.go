package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/drfirst/go-clinctx/internal/domain/summary"
	"github.com/drfirst/go-clinctx/internal/infrastructure/redpanda"
	"github.com/drfirst/go-clinctx/internal/observability/metrics"
	"github.com/drfirst/go-clinctx/pkg/idempotency"
	"github.com/drfirst/go-clinctx/pkg/workerpool"
)

// HandlerName identifies the worker in the idempotency inbox
const HandlerName = "summary-worker"

// Inbox deduplicates redelivered requests
type Inbox interface {
	Process(ctx context.Context, key, handlerName string, payload json.RawMessage, fn idempotency.ProcessFunc) (*idempotency.ProcessResult, error)
}

// TaskRunner executes a task and waits for its result
type TaskRunner interface {
	SubmitWait(ctx context.Context, task *workerpool.Task) (*workerpool.Result, error)
}

// Worker consumes summary requests. Each request runs once through the inbox;
// transient failures are retried by the pool and the summary is marked failed
// once retries run out.
type Worker struct {
	pipeline *Pipeline
	runner   TaskRunner
	inbox    Inbox
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewWorker creates a worker. runner is normally a workerpool.Pool running
// pipeline.RunTask. A nil inbox processes every delivery.
func NewWorker(pipeline *Pipeline, runner TaskRunner, inbox Inbox, m *metrics.Metrics, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{pipeline: pipeline, runner: runner, inbox: inbox, metrics: m, logger: logger}
}

// RunTask is the workerpool function for the pipeline. The task payload is a
// summary.RequestMessage.
func (p *Pipeline) RunTask(ctx context.Context, task *workerpool.Task) *workerpool.Result {
	req, ok := task.Payload.(summary.RequestMessage)
	if !ok {
		return &workerpool.Result{Error: workerpool.Permanent(fmt.Errorf("unexpected payload %T", task.Payload))}
	}

	res, err := p.Run(ctx, req)
	if err != nil {
		if IsPermanent(err) {
			err = workerpool.Permanent(err)
		}
		return &workerpool.Result{Error: err}
	}
	return &workerpool.Result{Success: true, Data: res}
}

// completion is stored in the inbox for finished requests
type completion struct {
	SummaryID  string         `json:"summary_id"`
	Status     summary.Status `json:"status"`
	DocumentID string         `json:"document_id,omitempty"`
}

// HandleMessage processes one summary.requests record. It returns an error
// only when the record should be redelivered.
func (w *Worker) HandleMessage(ctx context.Context, msg *redpanda.ConsumedMessage) error {
	w.metrics.RecordConsumed()

	var req summary.RequestMessage
	if err := json.Unmarshal(msg.Value, &req); err != nil || req.SummaryID == "" || req.PatientID == "" {
		w.logger.Error("dropping malformed summary request",
			zap.String("topic", msg.Topic),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return nil
	}

	key := req.IdempotencyKey
	if key == "" {
		key = req.SummaryID
	}
	logger := w.logger.With(zap.String("summary_id", req.SummaryID), zap.String("patient_id", req.PatientID))

	process := func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
		return w.process(ctx, req, logger)
	}

	var err error
	if w.inbox != nil {
		var pr *idempotency.ProcessResult
		pr, err = w.inbox.Process(ctx, key, HandlerName, msg.Value, process)
		if err == nil {
			logger.Debug("summary request handled", zap.Bool("duplicate", pr.Duplicate), zap.Int("attempt", pr.Attempt))
		}
	} else {
		_, err = process(ctx, msg.Value)
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, idempotency.ErrMessageInProgress),
		errors.Is(err, idempotency.ErrPreviouslyFailed):
		logger.Info("summary request already handled", zap.Error(err))
		return nil
	case idempotency.IsTerminal(err):
		return nil
	default:
		return err
	}
}

func (w *Worker) process(ctx context.Context, req summary.RequestMessage, logger *zap.Logger) (json.RawMessage, error) {
	result, err := w.runner.SubmitWait(ctx, &workerpool.Task{ID: req.SummaryID, Payload: req})
	if err != nil {
		return nil, err
	}

	if result.Success {
		out := completion{SummaryID: req.SummaryID, Status: summary.StatusCompleted}
		if res, ok := result.Data.(*Result); ok && res.Summary != nil {
			out.Status = res.Summary.Status()
			out.DocumentID = res.Summary.DocumentID()
		}
		return json.Marshal(out)
	}

	// the pipeline has already recorded permanent failures
	if workerpool.IsPermanent(result.Error) {
		return nil, idempotency.Terminal(result.Error)
	}
	if ctx.Err() != nil {
		return nil, result.Error
	}

	stage := StageOf(result.Error)
	if stage == "" {
		stage = summary.StageFetch
	}
	logger.Error("summary retries exhausted",
		zap.String("stage", stage),
		zap.Int("attempts", result.Attempts),
		zap.Error(result.Error))
	err = w.pipeline.Abandon(ctx, req.SummaryID, stage, result.Error.Error())
	if err != nil && !errors.Is(err, summary.ErrNotFound) {
		return nil, fmt.Errorf("abandon summary: %w", err)
	}
	return nil, idempotency.Terminal(result.Error)
}
