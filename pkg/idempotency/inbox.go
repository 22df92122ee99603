// Package idempotency provides the inbox used by the summary worker so a
// redelivered summary request is generated once.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Status is the processing state of an inbox entry
type Status string

const (
	StatusStarted     Status = "STARTED"
	StatusFinished    Status = "FINISHED"
	StatusRecoverable Status = "RECOVERABLE"
	StatusFailed      Status = "FAILED"
)

var (
	// ErrMessageInProgress means another delivery holds the entry
	ErrMessageInProgress = errors.New("message in progress by another handler")
	// ErrPreviouslyFailed means the message already failed terminally
	ErrPreviouslyFailed = errors.New("message previously failed permanently")
)

// InboxConfig holds configuration for the inbox
type InboxConfig struct {
	// TTL is how long entries are kept after they are first seen
	TTL             time.Duration
	CleanupInterval time.Duration
	// StaleAfter is how long a STARTED entry may go without an update
	// before another delivery can take it over.
	StaleAfter time.Duration
	// MaxAttempts fails an entry after this many recoverable errors.
	// Zero never gives up.
	MaxAttempts int
	// IsTerminal classifies handler errors that must not be retried.
	// Nil means only errors wrapped with Terminal.
	IsTerminal func(err error) bool
}

// DefaultInboxConfig returns defaults for summary generation, where a run
// against a slow model can take minutes.
func DefaultInboxConfig() InboxConfig {
	return InboxConfig{
		TTL:             7 * 24 * time.Hour,
		CleanupInterval: time.Hour,
		StaleAfter:      10 * time.Minute,
		MaxAttempts:     10,
	}
}

// Inbox manages idempotent message processing backed by PostgreSQL
type Inbox struct {
	pool   *pgxpool.Pool
	config InboxConfig
	logger *zap.Logger
	tracer trace.Tracer

	cancel context.CancelFunc
	done   chan struct{}
}

// NewInbox creates an inbox
func NewInbox(pool *pgxpool.Pool, cfg InboxConfig, logger *zap.Logger) *Inbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.IsTerminal == nil {
		cfg.IsTerminal = IsTerminal
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultInboxConfig().CleanupInterval
	}
	return &Inbox{
		pool:   pool,
		config: cfg,
		logger: logger,
		tracer: otel.Tracer("inbox"),
	}
}

// ProcessResult is the outcome of Process
type ProcessResult struct {
	// Duplicate is set when the message had already finished; Result is
	// then the stored result and the handler did not run.
	Duplicate bool
	// Attempt counts the deliveries that reached the handler, this one included
	Attempt int
	Result  json.RawMessage
}

// ProcessFunc is the function signature for idempotent handlers
type ProcessFunc func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)

// Process runs fn unless the key has already finished, failed or is held by
// another delivery. Handler errors are returned as-is after the entry is
// marked RECOVERABLE or FAILED.
func (i *Inbox) Process(ctx context.Context, key, handlerName string, payload json.RawMessage, fn ProcessFunc) (*ProcessResult, error) {
	ctx, span := i.tracer.Start(ctx, "inbox_process",
		trace.WithAttributes(
			attribute.String("idempotency_key", key),
			attribute.String("handler", handlerName),
		))
	defer span.End()

	attempt, err := i.claim(ctx, key, handlerName, payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return i.existing(ctx, key, span)
	}
	if err != nil {
		return nil, fmt.Errorf("claim inbox entry: %w", err)
	}
	span.SetAttributes(attribute.Int("attempt", attempt))

	result, handlerErr := fn(ctx, payload)
	if handlerErr != nil {
		status := i.failureStatus(handlerErr, attempt)
		if err := i.finish(ctx, key, status, nil, handlerErr.Error()); err != nil {
			i.logger.Error("failed to record handler error", zap.String("key", key), zap.Error(err))
		}
		span.RecordError(handlerErr)
		return nil, handlerErr
	}

	if err := i.finish(ctx, key, StatusFinished, result, ""); err != nil {
		// the work is done; a redelivery will find the entry STARTED and wait
		// for it to go stale
		i.logger.Error("failed to record result", zap.String("key", key), zap.Error(err))
	}
	return &ProcessResult{Attempt: attempt, Result: result}, nil
}

// failureStatus decides where an entry goes after a handler error
func (i *Inbox) failureStatus(err error, attempt int) Status {
	if i.config.IsTerminal(err) {
		return StatusFailed
	}
	if i.config.MaxAttempts > 0 && attempt >= i.config.MaxAttempts {
		return StatusFailed
	}
	return StatusRecoverable
}

// claim inserts the entry as STARTED, or takes over a RECOVERABLE or stale
// STARTED one, and returns the attempt number. pgx.ErrNoRows means the entry
// exists and cannot be claimed.
func (i *Inbox) claim(ctx context.Context, key, handlerName string, payload json.RawMessage) (int, error) {
	query := `
		INSERT INTO inbox (idempotency_key, handler_name, status, payload, attempts, expires_at)
		VALUES ($1, $2, $3, $4, 1, $5)
		ON CONFLICT (idempotency_key) DO UPDATE
		SET status = $3, attempts = inbox.attempts + 1, updated_at = NOW()
		WHERE inbox.status = 'RECOVERABLE'
		   OR (inbox.status = 'STARTED' AND inbox.updated_at < NOW() - make_interval(secs => $6))
		RETURNING attempts
	`
	var attempt int
	err := i.pool.QueryRow(ctx, query,
		key, handlerName, StatusStarted, payload, time.Now().Add(i.config.TTL), i.config.StaleAfter.Seconds(),
	).Scan(&attempt)
	return attempt, err
}

// existing explains why an entry could not be claimed
func (i *Inbox) existing(ctx context.Context, key string, span trace.Span) (*ProcessResult, error) {
	var (
		status   Status
		result   json.RawMessage
		attempts int
	)
	err := i.pool.QueryRow(ctx,
		`SELECT status, result, attempts FROM inbox WHERE idempotency_key = $1`, key,
	).Scan(&status, &result, &attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		// expired between the claim and this read
		return nil, ErrMessageInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("read inbox entry: %w", err)
	}

	span.SetAttributes(attribute.String("existing_status", string(status)))
	switch status {
	case StatusFinished:
		return &ProcessResult{Duplicate: true, Attempt: attempts, Result: result}, nil
	case StatusFailed:
		return nil, fmt.Errorf("%w: %s", ErrPreviouslyFailed, key)
	default:
		return nil, ErrMessageInProgress
	}
}

func (i *Inbox) finish(ctx context.Context, key string, status Status, result json.RawMessage, lastError string) error {
	query := `
		UPDATE inbox
		SET status = $1, result = $2, last_error = NULLIF($3, ''), updated_at = NOW()
		WHERE idempotency_key = $4
	`
	_, err := i.pool.Exec(ctx, query, status, result, lastError, key)
	return err
}

// GenerateKey derives the idempotency key of a summary request from the
// patient, the normalized question and the request time truncated to the minute.
func GenerateKey(patientID, question string, requestedAt time.Time) string {
	parts := []string{
		strings.TrimSpace(patientID),
		strings.ToLower(strings.Join(strings.Fields(question), " ")),
		requestedAt.UTC().Truncate(time.Minute).Format(time.RFC3339),
	}
	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:])
}

// StartCleanup deletes expired entries every CleanupInterval until Stop
func (i *Inbox) StartCleanup() {
	ctx, cancel := context.WithCancel(context.Background())
	i.cancel = cancel
	i.done = make(chan struct{})

	go func() {
		defer close(i.done)
		ticker := time.NewTicker(i.config.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := i.Cleanup(ctx)
				if err != nil {
					i.logger.Error("inbox cleanup failed", zap.Error(err))
				} else if n > 0 {
					i.logger.Info("inbox cleanup completed", zap.Int64("deleted", n))
				}
			}
		}
	}()
}

// Stop ends the cleanup loop
func (i *Inbox) Stop() {
	if i.cancel == nil {
		return
	}
	i.cancel()
	<-i.done
}

// Cleanup deletes expired entries and returns how many were removed
func (i *Inbox) Cleanup(ctx context.Context) (int64, error) {
	tag, err := i.pool.Exec(ctx, `DELETE FROM inbox WHERE expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// RecoverStaleEntries marks STARTED entries older than StaleAfter as
// RECOVERABLE. Run it at startup to release entries held by a crashed worker.
func (i *Inbox) RecoverStaleEntries(ctx context.Context) (int64, error) {
	query := `
		UPDATE inbox
		SET status = 'RECOVERABLE', updated_at = NOW()
		WHERE status = 'STARTED'
		  AND updated_at < NOW() - make_interval(secs => $1)
	`
	tag, err := i.pool.Exec(ctx, query, i.config.StaleAfter.Seconds())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Stats returns the number of entries per status
func (i *Inbox) Stats(ctx context.Context) (map[Status]int64, error) {
	rows, err := i.pool.Query(ctx, `SELECT status, COUNT(*) FROM inbox GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("inbox stats: %w", err)
	}
	defer rows.Close()

	out := map[Status]int64{StatusStarted: 0, StatusFinished: 0, StatusRecoverable: 0, StatusFailed: 0}
	for rows.Next() {
		var s Status
		var n int64
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		out[s] = n
	}
	return out, rows.Err()
}

// Terminal marks a handler error as permanent; the entry moves to FAILED.
func Terminal(err error) error { return &terminalError{err: err} }

type terminalError struct{ err error }

func (e *terminalError) Error() string { return e.err.Error() }
func (e *terminalError) Unwrap() error { return e.err }

// IsTerminal reports whether err was wrapped with Terminal.
func IsTerminal(err error) bool {
	var t *terminalError
	return errors.As(err, &t)
}
