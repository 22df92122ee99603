// Package postgres holds the transactional outbox. Summary events, summary
// requests and clinical documents are written next to the rows that produce
// them and relayed to Redpanda once committed.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Message is one outbox row
type Message struct {
	ID            int64
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       json.RawMessage
	Topic         string
	Key           string
	CreatedAt     time.Time
	Attempts      int
	LastError     *string
}

// Enqueue stores msg in the caller's transaction. It becomes visible to the
// relay when tx commits.
func Enqueue(ctx context.Context, tx pgx.Tx, msg *Message) error {
	if msg.Topic == "" {
		return errors.New("outbox: message has no topic")
	}
	err := tx.QueryRow(ctx, `
		INSERT INTO outbox (aggregate_id, aggregate_type, event_type, payload, topic, message_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		msg.AggregateID, msg.AggregateType, msg.EventType, msg.Payload, msg.Topic, msg.Key,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("outbox: enqueue %s: %w", msg.EventType, err)
	}
	return nil
}

// Publisher sends a relayed message to the broker
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// Observer receives backlog sizes after each maintenance pass
type Observer interface {
	ObserveOutbox(pending, failed int64)
}

type RelayConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// MaxAttempts is the number of publish failures after which a message
	// goes to DeadLetterTopic instead
	MaxAttempts     int
	DeadLetterTopic string
	// LockID is the advisory lock key; one relay per database holds it per batch
	LockID int64
	// MaintainEvery sets how often gauges are refreshed
	MaintainEvery time.Duration
	// PurgeEvery and Retention control deletion of relayed rows
	PurgeEvery time.Duration
	Retention  time.Duration
}

func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		BatchSize:       100,
		PollInterval:    250 * time.Millisecond,
		MaxAttempts:     5,
		DeadLetterTopic: "clinical.dead-letter",
		LockID:          7314001,
		MaintainEvery:   15 * time.Second,
		PurgeEvery:      time.Hour,
		Retention:       7 * 24 * time.Hour,
	}
}

// Relay polls the outbox and publishes committed messages in id order
type Relay struct {
	pool      *pgxpool.Pool
	publisher Publisher
	observer  Observer
	config    RelayConfig
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewRelay creates a relay. observer may be nil.
func NewRelay(pool *pgxpool.Pool, publisher Publisher, observer Observer, cfg RelayConfig, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultRelayConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.DeadLetterTopic == "" {
		cfg.DeadLetterTopic = def.DeadLetterTopic
	}
	if cfg.MaintainEvery <= 0 {
		cfg.MaintainEvery = def.MaintainEvery
	}
	if cfg.PurgeEvery <= 0 {
		cfg.PurgeEvery = def.PurgeEvery
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	return &Relay{
		pool:      pool,
		publisher: publisher,
		observer:  observer,
		config:    cfg,
		logger:    logger,
		tracer:    otel.Tracer("outbox"),
	}
}

// Run relays until ctx is cancelled, refreshing gauges and purging old rows
// on their own schedules.
func (r *Relay) Run(ctx context.Context) {
	poll := time.NewTicker(r.config.PollInterval)
	defer poll.Stop()
	maintain := time.NewTicker(r.config.MaintainEvery)
	defer maintain.Stop()
	purge := time.NewTicker(r.config.PurgeEvery)
	defer purge.Stop()

	r.logger.Info("outbox relay running",
		zap.Int("batch_size", r.config.BatchSize),
		zap.Duration("poll_interval", r.config.PollInterval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			if _, err := r.RelayOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("outbox batch failed", zap.Error(err))
			}
		case <-maintain.C:
			r.observe(ctx)
		case <-purge.C:
			n, err := r.Purge(ctx, r.config.Retention)
			if err != nil {
				r.logger.Warn("outbox purge failed", zap.Error(err))
			} else if n > 0 {
				r.logger.Info("outbox purged", zap.Int64("deleted", n))
			}
		}
	}
}

func (r *Relay) observe(ctx context.Context) {
	if r.observer == nil {
		return
	}
	b, err := r.Backlog(ctx)
	if err != nil {
		r.logger.Warn("outbox backlog query failed", zap.Error(err))
		return
	}
	r.observer.ObserveOutbox(b.Pending, b.Exhausted)
}

// RelayOnce claims one batch and publishes it in a single transaction.
// Messages over MaxAttempts are sent to the dead-letter topic instead of
// their own. It returns how many rows were settled.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	ctx, span := r.tracer.Start(ctx, "outbox.relay")
	defer span.End()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("outbox: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var locked bool
	if err := tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock($1)`, r.config.LockID).Scan(&locked); err != nil {
		return 0, fmt.Errorf("outbox: advisory lock: %w", err)
	}
	if !locked {
		return 0, nil
	}

	batch, err := claim(ctx, tx, r.config.BatchSize)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	span.SetAttributes(attribute.Int("outbox.batch", len(batch)))

	settled := 0
	for _, msg := range batch {
		err := r.send(ctx, msg)
		if err != nil {
			r.logger.Warn("outbox publish failed",
				zap.Int64("id", msg.ID),
				zap.String("topic", msg.Topic),
				zap.Int("attempts", msg.Attempts+1),
				zap.Error(err))
			if _, uerr := tx.Exec(ctx,
				`UPDATE outbox SET retry_count = retry_count + 1, last_error = $2, updated_at = NOW() WHERE id = $1`,
				msg.ID, err.Error()); uerr != nil {
				return settled, fmt.Errorf("outbox: record failure: %w", uerr)
			}
			continue
		}
		if _, err := tx.Exec(ctx, `UPDATE outbox SET processed_at = NOW(), updated_at = NOW() WHERE id = $1`, msg.ID); err != nil {
			return settled, fmt.Errorf("outbox: settle %d: %w", msg.ID, err)
		}
		settled++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("outbox: commit: %w", err)
	}
	return settled, nil
}

func (r *Relay) send(ctx context.Context, msg *Message) error {
	topic, value := route(msg, r.config)
	ctx, span := r.tracer.Start(ctx, "outbox.publish", trace.WithAttributes(
		attribute.Int64("outbox.id", msg.ID),
		attribute.String("messaging.destination", topic),
		attribute.String("event_type", msg.EventType),
	))
	defer span.End()

	if value == nil {
		body, err := DeadLetterPayload(msg)
		if err != nil {
			return err
		}
		value = body
		r.logger.Warn("outbox message dead-lettered",
			zap.Int64("id", msg.ID),
			zap.String("original_topic", msg.Topic),
			zap.Int("attempts", msg.Attempts))
	}
	if err := r.publisher.Publish(ctx, topic, msg.Key, value); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// route picks the destination of msg. A nil value means the message is
// dead-lettered and needs a wrapped payload.
func route(msg *Message, cfg RelayConfig) (string, []byte) {
	if msg.Attempts >= cfg.MaxAttempts {
		return cfg.DeadLetterTopic, nil
	}
	return msg.Topic, msg.Payload
}

func claim(ctx context.Context, tx pgx.Tx, limit int) ([]*Message, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, aggregate_id, aggregate_type, event_type, payload,
		       topic, message_key, created_at, retry_count, last_error
		FROM outbox
		WHERE processed_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("outbox: claim: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Message, error) {
		m := &Message{}
		err := row.Scan(&m.ID, &m.AggregateID, &m.AggregateType, &m.EventType, &m.Payload,
			&m.Topic, &m.Key, &m.CreatedAt, &m.Attempts, &m.LastError)
		return m, err
	})
}

// DeadLetterPayload wraps msg with its delivery history.
func DeadLetterPayload(msg *Message) ([]byte, error) {
	return json.Marshal(struct {
		OriginalTopic string          `json:"original_topic"`
		EventType     string          `json:"event_type"`
		AggregateID   string          `json:"aggregate_id"`
		AggregateType string          `json:"aggregate_type"`
		Payload       json.RawMessage `json:"payload"`
		Attempts      int             `json:"attempts"`
		LastError     *string         `json:"last_error"`
		CreatedAt     time.Time       `json:"created_at"`
	}{msg.Topic, msg.EventType, msg.AggregateID, msg.AggregateType, msg.Payload, msg.Attempts, msg.LastError, msg.CreatedAt})
}

// Purge deletes relayed rows older than age
func (r *Relay) Purge(ctx context.Context, age time.Duration) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM outbox WHERE processed_at < NOW() - make_interval(secs => $1)`, age.Seconds())
	if err != nil {
		return 0, fmt.Errorf("outbox: purge: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Backlog describes unrelayed rows
type Backlog struct {
	// Pending rows still within their attempt budget
	Pending int64
	// Exhausted rows waiting to be dead-lettered
	Exhausted int64
	Oldest    *time.Time
}

func (r *Relay) Backlog(ctx context.Context) (Backlog, error) {
	var b Backlog
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE retry_count < $1),
		       COUNT(*) FILTER (WHERE retry_count >= $1),
		       MIN(created_at)
		FROM outbox
		WHERE processed_at IS NULL`, r.config.MaxAttempts,
	).Scan(&b.Pending, &b.Exhausted, &b.Oldest)
	if err != nil {
		return Backlog{}, fmt.Errorf("outbox: backlog: %w", err)
	}
	return b, nil
}
