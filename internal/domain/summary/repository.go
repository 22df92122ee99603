package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/drfirst/go-clinctx/internal/infrastructure/postgres"
	"github.com/drfirst/go-clinctx/internal/infrastructure/redpanda"
	"github.com/drfirst/go-clinctx/pkg/idempotency"
)

// ErrNotFound is returned when a summary or document does not exist.
var ErrNotFound = errors.New("not found")

// Document is an emitted clinical document stored with its summary.
type Document struct {
	ID         string    `json:"document_id"`
	SummaryID  string    `json:"summary_id"`
	PatientID  string    `json:"patient_id"`
	MediaType  string    `json:"media_type"`
	Content    []byte    `json:"content"`
	ArchiveKey string    `json:"archive_key,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// RequestMessage is the payload of a summary.requests record.
type RequestMessage struct {
	SummaryID      string `json:"summary_id"`
	PatientID      string `json:"patient_id"`
	Question       string `json:"question,omitempty"`
	RequestedBy    string `json:"requested_by,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// NewRequestMessage builds the work item for a SummaryRequested event.
func NewRequestMessage(event *Event) (*RequestMessage, error) {
	if event.EventType != EventSummaryRequested {
		return nil, fmt.Errorf("%w: %s is not a request", ErrInvalidState, event.EventType)
	}
	var data RequestedData
	if err := json.Unmarshal(event.EventData, &data); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	return &RequestMessage{
		SummaryID:      data.SummaryID,
		PatientID:      data.PatientID,
		Question:       data.Question,
		RequestedBy:    data.RequestedBy,
		IdempotencyKey: idempotency.GenerateKey(data.PatientID, data.Question, data.RequestedAt),
	}, nil
}

// Repository provides event sourcing persistence for summaries
type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewRepository creates a new repository
func NewRepository(pool *pgxpool.Pool, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{pool: pool, logger: logger}
}

// Save persists new events for an aggregate together with their outbox
// entries. A non-nil document is stored and published in the same transaction.
func (r *Repository) Save(ctx context.Context, agg *Aggregate, doc *Document) error {
	if len(agg.Changes()) == 0 && doc == nil {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, event := range agg.Changes() {
		event.Version = agg.Version() - len(agg.Changes()) + i + 1
		if err := r.insertEvent(ctx, tx, event); err != nil {
			return err
		}
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		err = postgres.Enqueue(ctx, tx, &postgres.Message{
			AggregateID:   event.AggregateID,
			AggregateType: event.AggregateType,
			EventType:     string(event.EventType),
			Payload:       payload,
			Topic:         redpanda.TopicSummaryEvents,
			Key:           event.PatientID,
		})
		if err != nil {
			return err
		}
		if event.EventType == EventSummaryRequested {
			if err := r.enqueueRequest(ctx, tx, event); err != nil {
				return err
			}
		}
	}

	if doc != nil {
		if err := r.insertDocument(ctx, tx, doc); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	agg.ClearChanges()
	return nil
}

func (r *Repository) insertEvent(ctx context.Context, tx pgx.Tx, event *Event) error {
	query := `
		INSERT INTO summary_events
		(id, aggregate_id, event_type, event_data, version, timestamp, patient_id, correlation_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := tx.Exec(ctx, query,
		event.ID,
		event.AggregateID,
		event.EventType,
		event.EventData,
		event.Version,
		event.Timestamp,
		event.PatientID,
		event.CorrelationID,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// enqueueRequest publishes the work item for a new summary through the
// outbox so it is only visible to workers once the request is committed.
func (r *Repository) enqueueRequest(ctx context.Context, tx pgx.Tx, event *Event) error {
	msg, err := NewRequestMessage(event)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return postgres.Enqueue(ctx, tx, &postgres.Message{
		AggregateID:   event.AggregateID,
		AggregateType: AggregateType,
		EventType:     string(EventSummaryRequested),
		Payload:       payload,
		Topic:         redpanda.TopicSummaryRequests,
		Key:           event.PatientID,
	})
}

func (r *Repository) insertDocument(ctx context.Context, tx pgx.Tx, doc *Document) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO clinical_documents (id, summary_id, patient_id, media_type, content, archive_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := tx.Exec(ctx, query,
		doc.ID, doc.SummaryID, doc.PatientID, doc.MediaType, doc.Content, doc.ArchiveKey, doc.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	return postgres.Enqueue(ctx, tx, &postgres.Message{
		AggregateID:   doc.SummaryID,
		AggregateType: AggregateType,
		EventType:     "ClinicalDocument",
		Payload:       payload,
		Topic:         redpanda.TopicClinicalDocuments,
		Key:           doc.PatientID,
	})
}

// Load retrieves an aggregate by ID
func (r *Repository) Load(ctx context.Context, id string) (*Aggregate, error) {
	events, err := r.GetEvents(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("summary %s: %w", id, ErrNotFound)
	}

	agg := NewAggregate(id)
	agg.LoadFromHistory(events)
	return agg, nil
}

// GetEvents retrieves all events for an aggregate
func (r *Repository) GetEvents(ctx context.Context, aggregateID string) ([]*Event, error) {
	query := `
		SELECT id, aggregate_id, event_type, event_data, version, timestamp, patient_id, correlation_id
		FROM summary_events
		WHERE aggregate_id = $1
		ORDER BY version ASC
	`

	rows, err := r.pool.Query(ctx, query, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetEventsByType retrieves the most recent events of a type
func (r *Repository) GetEventsByType(ctx context.Context, eventType EventType, limit int) ([]*Event, error) {
	query := `
		SELECT id, aggregate_id, event_type, event_data, version, timestamp, patient_id, correlation_id
		FROM summary_events
		WHERE event_type = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, eventType, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListByPatient returns the ids of a patient's summaries, newest first
func (r *Repository) ListByPatient(ctx context.Context, patientID string, limit int) ([]string, error) {
	query := `
		SELECT aggregate_id
		FROM summary_events
		WHERE patient_id = $1 AND event_type = $2
		ORDER BY timestamp DESC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, patientID, EventSummaryRequested, limit)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetDocument retrieves an emitted document
func (r *Repository) GetDocument(ctx context.Context, id string) (*Document, error) {
	query := `
		SELECT id, summary_id, patient_id, media_type, content, archive_key, created_at
		FROM clinical_documents
		WHERE id = $1
	`

	doc := &Document{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&doc.ID, &doc.SummaryID, &doc.PatientID, &doc.MediaType, &doc.Content, &doc.ArchiveKey, &doc.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query document: %w", err)
	}
	return doc, nil
}

func scanEvents(rows pgx.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		e := &Event{AggregateType: AggregateType}
		err := rows.Scan(
			&e.ID, &e.AggregateID, &e.EventType, &e.EventData, &e.Version,
			&e.Timestamp, &e.PatientID, &e.CorrelationID,
		)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
