// Package summary implements the clinical summary aggregate and its domain events.
package summary

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of domain event
type EventType string

const (
	EventSummaryRequested   EventType = "SummaryRequested"
	EventContextBuilt       EventType = "ContextBuilt"
	EventNarrativeGenerated EventType = "NarrativeGenerated"
	EventDocumentEmitted    EventType = "DocumentEmitted"
	EventSummaryFailed      EventType = "SummaryFailed"
)

// AggregateType is stored with every summary event.
const AggregateType = "ClinicalSummary"

// Event represents a domain event
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     EventType       `json:"event_type"`
	EventData     json.RawMessage `json:"event_data"`
	Version       int             `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	PatientID     string          `json:"patient_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// NewEvent creates a new event
func NewEvent(aggregateID string, eventType EventType, data interface{}) (*Event, error) {
	eventData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: AggregateType,
		EventType:     eventType,
		EventData:     eventData,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// RequestedData is carried by SummaryRequested.
type RequestedData struct {
	SummaryID   string    `json:"summary_id"`
	PatientID   string    `json:"patient_id"`
	Question    string    `json:"question,omitempty"`
	RequestedBy string    `json:"requested_by,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// ContextBuiltData records the shape of the aggregated context.
type ContextBuiltData struct {
	SummaryID      string         `json:"summary_id"`
	Digest         string         `json:"digest"`
	SectionCounts  map[string]int `json:"section_counts"`
	Skipped        int            `json:"skipped"`
	DecodeFailures int            `json:"decode_failures"`
	BuiltAt        time.Time      `json:"built_at"`
}

// NarrativeGeneratedData holds the model output.
type NarrativeGeneratedData struct {
	SummaryID   string    `json:"summary_id"`
	Model       string    `json:"model"`
	Narrative   string    `json:"narrative"`
	Cached      bool      `json:"cached"`
	GeneratedAt time.Time `json:"generated_at"`
}

// DocumentEmittedData points at the emitted CDA document.
type DocumentEmittedData struct {
	SummaryID     string    `json:"summary_id"`
	DocumentID    string    `json:"document_id"`
	ArchiveKey    string    `json:"archive_key,omitempty"`
	DocumentRefID string    `json:"document_reference_id,omitempty"`
	EmittedAt     time.Time `json:"emitted_at"`
}

// FailedData records why a summary stopped.
type FailedData struct {
	SummaryID string    `json:"summary_id"`
	Stage     string    `json:"stage"`
	Reason    string    `json:"reason"`
	FailedAt  time.Time `json:"failed_at"`
}

// WithPatient sets the patient and correlation fields
func (e *Event) WithPatient(patientID, correlationID string) *Event {
	e.PatientID = patientID
	e.CorrelationID = correlationID
	return e
}
