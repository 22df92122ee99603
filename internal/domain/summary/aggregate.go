package summary

import (
	"encoding/json"
	"errors"
	"time"
)

// Status represents summary status
type Status string

const (
	StatusDraft        Status = "draft"
	StatusRequested    Status = "requested"
	StatusContextBuilt Status = "context_built"
	StatusNarrated     Status = "narrated"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// Pipeline stages reported by Fail.
const (
	StageFetch    = "fetch"
	StageContext  = "context"
	StageGenerate = "generate"
	StageEmit     = "emit"
)

var (
	ErrAlreadyRequested = errors.New("summary already requested")
	ErrInvalidState     = errors.New("summary not in a valid state for this operation")
	ErrTerminal         = errors.New("summary already finished")
)

// Aggregate represents the clinical summary aggregate root
type Aggregate struct {
	id             string
	version        int
	status         Status
	patientID      string
	question       string
	requestedBy    string
	contextDigest  string
	sectionCounts  map[string]int
	skipped        int
	decodeFailures int
	model          string
	narrative      string
	cached         bool
	documentID     string
	archiveKey     string
	documentRefID  string
	failureStage   string
	failureReason  string
	createdAt      time.Time
	updatedAt      time.Time
	changes        []*Event
}

// NewAggregate creates a new summary aggregate
func NewAggregate(id string) *Aggregate {
	now := time.Now().UTC()
	return &Aggregate{
		id:        id,
		status:    StatusDraft,
		createdAt: now,
		updatedAt: now,
		changes:   make([]*Event, 0),
	}
}

func (a *Aggregate) ID() string { return a.id }
func (a *Aggregate) Version() int { return a.version }
func (a *Aggregate) Status() Status { return a.status }
func (a *Aggregate) PatientID() string { return a.patientID }
func (a *Aggregate) Question() string { return a.question }
func (a *Aggregate) ContextDigest() string { return a.contextDigest }
func (a *Aggregate) SectionCounts() map[string]int { return a.sectionCounts }
func (a *Aggregate) Skipped() int { return a.skipped }
func (a *Aggregate) Model() string { return a.model }
func (a *Aggregate) Narrative() string { return a.narrative }
func (a *Aggregate) Cached() bool { return a.cached }
func (a *Aggregate) DocumentID() string { return a.documentID }
func (a *Aggregate) ArchiveKey() string { return a.archiveKey }
func (a *Aggregate) DocumentRefID() string { return a.documentRefID }
func (a *Aggregate) UpdatedAt() time.Time { return a.updatedAt }

// Failure returns the stage and reason of a failed summary.
func (a *Aggregate) Failure() (stage, reason string) { return a.failureStage, a.failureReason }

// Changes returns uncommitted events
func (a *Aggregate) Changes() []*Event { return a.changes }

// ClearChanges clears uncommitted events
func (a *Aggregate) ClearChanges() { a.changes = make([]*Event, 0) }

// Request opens the summary for a patient.
func (a *Aggregate) Request(patientID, question, requestedBy, correlationID string) error {
	if a.status != StatusDraft {
		return ErrAlreadyRequested
	}
	if patientID == "" {
		return errors.New("patient id is required")
	}

	data := &RequestedData{
		SummaryID:   a.id,
		PatientID:   patientID,
		Question:    question,
		RequestedBy: requestedBy,
		RequestedAt: time.Now().UTC(),
	}
	return a.raise(EventSummaryRequested, data, patientID, correlationID)
}

// RecordContext stores the aggregated context's digest and section sizes.
func (a *Aggregate) RecordContext(digest string, counts map[string]int, skipped, decodeFailures int) error {
	if a.status != StatusRequested {
		return ErrInvalidState
	}

	data := &ContextBuiltData{
		SummaryID:      a.id,
		Digest:         digest,
		SectionCounts:  counts,
		Skipped:        skipped,
		DecodeFailures: decodeFailures,
		BuiltAt:        time.Now().UTC(),
	}
	return a.raise(EventContextBuilt, data, a.patientID, "")
}

// RecordNarrative stores the generated narrative.
func (a *Aggregate) RecordNarrative(model, narrative string, cached bool) error {
	if a.status != StatusContextBuilt {
		return ErrInvalidState
	}
	if narrative == "" {
		return errors.New("narrative is empty")
	}

	data := &NarrativeGeneratedData{
		SummaryID:   a.id,
		Model:       model,
		Narrative:   narrative,
		Cached:      cached,
		GeneratedAt: time.Now().UTC(),
	}
	return a.raise(EventNarrativeGenerated, data, a.patientID, "")
}

// MarkEmitted completes the summary once the CDA document exists.
func (a *Aggregate) MarkEmitted(documentID, archiveKey, documentRefID string) error {
	if a.status != StatusNarrated {
		return ErrInvalidState
	}

	data := &DocumentEmittedData{
		SummaryID:     a.id,
		DocumentID:    documentID,
		ArchiveKey:    archiveKey,
		DocumentRefID: documentRefID,
		EmittedAt:     time.Now().UTC(),
	}
	return a.raise(EventDocumentEmitted, data, a.patientID, "")
}

// Fail stops the summary at the given stage.
func (a *Aggregate) Fail(stage, reason string) error {
	if a.status == StatusCompleted || a.status == StatusFailed {
		return ErrTerminal
	}

	data := &FailedData{
		SummaryID: a.id,
		Stage:     stage,
		Reason:    reason,
		FailedAt:  time.Now().UTC(),
	}
	return a.raise(EventSummaryFailed, data, a.patientID, "")
}

func (a *Aggregate) raise(eventType EventType, data interface{}, patientID, correlationID string) error {
	event, err := NewEvent(a.id, eventType, data)
	if err != nil {
		return err
	}
	event.WithPatient(patientID, correlationID)

	a.apply(event)
	a.changes = append(a.changes, event)
	return nil
}

// apply applies an event to update state
func (a *Aggregate) apply(event *Event) {
	a.version++
	a.updatedAt = event.Timestamp

	switch event.EventType {
	case EventSummaryRequested:
		var data RequestedData
		if json.Unmarshal(event.EventData, &data) != nil {
			return
		}
		a.status = StatusRequested
		a.patientID = data.PatientID
		a.question = data.Question
		a.requestedBy = data.RequestedBy
		a.createdAt = data.RequestedAt
	case EventContextBuilt:
		var data ContextBuiltData
		if json.Unmarshal(event.EventData, &data) != nil {
			return
		}
		a.status = StatusContextBuilt
		a.contextDigest = data.Digest
		a.sectionCounts = data.SectionCounts
		a.skipped = data.Skipped
		a.decodeFailures = data.DecodeFailures
	case EventNarrativeGenerated:
		var data NarrativeGeneratedData
		if json.Unmarshal(event.EventData, &data) != nil {
			return
		}
		a.status = StatusNarrated
		a.model = data.Model
		a.narrative = data.Narrative
		a.cached = data.Cached
	case EventDocumentEmitted:
		var data DocumentEmittedData
		if json.Unmarshal(event.EventData, &data) != nil {
			return
		}
		a.status = StatusCompleted
		a.documentID = data.DocumentID
		a.archiveKey = data.ArchiveKey
		a.documentRefID = data.DocumentRefID
	case EventSummaryFailed:
		var data FailedData
		if json.Unmarshal(event.EventData, &data) != nil {
			return
		}
		a.status = StatusFailed
		a.failureStage = data.Stage
		a.failureReason = data.Reason
	}
}

// LoadFromHistory rebuilds state from events
func (a *Aggregate) LoadFromHistory(events []*Event) {
	for _, event := range events {
		a.apply(event)
	}
}
