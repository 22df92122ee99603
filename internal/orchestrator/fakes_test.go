package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/drfirst/go-clinctx/internal/domain/summary"
	"github.com/drfirst/go-clinctx/internal/fhir/r4"
	"github.com/drfirst/go-clinctx/internal/infrastructure/cache"
	"github.com/drfirst/go-clinctx/internal/infrastructure/llm"
)

type fakeSource struct {
	patient    *r4.Patient
	patientErr error
	records    map[string][]string
	errs       map[string]error

	mu       sync.Mutex
	searched map[string]url.Values
}

func (f *fakeSource) GetPatient(ctx context.Context, id string) (*r4.Patient, error) {
	if f.patientErr != nil {
		return nil, f.patientErr
	}
	return f.patient, nil
}

func (f *fakeSource) SearchByPatient(ctx context.Context, resourceType, patientID string, extra url.Values) ([]json.RawMessage, error) {
	f.mu.Lock()
	if f.searched == nil {
		f.searched = make(map[string]url.Values)
	}
	f.searched[resourceType] = extra
	f.mu.Unlock()

	if err := f.errs[resourceType]; err != nil {
		return nil, err
	}
	var out []json.RawMessage
	for _, r := range f.records[resourceType] {
		out = append(out, json.RawMessage(r))
	}
	return out, nil
}

type fakeNarrator struct {
	text  string
	err   error
	calls int
	last  llm.Prompt
}

func (f *fakeNarrator) Model() string { return "test-model" }

func (f *fakeNarrator) Narrate(ctx context.Context, p llm.Prompt) (*llm.Completion, error) {
	f.calls++
	f.last = p
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Completion{Text: f.text, Model: "test-model"}, nil
}

type memoryCache struct {
	entries map[string]*cache.Narrative
}

func (m *memoryCache) Get(ctx context.Context, model, digest, question string) (*cache.Narrative, bool, error) {
	n, ok := m.entries[cache.Key(model, digest, question)]
	return n, ok, nil
}

func (m *memoryCache) Put(ctx context.Context, digest, question string, n *cache.Narrative) error {
	if m.entries == nil {
		m.entries = make(map[string]*cache.Narrative)
	}
	m.entries[cache.Key(n.Model, digest, question)] = n
	return nil
}

// fakePublisher answers a repeated If-None-Exist query with the resource it
// created first, as a FHIR server does.
type fakePublisher struct {
	created []interface{}
	queries []string
	byQuery map[string]string
}

func (f *fakePublisher) CreateIfNoneExist(ctx context.Context, resourceType string, resource interface{}, ifNoneExist string) (json.RawMessage, error) {
	f.queries = append(f.queries, ifNoneExist)
	id, ok := f.byQuery[ifNoneExist]
	if !ok || ifNoneExist == "" {
		f.created = append(f.created, resource)
		id = fmt.Sprintf("ref-%d", len(f.created))
		if f.byQuery == nil {
			f.byQuery = make(map[string]string)
		}
		f.byQuery[ifNoneExist] = id
	}
	return json.RawMessage(fmt.Sprintf(`{"resourceType":%q,"id":%q}`, resourceType, id)), nil
}

type memoryArchive struct {
	objects map[string][]byte
	puts    int
}

func (m *memoryArchive) Enabled() bool { return true }

func (m *memoryArchive) Put(ctx context.Context, patientID, documentID string, xml []byte) (string, error) {
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.puts++
	key := patientID + "/" + documentID + ".xml"
	m.objects[key] = xml
	return key, nil
}

type memoryStore struct {
	events map[string][]*summary.Event
	docs   map[string]*summary.Document
	saves  int
	// failSaves makes that many Save calls fail before saving works.
	failSaves int
}

func (m *memoryStore) Load(ctx context.Context, id string) (*summary.Aggregate, error) {
	events := m.events[id]
	if len(events) == 0 {
		return nil, fmt.Errorf("summary %s: %w", id, summary.ErrNotFound)
	}
	agg := summary.NewAggregate(id)
	agg.LoadFromHistory(events)
	return agg, nil
}

func (m *memoryStore) Save(ctx context.Context, agg *summary.Aggregate, doc *summary.Document) error {
	if m.events == nil {
		m.events = make(map[string][]*summary.Event)
		m.docs = make(map[string]*summary.Document)
	}
	m.saves++
	if m.saves <= m.failSaves {
		return errors.New("connection reset")
	}
	m.events[agg.ID()] = append(m.events[agg.ID()], agg.Changes()...)
	if doc != nil {
		m.docs[doc.ID] = doc
	}
	agg.ClearChanges()
	return nil
}
