package postgres

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDeadLetterPayload(t *testing.T) {
	lastErr := "broker unavailable"
	msg := &Message{
		ID:            7,
		AggregateID:   "sum-1",
		AggregateType: "ClinicalSummary",
		EventType:     "DocumentEmitted",
		Payload:       json.RawMessage(`{"document_id":"doc-1"}`),
		Topic:         "clinical.documents",
		Key:           "patient-1",
		CreatedAt:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Attempts:      5,
		LastError:     &lastErr,
	}

	raw, err := DeadLetterPayload(msg)
	if err != nil {
		t.Fatalf("DeadLetterPayload() error = %v", err)
	}

	var got struct {
		OriginalTopic string            `json:"original_topic"`
		LastError     string            `json:"last_error"`
		Attempts      int               `json:"attempts"`
		Payload       map[string]string `json:"payload"`
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got.OriginalTopic != "clinical.documents" {
		t.Errorf("original_topic = %q", got.OriginalTopic)
	}
	if got.LastError != lastErr {
		t.Errorf("last_error = %q", got.LastError)
	}
	if got.Attempts != 5 {
		t.Errorf("attempts = %d", got.Attempts)
	}
	if got.Payload["document_id"] != "doc-1" {
		t.Errorf("payload not embedded as JSON: %v", got.Payload)
	}
}

func TestRoute(t *testing.T) {
	cfg := DefaultRelayConfig()
	payload := json.RawMessage(`{"a":1}`)

	tests := []struct {
		name      string
		attempts  int
		wantTopic string
		wantBody  bool
	}{
		{"first try", 0, "summary.events", true},
		{"below limit", cfg.MaxAttempts - 1, "summary.events", true},
		{"exhausted", cfg.MaxAttempts, cfg.DeadLetterTopic, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			topic, body := route(&Message{Topic: "summary.events", Payload: payload, Attempts: tt.attempts}, cfg)
			if topic != tt.wantTopic {
				t.Errorf("topic = %q, want %q", topic, tt.wantTopic)
			}
			if (body != nil) != tt.wantBody {
				t.Errorf("body = %s, want present=%v", body, tt.wantBody)
			}
		})
	}
}

func TestNewRelayFillsDefaults(t *testing.T) {
	r := NewRelay(nil, nil, nil, RelayConfig{BatchSize: 10}, nil)
	def := DefaultRelayConfig()
	if r.config.BatchSize != 10 {
		t.Errorf("BatchSize = %d, want 10", r.config.BatchSize)
	}
	if r.config.MaxAttempts != def.MaxAttempts || r.config.DeadLetterTopic != def.DeadLetterTopic {
		t.Errorf("defaults not applied: %+v", r.config)
	}
	if r.config.Retention != def.Retention || r.config.PurgeEvery <= 0 {
		t.Errorf("maintenance defaults not applied: %+v", r.config)
	}
}
