package idempotency

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestGenerateKey(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 30, 12, 0, time.UTC)

	base := GenerateKey("patient-1", "Any drug interactions?", at)
	if len(base) != 64 {
		t.Fatalf("key length = %d, want 64", len(base))
	}

	tests := []struct {
		name      string
		patientID string
		question  string
		at        time.Time
		same      bool
	}{
		{"same minute", "patient-1", "Any drug interactions?", at.Add(40 * time.Second), true},
		{"whitespace and case", " patient-1 ", "  any   DRUG interactions? ", at, true},
		{"other timezone", "patient-1", "Any drug interactions?", at.In(time.FixedZone("EST", -5*3600)), true},
		{"next minute", "patient-1", "Any drug interactions?", at.Add(time.Minute), false},
		{"other patient", "patient-2", "Any drug interactions?", at, false},
		{"other question", "patient-1", "Summarize labs", at, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateKey(tt.patientID, tt.question, tt.at)
			if (got == base) != tt.same {
				t.Errorf("GenerateKey() equal to base = %v, want %v", got == base, tt.same)
			}
		})
	}
}

func TestTerminal(t *testing.T) {
	cause := errors.New("empty context")
	err := fmt.Errorf("summarize: %w", Terminal(cause))

	if !IsTerminal(err) {
		t.Error("wrapped terminal error not detected")
	}
	if !errors.Is(err, cause) {
		t.Error("terminal error must unwrap to its cause")
	}
	if IsTerminal(errors.New("timeout")) {
		t.Error("plain error reported as terminal")
	}
}

func TestFailureStatus(t *testing.T) {
	in := NewInbox(nil, InboxConfig{MaxAttempts: 3}, nil)
	transient := errors.New("llm timeout")

	tests := []struct {
		name    string
		err     error
		attempt int
		want    Status
	}{
		{"first transient", transient, 1, StatusRecoverable},
		{"below limit", transient, 2, StatusRecoverable},
		{"limit reached", transient, 3, StatusFailed},
		{"terminal on first", Terminal(transient), 1, StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := in.failureStatus(tt.err, tt.attempt); got != tt.want {
				t.Errorf("failureStatus() = %s, want %s", got, tt.want)
			}
		})
	}

	unlimited := NewInbox(nil, InboxConfig{}, nil)
	if got := unlimited.failureStatus(transient, 1000); got != StatusRecoverable {
		t.Errorf("unlimited attempts: got %s", got)
	}
}

func TestStopWithoutCleanup(t *testing.T) {
	NewInbox(nil, DefaultInboxConfig(), nil).Stop()
}

func TestNewInboxDefaultsTerminalClassifier(t *testing.T) {
	in := NewInbox(nil, DefaultInboxConfig(), nil)
	if in.config.IsTerminal == nil {
		t.Fatal("IsTerminal classifier not defaulted")
	}
	if !in.config.IsTerminal(Terminal(errors.New("x"))) {
		t.Error("default classifier should honor Terminal")
	}
}
