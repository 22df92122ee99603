package archive

import (
	"context"
	"errors"
	"testing"
)

func TestObjectKey(t *testing.T) {
	tests := []struct {
		patient, document, want string
	}{
		{"p1", "d1", "p1/d1.xml"},
		{"../etc", "d1", "__etc/d1.xml"},
		{"a/b", "d1", "a_b/d1.xml"},
		{"", "d1", "unknown/d1.xml"},
	}
	for _, tt := range tests {
		if got := ObjectKey(tt.patient, tt.document); got != tt.want {
			t.Errorf("ObjectKey(%q, %q) = %q, want %q", tt.patient, tt.document, got, tt.want)
		}
	}
}

func TestDisabledStore(t *testing.T) {
	s, err := New(Config{}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if s.Enabled() {
		t.Fatal("store without endpoint should be disabled")
	}
	if _, err := s.Put(context.Background(), "p1", "d1", []byte("<x/>")); !errors.Is(err, ErrDisabled) {
		t.Errorf("Put() error = %v, want ErrDisabled", err)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(Config{Endpoint: "localhost:9000"}, nil); err == nil {
		t.Error("New() accepted an empty bucket")
	}
}
