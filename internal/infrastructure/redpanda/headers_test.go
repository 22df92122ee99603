package redpanda

import (
	"context"
	"testing"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestRecordCarrierRoundTrip(t *testing.T) {
	prop := propagation.TraceContext{}

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	record := &kgo.Record{Topic: TopicSummaryRequests}
	prop.Inject(ctx, recordCarrier{record: record})

	if got := (recordCarrier{record: record}).Get("traceparent"); got != "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01" {
		t.Fatalf("traceparent = %q", got)
	}

	extracted := trace.SpanContextFromContext(prop.Extract(context.Background(), recordCarrier{record: record}))
	if extracted.TraceID() != traceID {
		t.Errorf("trace id = %s, want %s", extracted.TraceID(), traceID)
	}
	if !extracted.IsRemote() {
		t.Error("extracted span context should be remote")
	}
}

func TestRecordCarrierSetReplaces(t *testing.T) {
	record := &kgo.Record{}
	c := recordCarrier{record: record}
	c.Set("k", "a")
	c.Set("k", "b")

	if len(record.Headers) != 1 {
		t.Fatalf("headers = %d, want 1", len(record.Headers))
	}
	if c.Get("k") != "b" {
		t.Errorf("Get(k) = %q", c.Get("k"))
	}
	if keys := c.Keys(); len(keys) != 1 || keys[0] != "k" {
		t.Errorf("Keys() = %v", keys)
	}
}
