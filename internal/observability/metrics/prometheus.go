// Package metrics provides Prometheus metrics for the clinical context service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drfirst/go-clinctx/pkg/circuitbreaker"
	"github.com/drfirst/go-clinctx/pkg/idempotency"
)

// Metrics holds all application metrics. A nil *Metrics records nothing.
type Metrics struct {
	ContextsGenerated     prometheus.Counter
	EmptyContexts         prometheus.Counter
	RecordsAdapted        *prometheus.CounterVec
	RecordsSkipped        *prometheus.CounterVec
	PayloadDecodeFailures *prometheus.CounterVec
	SummariesCompleted    prometheus.Counter
	SummariesFailed       *prometheus.CounterVec
	NarrativeCache        *prometheus.CounterVec
	StageDuration         *prometheus.HistogramVec
	MessagesConsumed      prometheus.Counter
	OutboxPending         prometheus.Gauge
	OutboxFailed          prometheus.Gauge
	CircuitBreakerState   *prometheus.GaugeVec
	InboxEntries          *prometheus.GaugeVec
}

// New creates all metrics and registers them with reg.
// A nil registerer uses the default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		ContextsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clinical_contexts_generated_total",
			Help: "Clinical context summaries rendered",
		}),
		EmptyContexts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clinical_contexts_empty_total",
			Help: "Context generations rejected for missing demographics",
		}),
		RecordsAdapted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fhir_records_adapted_total",
			Help: "FHIR records adapted into a patient context",
		}, []string{"kind"}),
		RecordsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fhir_records_skipped_total",
			Help: "Malformed FHIR records skipped",
		}, []string{"kind", "code"}),
		PayloadDecodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fhir_payload_decode_failures_total",
			Help: "Embedded attachments that could not be decoded",
		}, []string{"kind"}),
		SummariesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clinical_summaries_completed_total",
			Help: "Summaries that produced a clinical document",
		}),
		SummariesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clinical_summaries_failed_total",
			Help: "Summaries that failed, by pipeline stage",
		}, []string{"stage"}),
		NarrativeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "narrative_cache_requests_total",
			Help: "Narrative cache lookups by result",
		}, []string{"result"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "summary_stage_duration_seconds",
			Help:    "Duration of each summary pipeline stage",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "summary_requests_consumed_total",
			Help: "Summary request messages consumed",
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_entries",
			Help: "Pending outbox entries",
		}),
		OutboxFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_failed_entries",
			Help: "Outbox entries that exhausted their retries",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
		InboxEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "inbox_entries",
			Help: "Summary request inbox entries by status",
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.ContextsGenerated,
		m.EmptyContexts,
		m.RecordsAdapted,
		m.RecordsSkipped,
		m.PayloadDecodeFailures,
		m.SummariesCompleted,
		m.SummariesFailed,
		m.NarrativeCache,
		m.StageDuration,
		m.MessagesConsumed,
		m.OutboxPending,
		m.OutboxFailed,
		m.CircuitBreakerState,
		m.InboxEntries,
	)

	return m
}

// RecordAdapted counts a record added to a patient context.
func (m *Metrics) RecordAdapted(kind string) {
	if m == nil {
		return
	}
	m.RecordsAdapted.WithLabelValues(kind).Inc()
}

// RecordSkipped counts a malformed record.
func (m *Metrics) RecordSkipped(kind, code string) {
	if m == nil {
		return
	}
	m.RecordsSkipped.WithLabelValues(kind, code).Inc()
}

// RecordDecodeFailure counts an undecodable embedded payload.
func (m *Metrics) RecordDecodeFailure(kind string) {
	if m == nil {
		return
	}
	m.PayloadDecodeFailures.WithLabelValues(kind).Inc()
}

// RecordContext counts a rendered context, or an empty one.
func (m *Metrics) RecordContext(empty bool) {
	if m == nil {
		return
	}
	if empty {
		m.EmptyContexts.Inc()
		return
	}
	m.ContextsGenerated.Inc()
}

// RecordCache counts a narrative cache hit or miss.
func (m *Metrics) RecordCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.NarrativeCache.WithLabelValues(result).Inc()
}

// ObserveStage records how long a pipeline stage took.
func (m *Metrics) ObserveStage(stage string, started time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
}

// RecordSummary counts a finished summary; an empty stage means success.
func (m *Metrics) RecordSummary(failedStage string) {
	if m == nil {
		return
	}
	if failedStage == "" {
		m.SummariesCompleted.Inc()
		return
	}
	m.SummariesFailed.WithLabelValues(failedStage).Inc()
}

// RecordConsumed counts a consumed summary request
func (m *Metrics) RecordConsumed() {
	if m == nil {
		return
	}
	m.MessagesConsumed.Inc()
}

// ObserveOutbox exports outbox backlog sizes
func (m *Metrics) ObserveOutbox(pending, failed int64) {
	if m == nil {
		return
	}
	m.OutboxPending.Set(float64(pending))
	m.OutboxFailed.Set(float64(failed))
}

// ObserveBreakers exports breaker states.
func (m *Metrics) ObserveBreakers(statuses []circuitbreaker.HealthStatus) {
	if m == nil {
		return
	}
	for _, s := range statuses {
		var v float64
		switch s.State {
		case circuitbreaker.StateOpen:
			v = 1
		case circuitbreaker.StateHalfOpen:
			v = 2
		}
		m.CircuitBreakerState.WithLabelValues(s.Name).Set(v)
	}
}

// ObserveInbox exports inbox entry counts per status.
func (m *Metrics) ObserveInbox(counts map[idempotency.Status]int64) {
	if m == nil {
		return
	}
	for status, n := range counts {
		m.InboxEntries.WithLabelValues(string(status)).Set(float64(n))
	}
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
