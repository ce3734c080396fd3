package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments shared across services. Services
// guard against a nil *Metrics so tests can skip registration.
type Metrics struct {
	MutationsTotal      *prometheus.CounterVec
	ConflictsTotal      *prometheus.CounterVec
	AuditAppendsTotal   prometheus.Counter
	AuditWriteFailures  prometheus.Counter
	UnauditedOperations prometheus.Counter
	InvalidationsTotal  prometheus.Counter
	OutboxPublished     prometheus.Counter
	OutboxFailures      prometheus.Counter
}

// New registers all instruments on the default registry. Call once per
// process; use NewWith in tests that need an isolated registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers all instruments on the given registerer.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		MutationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "linetrace_mutations_total",
			Help: "Committed mutations by entity type and audit action.",
		}, []string{"entity_type", "action"}),
		ConflictsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "linetrace_conflicts_total",
			Help: "Mutations rejected with a conflict, by entity type.",
		}, []string{"entity_type"}),
		AuditAppendsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "linetrace_audit_appends_total",
			Help: "Audit entries durably written.",
		}),
		AuditWriteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "linetrace_audit_write_failures_total",
			Help: "Audit writes that failed and forced a rollback.",
		}),
		UnauditedOperations: factory.NewCounter(prometheus.CounterOpts{
			Name: "linetrace_unaudited_operations_total",
			Help: "Intercepted operations that proceeded without an actor and therefore without audit capture.",
		}),
		InvalidationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "linetrace_invalidation_events_total",
			Help: "Cache invalidation events published after commit.",
		}),
		OutboxPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "linetrace_outbox_published_total",
			Help: "Audit outbox rows relayed to Kafka.",
		}),
		OutboxFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "linetrace_outbox_publish_failures_total",
			Help: "Audit outbox relay attempts that failed.",
		}),
	}
}

// IncMutation records a committed mutation.
func (m *Metrics) IncMutation(entityType, action string) {
	if m != nil {
		m.MutationsTotal.WithLabelValues(entityType, action).Inc()
	}
}

// IncConflict records a conflict rejection.
func (m *Metrics) IncConflict(entityType string) {
	if m != nil {
		m.ConflictsTotal.WithLabelValues(entityType).Inc()
	}
}

func (m *Metrics) IncAuditAppend() {
	if m != nil {
		m.AuditAppendsTotal.Inc()
	}
}

func (m *Metrics) IncAuditWriteFailure() {
	if m != nil {
		m.AuditWriteFailures.Inc()
	}
}

func (m *Metrics) IncUnaudited() {
	if m != nil {
		m.UnauditedOperations.Inc()
	}
}

func (m *Metrics) IncInvalidation() {
	if m != nil {
		m.InvalidationsTotal.Inc()
	}
}

func (m *Metrics) IncOutboxPublished() {
	if m != nil {
		m.OutboxPublished.Inc()
	}
}

func (m *Metrics) IncOutboxFailure() {
	if m != nil {
		m.OutboxFailures.Inc()
	}
}
