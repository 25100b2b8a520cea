// Package metrics exposes Prometheus instruments for the ledger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "portfolio"

// Ledger groups the instruments updated by the services and workers.
// A nil *Ledger is valid and records nothing.
type Ledger struct {
	intents         *prometheus.CounterVec
	intentDuration  *prometheus.HistogramVec
	eventsPublished prometheus.Counter
	publishFailures prometheus.Counter
	settled         prometheus.Counter
	archived        prometheus.Counter
	httpRequests    *prometheus.CounterVec
}

// New registers the ledger instruments with reg.
func New(reg prometheus.Registerer) *Ledger {
	f := promauto.With(reg)
	return &Ledger{
		intents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intents_total",
			Help:      "Ledger intents by operation and outcome code.",
		}, []string{"intent", "outcome"}),
		intentDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "intent_duration_seconds",
			Help:      "Time from lock acquisition to commit or rejection.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"intent"}),
		eventsPublished: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Committed events relayed to the signal bus.",
		}),
		publishFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_failures_total",
			Help:      "Committed events that could not be relayed.",
		}),
		settled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auctions_settled_by_keeper_total",
			Help:      "Auctions settled by the background settler.",
		}),
		archived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_archived_total",
			Help:      "Events exported to object storage.",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status class.",
		}, []string{"method", "status"}),
	}
}

// ObserveIntent records one intent outcome. outcome is "ok" or an error code.
func (m *Ledger) ObserveIntent(intent, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.intents.WithLabelValues(intent, outcome).Inc()
	m.intentDuration.WithLabelValues(intent).Observe(seconds)
}

func (m *Ledger) EventPublished() {
	if m != nil {
		m.eventsPublished.Inc()
	}
}

func (m *Ledger) PublishFailed() {
	if m != nil {
		m.publishFailures.Inc()
	}
}

func (m *Ledger) AuctionSettled() {
	if m != nil {
		m.settled.Inc()
	}
}

func (m *Ledger) EventsArchived(n int) {
	if m != nil {
		m.archived.Add(float64(n))
	}
}

// HTTPRequest records a served request.
func (m *Ledger) HTTPRequest(method, statusClass string) {
	if m != nil {
		m.httpRequests.WithLabelValues(method, statusClass).Inc()
	}
}
