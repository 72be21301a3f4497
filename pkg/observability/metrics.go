package observability

import (
	"context"
	"errors"
	"net/http"

	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors fed by conversation hooks.
type Metrics struct {
	registry *prometheus.Registry

	events     *prometheus.CounterVec
	fallbacks  *prometheus.CounterVec
	rejections *prometheus.CounterVec
	transport  *prometheus.HistogramVec
	inFlight   prometheus.Gauge
}

// NewMetrics creates collectors registered on a fresh registry,
// together with the Go and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowchat_events_total",
				Help: "Chat events appended to conversations",
			},
			[]string{"origin"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowchat_fallbacks_total",
				Help: "Apology events emitted for failed backend calls",
			},
			[]string{"operation"},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowchat_rejected_submissions_total",
				Help: "Submissions refused by validation",
			},
			[]string{"reason"},
		),
		transport: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowchat_transport_duration_seconds",
				Help:    "Duration of backend calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "outcome"},
		),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flowchat_calls_in_flight",
			Help: "Conversations with a backend call in flight",
		}),
	}
	m.registry.MustRegister(
		m.events, m.fallbacks, m.rejections, m.transport, m.inFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the registry, e.g. for tests or extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Hooks returns lifecycle hooks that record into the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnEventAppended: func(_ context.Context, _ domain.ConversationRef, ev domain.ChatEvent) {
			m.events.WithLabelValues(string(ev.Origin)).Inc()
		},
		OnBusyChanged: func(_ context.Context, _ domain.ConversationRef, busy bool) {
			if busy {
				m.inFlight.Inc()
			} else {
				m.inFlight.Dec()
			}
		},
		OnTransportCall: func(_ context.Context, ev *domain.TransportEvent) {
			outcome := "ok"
			if ev.Err != nil {
				outcome = "error"
			}
			m.transport.WithLabelValues(string(ev.Operation), outcome).Observe(ev.Duration.Seconds())
		},
		OnFallback: func(_ context.Context, _ domain.ConversationRef, op domain.Operation, _ error) {
			m.fallbacks.WithLabelValues(string(op)).Inc()
		},
		OnRejected: func(_ context.Context, _ domain.ConversationRef, err error) {
			m.RecordRejection(err)
		},
	}
}

// RecordRejection counts a refused submission. Adapters call it for
// rejections that happen before a conversation is reached, like a held lock.
func (m *Metrics) RecordRejection(err error) {
	m.rejections.WithLabelValues(RejectionReason(err)).Inc()
}

// RejectionReason maps a validation error to a low-cardinality label.
func RejectionReason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, domain.ErrBusy):
		return "busy"
	case errors.Is(err, domain.ErrEmptyInput):
		return "empty_input"
	case errors.Is(err, domain.ErrNoSession):
		return "no_session"
	case errors.Is(err, domain.ErrAlreadyStarted):
		return "already_started"
	case errors.Is(err, domain.ErrUnexpectedInput):
		return "unexpected_input"
	case errors.Is(err, domain.ErrInvalidAnswer):
		return "invalid_answer"
	case errors.Is(err, domain.ErrEventNotFound), errors.Is(err, domain.ErrNotBranch):
		return "bad_event"
	case errors.Is(err, domain.ErrOptionResolved):
		return "option_resolved"
	case errors.Is(err, domain.ErrUnknownOption):
		return "unknown_option"
	default:
		return "other"
	}
}
