package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for MessagesTotal.
const (
	OutcomeSuccess     = "success"
	OutcomeDecodeError = "decode_error"
	OutcomeSinkError   = "sink_error"
)

// Metrics groups the router's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	messagesTotal  *prometheus.CounterVec
	fallbackTotal  *prometheus.CounterVec
	sinkDuration   *prometheus.HistogramVec
	provisionTotal *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		messagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "traffic_router",
				Name:      "messages_total",
				Help:      "Messages handled by the dispatch router, by topic and outcome.",
			},
			[]string{"topic", "outcome"},
		),
		fallbackTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "traffic_router",
				Name:      "fallback_total",
				Help:      "Messages from unregistered topics routed to the fallback destination.",
			},
			[]string{"topic"},
		),
		sinkDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "traffic_router",
				Name:      "sink_duration_seconds",
				Help:      "Latency of a single sink send.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		provisionTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "traffic_router",
				Name:      "index_provision_total",
				Help:      "Index creation attempts, by collection and result.",
			},
			[]string{"collection", "result"},
		),
	}

	for _, c := range []prometheus.Collector{m.messagesTotal, m.fallbackTotal, m.sinkDuration, m.provisionTotal} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) Message(topic, outcome string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(topic, outcome).Inc()
}

// Fallback counts a message routed to the fallback destination. The message
// is still counted once by Message with its final outcome.
func (m *Metrics) Fallback(topic string) {
	if m == nil {
		return
	}
	m.fallbackTotal.WithLabelValues(topic).Inc()
}

func (m *Metrics) SinkDuration(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.sinkDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) IndexProvisioned(collection string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.provisionTotal.WithLabelValues(collection, result).Inc()
}
