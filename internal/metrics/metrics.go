// Package metrics exposes prometheus instrumentation for the record sink.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "recordship"

// Transaction results.
const (
	ResultSent     = "sent"
	ResultEmpty    = "empty"
	ResultDeclined = "declined"
	ResultFailed   = "failed"
)

// Metrics holds the sink collectors. A nil *Metrics records nothing.
type Metrics struct {
	transactions *prometheus.CounterVec
	records      prometheus.Counter
	bytes        prometheus.Counter
	duration     prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_total",
				Help:      "Send calls by result.",
			},
			[]string{"result"},
		),
		records: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Records written by completed transactions.",
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_total",
			Help:      "Serialized bytes transmitted.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_duration_seconds",
			Help:      "Duration of send calls.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.transactions, m.records, m.bytes, m.duration)
	}
	return m
}

// ObserveSend records the outcome of one send call.
func (m *Metrics) ObserveSend(result string, records, bytes int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(result).Inc()
	if records > 0 {
		m.records.Add(float64(records))
	}
	if bytes > 0 {
		m.bytes.Add(float64(bytes))
	}
	m.duration.Observe(elapsed.Seconds())
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
