// monitor/monitor.go
package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Connections      prometheus.Gauge
	ActiveRooms      prometheus.Gauge
	EventsReceived   *prometheus.CounterVec
	EventLatency     prometheus.Histogram
	JoinsRejected    *prometheus.CounterVec
	Pairings         prometheus.Counter
	PuzzlesCompleted *prometheus.CounterVec
	AuditDropped     prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Number of open websocket connections",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms",
			Help:      "Number of live rooms",
		}),
		EventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Inbound events by name",
		}, []string{"event"}),
		EventLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_latency_seconds",
			Help:      "Event handling latency",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		JoinsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "joins_rejected_total",
			Help:      "Rejected joins by reason",
		}, []string{"reason"}),
		Pairings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pairings_total",
			Help:      "Rooms that reached two members",
		}),
		PuzzlesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "puzzles_completed_total",
			Help:      "Completed puzzles by problem id",
		}, []string{"problem"}),
		AuditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_dropped_total",
			Help:      "Audit records dropped because the queue was full",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Connections,
		m.ActiveRooms,
		m.EventsReceived,
		m.EventLatency,
		m.JoinsRejected,
		m.Pairings,
		m.PuzzlesCompleted,
		m.AuditDropped,
	}
}

// Monitor owns a private registry so several servers can live in one process.
type Monitor struct {
	metrics   *Metrics
	registry  *prometheus.Registry
	startTime time.Time
}

func NewMonitor(namespace string) *Monitor {
	m := &Monitor{
		metrics:   NewMetrics(namespace),
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
	}
	m.registry.MustRegister(m.metrics.collectors()...)
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: namespace}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since start",
		}, func() float64 { return m.Uptime().Seconds() }),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Monitor) Metrics() *Metrics {
	return m.metrics
}

func (m *Monitor) Uptime() time.Duration {
	return time.Since(m.startTime)
}

func (m *Monitor) IncConnections() {
	m.metrics.Connections.Inc()
}

func (m *Monitor) DecConnections() {
	m.metrics.Connections.Dec()
}

func (m *Monitor) SetActiveRooms(count int) {
	m.metrics.ActiveRooms.Set(float64(count))
}

func (m *Monitor) IncEventsReceived(event string) {
	m.metrics.EventsReceived.WithLabelValues(event).Inc()
}

func (m *Monitor) ObserveEventLatency(duration time.Duration) {
	m.metrics.EventLatency.Observe(duration.Seconds())
}

func (m *Monitor) IncJoinsRejected(reason string) {
	m.metrics.JoinsRejected.WithLabelValues(reason).Inc()
}

func (m *Monitor) IncPairings() {
	m.metrics.Pairings.Inc()
}

func (m *Monitor) IncPuzzlesCompleted(problem string) {
	m.metrics.PuzzlesCompleted.WithLabelValues(problem).Inc()
}

func (m *Monitor) IncAuditDropped() {
	m.metrics.AuditDropped.Inc()
}
