package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
// The realtime registries and the progress tracker report into these
// instead of logging: a dead connection or a dropped event is an expected
// operational condition, not an error.
type Metrics struct {
	WSConnections prometheus.Gauge
	SSEClients    prometheus.Gauge

	Broadcasts    *prometheus.CounterVec
	SendErrors    *prometheus.CounterVec
	DroppedEvents prometheus.Counter

	TasksCreated prometheus.Counter
	TaskUpdates  *prometheus.CounterVec
	TasksReaped  prometheus.Counter

	handler http.Handler
}

func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(namespace, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewMetricsWith registers the instruments on an explicit registerer so
// tests can build isolated instances without colliding on the default
// registry. The gatherer backs Handler, so an instance only ever exposes
// the registry it registered into.
func NewMetricsWith(namespace string, reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	auto := promauto.With(reg)
	return &Metrics{
		WSConnections: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Number of live websocket connections across all channels.",
		}),
		SSEClients: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sse_clients",
			Help:      "Number of registered SSE clients across all channels.",
		}),
		Broadcasts: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Channel broadcasts by transport.",
		}, []string{"transport"}),
		SendErrors: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_errors_total",
			Help:      "Per-subscriber send failures by transport; each one prunes a subscriber.",
		}, []string{"transport"}),
		DroppedEvents: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_events_total",
			Help:      "Events dropped from full SSE client queues (drop-oldest policy).",
		}),
		TasksCreated: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_created_total",
			Help:      "Progress tasks created.",
		}),
		TaskUpdates: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_updates_total",
			Help:      "Progress task updates by resulting status.",
		}, []string{"status"}),
		TasksReaped: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_reaped_total",
			Help:      "Terminal tasks removed by the reaper.",
		}),

		handler: promhttp.HandlerFor(g, promhttp.HandlerOpts{}),
	}
}

// Handler serves the instruments registered by this instance.
func (m *Metrics) Handler() http.Handler {
	return m.handler
}
