// Package server exposes Prometheus metrics for connections, rooms and event
// delivery on a registry owned by each Server.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tyrowin/kollab-chat/internal/rooms"
)

const metricsNamespace = "chat"

// Metrics groups the collectors updated by the dispatcher and router.
type Metrics struct {
	registry   *prometheus.Registry
	events     *prometheus.CounterVec
	rejections *prometheus.CounterVec
	deliveries prometheus.Counter
	dropped    prometheus.Counter
}

// NewMetrics registers the chat collectors on a fresh registry. Room and
// connection counts are read from store and registry at scrape time.
func NewMetrics(store *rooms.Store, registry *rooms.Registry) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "active_rooms",
		Help:      "Number of rooms currently registered.",
	}, func() float64 { return float64(store.Len()) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "connections",
		Help:      "Number of live connections known to the room registry.",
	}, func() float64 { return float64(registry.Len()) })

	return &Metrics{
		registry: reg,
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_total",
			Help:      "Inbound events accepted for dispatch, by event name.",
		}, []string{"event"}),
		rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rejections_total",
			Help:      "Error notices sent to originators, by notice code.",
		}, []string{"code"}),
		deliveries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "deliveries_total",
			Help:      "Frames queued to room members.",
		}),
		dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "dropped_total",
			Help:      "Frames that could not be queued; the receiver is evicted.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
