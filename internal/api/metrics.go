package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type metrics struct {
	registry *prometheus.Registry
	launches prometheus.Counter
	events   *prometheus.CounterVec
	clears   *prometheus.CounterVec
	streams  prometheus.Gauge
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		launches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voiceauth",
			Name:      "launches_total",
			Help:      "Authentication flows launched through the API.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voiceauth",
			Name:      "events_total",
			Help:      "Events emitted by the native module, by event name.",
		}, []string{"event"}),
		clears: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voiceauth",
			Name:      "credential_clears_total",
			Help:      "Credential clear requests, by outcome.",
		}, []string{"outcome"}),
		streams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voiceauth",
			Name:      "event_streams",
			Help:      "Open event streams.",
		}),
	}
	m.registry.MustRegister(
		m.launches,
		m.events,
		m.clears,
		m.streams,
		collectors.NewGoCollector(),
	)
	return m
}
