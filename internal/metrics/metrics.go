// Package metrics exposes Prometheus collectors for the bridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_frames_emitted_total",
		Help: "Frames written to clients, by frame kind",
	}, []string{"kind"})

	Heartbeats = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_heartbeats_total",
		Help: "Zero-length keepalive deltas written to clients",
	})

	BackendEventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_backend_events_dropped_total",
		Help: "Upstream lines and events ignored by the bridge",
	}, []string{"reason"})

	BackendFieldsInvalid = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_backend_fields_invalid_total",
		Help: "Upstream event fields skipped because of an unexpected type",
	})

	BackendConnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_backend_connect_attempts_total",
		Help: "Connection attempts to the backend, by outcome",
	}, []string{"outcome"})

	ClientDisconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_client_disconnects_total",
		Help: "Streams whose client went away before the response finished",
	})

	StreamsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_streams_active",
		Help: "Bridge runs currently streaming",
	})

	StreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bridge_stream_duration_seconds",
		Help:    "Wall time of a bridge run, by finish reason",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"finish_reason"})

	ClientFramesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_client_frames_skipped_total",
		Help: "Frames the client-side demultiplexer could not route",
	}, []string{"reason"})
)
