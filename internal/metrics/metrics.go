// Package metrics exposes Prometheus instrumentation for the local chat relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection and room state
	Connections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "localchat_connections",
			Help: "Current number of open WebSocket connections",
		},
	)

	Rooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "localchat_rooms",
			Help: "Current number of non-empty area rooms",
		},
	)

	Sessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "localchat_sessions",
			Help: "Current number of user sessions kept for reconnection",
		},
	)

	// Protocol traffic
	FramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "localchat_frames_received_total",
			Help: "Total number of inbound frames by type",
		},
		[]string{"type"},
	)

	ProtocolErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "localchat_protocol_errors_total",
			Help: "Total number of error frames sent to clients",
		},
		[]string{"code"},
	)

	BroadcastDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "localchat_broadcast_deliveries_total",
			Help: "Total number of frames enqueued to room members",
		},
	)

	BroadcastDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "localchat_broadcast_dropped_total",
			Help: "Total number of frames dropped because a member was closed or too slow",
		},
	)

	// Voice notes
	TranscodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "localchat_transcode_duration_seconds",
			Help:    "Duration of voice note transcoding in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"outcome"}, // "converted", "fallback"
	)

	// Maintenance sweeps
	HeartbeatTerminations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "localchat_heartbeat_terminations_total",
			Help: "Total number of connections terminated for missing a heartbeat",
		},
	)

	IdleEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "localchat_idle_evictions_total",
			Help: "Total number of sessions evicted by the idle sweep",
		},
	)

	PrunedFiles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "localchat_pruned_voice_files_total",
			Help: "Total number of expired voice files deleted",
		},
	)
)
