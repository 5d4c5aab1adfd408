package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)

	HttpRequestsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests being processed",
		},
		[]string{"service"},
	)

	// Positioning metrics
	LocationSamplesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "location_samples_total",
			Help: "Location samples received, by source",
		},
		[]string{"source"},
	)

	PlacementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placements_total",
			Help: "Canonical positions emitted, by source and kind",
		},
		[]string{"source", "kind"},
	)

	ArbiterTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbiter_transitions_total",
			Help: "Location arbiter mode transitions",
		},
		[]string{"from", "to"},
	)

	HeadingEmittedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "heading_emitted_total",
			Help: "Heading values emitted after throttling",
		},
	)

	HeadingDiscardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heading_discarded_total",
			Help: "Sensor updates that produced no heading",
		},
		[]string{"reason"},
	)

	// Connection metrics
	ChannelReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rtk_channel_reconnects_total",
			Help: "Reconnect attempts scheduled by the RTK channel",
		},
	)

	ChannelFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rtk_channel_failures_total",
			Help: "Terminal RTK connection failures after exhausting reconnect attempts",
		},
	)

	ChannelFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtk_channel_frames_total",
			Help: "RTK frames by direction and outcome",
		},
		[]string{"direction", "status"},
	)

	// Rendering surface metrics
	BridgeMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_messages_total",
			Help: "Messages handled by the map bridge",
		},
		[]string{"direction", "type", "status"},
	)

	SurfaceConnectionsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "surface_connections",
			Help: "Current number of connected rendering surfaces",
		},
	)

	TrackCompactionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "track_compactions_total",
			Help: "Track segments shrunk after reaching their cap",
		},
	)

	// CollaboratorUnavailableTotal counts failed attempts to reach an optional
	// collaborator (sensor broker, fan-out broker). The engine keeps running.
	CollaboratorUnavailableTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collaborator_unavailable_total",
			Help: "Failed connection attempts to optional collaborators",
		},
		[]string{"collaborator"},
	)

	RabbitMQMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rabbitmq_messages_published_total",
			Help: "Total number of messages published to RabbitMQ",
		},
		[]string{"service", "exchange", "status"},
	)
)

// RecordHTTPMetrics records HTTP request metrics
func RecordHTTPMetrics(service, method, path string, statusCode int, duration time.Duration) {
	status := strconv.Itoa(statusCode)
	HttpRequestsTotal.WithLabelValues(service, method, path, status).Inc()
	HttpRequestDuration.WithLabelValues(service, method, path, status).Observe(duration.Seconds())
}

// RecordBridgeMessage counts one bridge message.
func RecordBridgeMessage(direction, msgType, status string) {
	BridgeMessagesTotal.WithLabelValues(direction, msgType, status).Inc()
}

// RecordRabbitMQPublish records RabbitMQ publish metrics
func RecordRabbitMQPublish(service, exchange string, err error) {
	RabbitMQMessagesPublished.WithLabelValues(service, exchange, status(err)).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
