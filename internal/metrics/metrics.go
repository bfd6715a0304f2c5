package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decentchat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "decentchat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Relay metrics
	PeersConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "decentchat_peers_connected",
			Help: "Websocket peers currently connected",
		},
	)

	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decentchat_frames_total",
			Help: "Sync frames received from peers",
		},
		[]string{"type"}, // "put", "get", "hi", "ack" or "invalid"
	)

	PutsAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "decentchat_puts_accepted_total",
			Help: "Puts merged into the relay graph",
		},
	)

	PutsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decentchat_puts_rejected_total",
			Help: "Puts refused by the relay",
		},
		[]string{"reason"},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decentchat_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decentchat_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "decentchat_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)

	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "decentchat_store_latency_seconds",
			Help:    "Node store query latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
		[]string{"backend"}, // "sqlite", "postgres" or "scylla"
	)
)
