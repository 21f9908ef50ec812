package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wabot_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wabot_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Bot metrics
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wabot_messages_received_total",
			Help: "Total inbound messages buffered",
		},
		[]string{"chat_type"}, // "private" or "group"
	)

	RepliesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wabot_replies_sent_total",
			Help: "Total automatic replies",
		},
		[]string{"result"}, // "ok", "error" or "skipped"
	)

	// Session metrics
	SessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wabot_session_transitions_total",
			Help: "Total session status transitions",
		},
		[]string{"status"},
	)

	ReconnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wabot_reconnect_attempts_total",
			Help: "Total reconnect attempts",
		},
		[]string{"reason"},
	)

	SSEClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wabot_sse_clients",
			Help: "Connected event stream clients",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wabot_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"limit"},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wabot_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)
)

// Buffer is the view of the message buffer exported as gauges.
type Buffer interface {
	Size() int
	Keys() []string
	Len(key string) int
}

// RegisterBuffer exposes the per-sender message buffer on reg. The gauges
// are computed at scrape time.
func RegisterBuffer(reg prometheus.Registerer, b Buffer) error {
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "wabot_buffered_senders",
			Help: "Senders with buffered messages",
		}, func() float64 {
			return float64(len(b.Keys()))
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "wabot_buffered_messages",
			Help: "Messages held in the buffer",
		}, func() float64 {
			total := 0
			for _, k := range b.Keys() {
				total += b.Len(k)
			}
			return float64(total)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "wabot_buffer_capacity_per_sender",
			Help: "Messages kept per sender before the oldest is dropped",
		}, func() float64 {
			return float64(b.Size())
		}),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
