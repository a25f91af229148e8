// Package metrics provides Prometheus instrumentation for the payment flow
// and the dev backend.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path pattern, and
	// status bucket.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medichain",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "medichain",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// PaymentsBroadcastTotal counts transactions accepted for broadcast by
	// the wallet.
	PaymentsBroadcastTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "medichain",
		Name:      "payments_broadcast_total",
		Help:      "Total payment transactions broadcast.",
	})

	// PaymentsConfirmedTotal counts broadcasts confirmed in the background.
	PaymentsConfirmedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "medichain",
		Name:      "payments_confirmed_total",
		Help:      "Total payment transactions confirmed on-chain.",
	})

	// PaymentFailuresTotal counts failed payment attempts by taxonomy
	// category.
	PaymentFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medichain",
			Name:      "payment_failures_total",
			Help:      "Total failed payment attempts by error category.",
		},
		[]string{"category"},
	)

	// PaymentChallengesTotal counts 402 challenges issued by service.
	PaymentChallengesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medichain",
			Name:      "payment_challenges_total",
			Help:      "Total HTTP 402 challenges issued by service.",
		},
		[]string{"service"},
	)

	// PaymentProofsAcceptedTotal counts accepted payment proofs by service.
	PaymentProofsAcceptedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medichain",
			Name:      "payment_proofs_accepted_total",
			Help:      "Total payment proofs accepted by service.",
		},
		[]string{"service"},
	)

	// ActivePaymentSessions tracks open payment sessions.
	ActivePaymentSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "medichain",
		Name:      "active_payment_sessions",
		Help:      "Number of currently open payment sessions.",
	})

	// ActiveWebSocketClients tracks connected event-feed clients.
	ActiveWebSocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "medichain",
		Name:      "active_websocket_clients",
		Help:      "Number of currently connected WebSocket clients.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		PaymentsBroadcastTotal,
		PaymentsConfirmedTotal,
		PaymentFailuresTotal,
		PaymentChallengesTotal,
		PaymentProofsAcceptedTotal,
		ActivePaymentSessions,
		ActiveWebSocketClients,
	)
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // route pattern, not raw path
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus handler for the /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
