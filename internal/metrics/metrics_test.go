package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestMiddlewareRecordsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Middleware())
	r.GET("/api/thing/:id", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	before := counterValue(t, HTTPRequestsTotal.WithLabelValues("GET", "/api/thing/:id", "2xx"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/thing/42", nil))
	require.Equal(t, http.StatusOK, w.Code)

	after := counterValue(t, HTTPRequestsTotal.WithLabelValues("GET", "/api/thing/:id", "2xx"))
	assert.Equal(t, before+1, after)
}

func TestPaymentFailureCategories(t *testing.T) {
	before := counterValue(t, PaymentFailuresTotal.WithLabelValues("user_rejected"))
	PaymentFailuresTotal.WithLabelValues("user_rejected").Inc()
	after := counterValue(t, PaymentFailuresTotal.WithLabelValues("user_rejected"))
	assert.Equal(t, before+1, after)
}

func TestActiveSessionGauge(t *testing.T) {
	before := gaugeValue(t, ActivePaymentSessions)
	ActivePaymentSessions.Inc()
	ActivePaymentSessions.Dec()
	assert.Equal(t, before, gaugeValue(t, ActivePaymentSessions))
}

func TestStatusBucket(t *testing.T) {
	assert.Equal(t, "2xx", statusBucket(204))
	assert.Equal(t, "4xx", statusBucket(402))
	assert.Equal(t, "5xx", statusBucket(503))
}

func TestHandlerServesMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/metrics", Handler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "medichain_payments_broadcast_total")
}
