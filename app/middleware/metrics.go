package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Total HTTP requests partitioned by method, route, and status code
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	// Request duration in seconds partitioned by method, route, and status code
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// In-flight HTTP requests
	httpInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Number of HTTP requests currently being served",
		},
	)

	// Number purchase submissions partitioned by provider and outcome
	purchasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phone_number_purchases_total",
			Help: "Number purchase submissions by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	// Webhook deliveries partitioned by provider and outcome
	webhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_webhooks_total",
			Help: "Provider webhook deliveries by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)
)

// RecordPurchase counts one purchase attempt outcome
func RecordPurchase(provider, outcome string) {
	purchasesTotal.With(prometheus.Labels{"provider": provider, "outcome": outcome}).Inc()
}

// RecordWebhook counts one webhook delivery outcome
func RecordWebhook(provider, outcome string) {
	webhooksTotal.With(prometheus.Labels{"provider": provider, "outcome": outcome}).Inc()
}

// Metrics returns a Fiber v3 middleware that records basic Prometheus metrics.
// Labels are kept low-cardinality by using the matched route path when available.
func Metrics() fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		err := c.Next()

		status := c.Response().StatusCode()
		method := c.Method()
		route := c.Path()
		if r := c.Route(); r != nil && r.Path != "" {
			route = r.Path // Use route template to avoid high cardinality
		}

		labels := prometheus.Labels{
			"method": method,
			"route":  route,
			"status": strconv.Itoa(status),
		}
		httpRequestsTotal.With(labels).Inc()
		httpRequestDuration.With(labels).Observe(time.Since(start).Seconds())

		return err
	}
}
