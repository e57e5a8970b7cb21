// Package metrics exposes Prometheus instrumentation for the escrow layer.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "escrow_layer",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "escrow_layer",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "escrow_layer",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	escrowOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "escrow_layer",
			Subsystem: "escrow",
			Name:      "operations_total",
			Help:      "Total number of escrow lifecycle operations.",
		},
		[]string{"operation", "status"},
	)

	escrowOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "escrow_layer",
			Subsystem: "escrow",
			Name:      "operation_duration_seconds",
			Help:      "Duration of escrow lifecycle operations.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation"},
	)

	transferFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "escrow_layer",
			Subsystem: "gateway",
			Name:      "transfer_failures_total",
			Help:      "Total number of gateway transfer failures rolled back.",
		},
		[]string{"operation"},
	)

	feeBalance = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "escrow_layer",
			Subsystem: "treasury",
			Name:      "fee_balance",
			Help:      "Undistributed platform fee balance per asset kind.",
		},
		[]string{"asset"},
	)

	withdrawals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "escrow_layer",
			Subsystem: "treasury",
			Name:      "withdrawn_total",
			Help:      "Cumulative platform fees withdrawn per asset kind.",
		},
		[]string{"asset"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		escrowOperations,
		escrowOperationDuration,
		transferFailures,
		feeBalance,
		withdrawals,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordOperation records the outcome and duration of a lifecycle operation.
func RecordOperation(operation string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	escrowOperations.WithLabelValues(operation, status).Inc()
	escrowOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordTransferFailure counts a rolled-back gateway transfer.
func RecordTransferFailure(operation string) {
	transferFailures.WithLabelValues(operation).Inc()
}

// SetFeeBalance publishes the current fee balance for an asset kind.
func SetFeeBalance(assetKind string, balance int64) {
	feeBalance.WithLabelValues(assetKind).Set(float64(balance))
}

// RecordWithdrawal counts withdrawn platform fees.
func RecordWithdrawal(assetKind string, amount int64) {
	withdrawals.WithLabelValues(assetKind).Add(float64(amount))
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "projects" {
		return "/" + strings.Join(parts, "/")
	}
	if len(parts) == 1 {
		return "/projects"
	}
	if parts[1] == "initiate" {
		return "/projects/initiate"
	}
	if len(parts) == 2 {
		return "/projects/:id"
	}
	return "/projects/:id/" + parts[2]
}
