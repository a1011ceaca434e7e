package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sift_requests_total",
			Help: "Total number of API requests handled",
		},
		[]string{"endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sift_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"endpoint"},
	)

	CollectorRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sift_collector_requests_total",
			Help: "Total number of collector runs by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	CollectorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sift_collector_duration_seconds",
			Help:    "Duration of collector runs in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"source"},
	)

	CacheOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sift_cache_ops_total",
			Help: "Total cache operations by op and outcome",
		},
		[]string{"op", "outcome"},
	)
)

// RecordRequest updates the API request metrics for one handled request.
func RecordRequest(endpoint string, status int, d time.Duration) {
	RequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	RequestDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// RecordCollector updates the collector metrics for one run. Outcome is one
// of "success", "cached", "error" or "timeout".
func RecordCollector(source, outcome string, d time.Duration) {
	CollectorRequestsTotal.WithLabelValues(source, outcome).Inc()
	CollectorDuration.WithLabelValues(source).Observe(d.Seconds())
}

// RecordCacheOp counts one cache operation. Op is "get" or "put"; outcome is
// "hit", "miss", "stale", "ok" or "error".
func RecordCacheOp(op, outcome string) {
	CacheOpsTotal.WithLabelValues(op, outcome).Inc()
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		// Suppress the error from intentional shutdown
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server failed: %v\n", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
