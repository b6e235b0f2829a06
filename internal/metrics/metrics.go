// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "leaderboard_submissions_total", Help: "Score submissions by outcome"},
		[]string{"outcome"},
	)
	PipelineDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "leaderboard_pipeline_pending", Help: "Score events waiting for rank and aggregate updates"},
	)
	FanoutDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "leaderboard_fanout_delivered_total", Help: "Events delivered to subscribers"},
	)
	FanoutDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "leaderboard_fanout_dropped_total", Help: "Events dropped before delivery"},
		[]string{"reason"},
	)
	Subscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "leaderboard_ws_connections", Help: "Open realtime connections"},
	)
	Reconciliations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "leaderboard_reconciliations_total", Help: "Index rebuilds from the score store"},
		[]string{"result"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

func init() {
	prometheus.MustRegister(Submissions, PipelineDepth, FanoutDelivered, FanoutDropped, Subscribers, Reconciliations)
	prometheus.MustRegister(httpRequestDuration)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Hijack lets websocket upgrades pass through the middleware.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Middleware observes request latency. route names the handler so that path
// parameters do not explode label cardinality.
func Middleware(route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)
			httpRequestDuration.
				WithLabelValues(r.Method, route(r), strconv.Itoa(rw.status)).
				Observe(time.Since(start).Seconds())
		})
	}
}
