// Package observability holds the Prometheus collectors shared across the service.
package observability

import (
	"errors"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		},
		[]string{"method", "route", "status"},
	)

	evaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geohash_evaluations_total",
			Help: "Function evaluations by outcome (ok, null, error).",
		},
		[]string{"outcome"},
	)

	codecOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geohash_codec_op_total",
			Help: "Codec operations by op and result.",
		},
		[]string{"op", "result"},
	)

	codecOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geohash_codec_op_duration_seconds",
			Help:    "Codec operation latency in seconds.",
			Buckets: prometheus.ExponentialBuckets(1e-7, 4, 10),
		},
		[]string{"op"},
	)

	cacheOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_op_total",
			Help: "Redis operations by op and result.",
		},
		[]string{"op", "result"},
	)

	redisOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation latency in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op"},
	)

	ingestEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_events_total",
			Help: "Point events consumed by outcome.",
		},
		[]string{"op", "outcome"},
	)

	ingestErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_consumer_errors_total",
			Help: "Kafka consumer errors by kind.",
		},
		[]string{"kind"},
	)
)

var all = []prometheus.Collector{
	httpRequestsTotal,
	httpRequestDurationSeconds,
	evaluationsTotal,
	codecOps,
	codecOpDuration,
	cacheOps,
	redisOpDuration,
	ingestEvents,
	ingestErrors,
}

var initMu sync.Mutex

// Init registers the collectors with reg. With enabled=false or a nil reg the
// collectors keep counting but are not exported.
func Init(reg prometheus.Registerer, enabled bool) {
	if !enabled || reg == nil {
		return
	}
	initMu.Lock()
	defer initMu.Unlock()
	for _, c := range all {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			panic(err)
		}
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func IncEvaluation(outcome string) {
	evaluationsTotal.WithLabelValues(outcome).Inc()
}

func ObserveCodec(op string, err error, durationSeconds float64) {
	codecOps.WithLabelValues(op, result(err)).Inc()
	codecOpDuration.WithLabelValues(op).Observe(durationSeconds)
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	cacheOps.WithLabelValues(op, result(err)).Inc()
	redisOpDuration.WithLabelValues(op).Observe(durationSeconds)
}

func IncIngestEvent(op, outcome string) {
	ingestEvents.WithLabelValues(op, outcome).Inc()
}

func IncIngestError(kind string) {
	ingestErrors.WithLabelValues(kind).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
