// Package metrics exposes Prometheus collectors for the ranking service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "trophy"
	subsystem = "ranking"
)

var registry = prometheus.NewRegistry()

var (
	scoreUpdates = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "score_updates_total",
		Help:      "Score deltas applied to the index.",
	})

	tierFallbacks = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "tier_fallbacks_total",
		Help:      "Reads that fell through to the next storage tier.",
	}, []string{"operation", "tier"})

	backgroundFailures = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "background_failures_total",
		Help:      "Failed fire-and-forget tasks by task name.",
	}, []string{"task"})

	snapshotLookups = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "snapshot_lookups_total",
		Help:      "Snapshot reads by result (hit, miss).",
	}, []string{"result"})

	snapshotRebuilds = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "snapshot_rebuilds_total",
		Help:      "Snapshot rebuild attempts by outcome.",
	}, []string{"outcome"})

	writeThroughBatches = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "writethrough_batches_total",
		Help:      "Batches flushed to the durable store.",
	})

	writeThroughRecords = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "writethrough_records_total",
		Help:      "Player rows written by the write-through flusher.",
	})

	writeThroughFailures = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "writethrough_failures_total",
		Help:      "Write-through attempts that failed.",
	})

	writeThroughQueueDepth = promauto.With(registry).NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "writethrough_queue_depth",
		Help:      "Score writes waiting for the flusher.",
	})

	operationLatency = promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "operation_duration_seconds",
		Help:      "Engine operation latency.",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"operation"})

	scoreEvents = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "score_events_total",
		Help:      "Consumed score events by result (applied, deferred, malformed, failed).",
	}, []string{"result"})

	eventsPublished = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "events_published_total",
		Help:      "Score events handed to Kafka by outcome.",
	}, []string{"outcome"})

	httpRequests = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

func RecordScoreUpdate() {
	scoreUpdates.Inc()
}

func RecordFallback(operation, tier string) {
	tierFallbacks.WithLabelValues(operation, tier).Inc()
}

func RecordBackgroundFailure(task string) {
	backgroundFailures.WithLabelValues(task).Inc()
}

func RecordSnapshotLookup(hit bool) {
	if hit {
		snapshotLookups.WithLabelValues("hit").Inc()
		return
	}
	snapshotLookups.WithLabelValues("miss").Inc()
}

func RecordSnapshotRebuild(ok bool) {
	if ok {
		snapshotRebuilds.WithLabelValues("success").Inc()
		return
	}
	snapshotRebuilds.WithLabelValues("failure").Inc()
}

func RecordWriteThroughBatch(records int) {
	writeThroughBatches.Inc()
	writeThroughRecords.Add(float64(records))
}

func RecordWriteThroughFailure() {
	writeThroughFailures.Inc()
}

func SetWriteThroughQueueDepth(depth int) {
	writeThroughQueueDepth.Set(float64(depth))
}

// ObserveOperation records the time elapsed since start.
func ObserveOperation(operation string, start time.Time) {
	operationLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func RecordScoreEvent(result string) {
	scoreEvents.WithLabelValues(result).Inc()
}

func RecordEventsPublished(count int, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	eventsPublished.WithLabelValues(outcome).Add(float64(count))
}

func RecordHTTPRequest(route, method string, status int) {
	httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
}
