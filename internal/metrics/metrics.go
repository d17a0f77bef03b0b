// Package metrics provides Prometheus metrics for the annotation service
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nainya/textanchor/pkg/spatial"
)

// Metrics holds all Prometheus metrics for the annotator
type Metrics struct {
	// gRPC request metrics
	GrpcRequestsTotal    *prometheus.CounterVec
	GrpcRequestDuration  *prometheus.HistogramVec
	GrpcRequestsInFlight prometheus.Gauge

	// Spatial index metrics
	IndexOperationsTotal   *prometheus.CounterVec
	IndexOperationDuration *prometheus.HistogramVec
	IndexedAnnotations     prometheus.Gauge
	IndexedRects           prometheus.Gauge

	// Anchoring and gesture metrics
	AnchorOutcomesTotal *prometheus.CounterVec
	DraftOutcomesTotal  *prometheus.CounterVec
	DocumentReloads     prometheus.Counter

	// Server metrics
	ServerUptimeSeconds prometheus.GaugeFunc
	ServerStartTime     time.Time

	Registry *prometheus.Registry
}

// NewMetrics creates all metrics on a fresh registry
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.NewRegistry())
}

// NewMetricsWith creates and registers all metrics on reg
func NewMetricsWith(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		ServerStartTime: time.Now(),
		Registry:        reg,
	}
	factory := promauto.With(reg)

	// gRPC request metrics
	m.GrpcRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textanchor_grpc_requests_total",
			Help: "Total number of gRPC requests",
		},
		[]string{"method", "status"},
	)

	m.GrpcRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "textanchor_grpc_request_duration_seconds",
			Help:    "Duration of gRPC requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	m.GrpcRequestsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "textanchor_grpc_requests_in_flight",
			Help: "Number of gRPC requests currently being processed",
		},
	)

	// Spatial index metrics
	m.IndexOperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textanchor_index_operations_total",
			Help: "Total number of spatial index operations",
		},
		[]string{"operation", "status"},
	)

	m.IndexOperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "textanchor_index_operation_duration_seconds",
			Help:    "Duration of spatial index operations in seconds",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"operation"},
	)

	m.IndexedAnnotations = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "textanchor_indexed_annotations",
			Help: "Number of annotations with indexed geometry",
		},
	)

	m.IndexedRects = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "textanchor_indexed_rects",
			Help: "Number of highlight rects in the spatial index",
		},
	)

	// Anchoring and gesture metrics
	m.AnchorOutcomesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textanchor_anchor_outcomes_total",
			Help: "Selector revival outcomes (exact, reanchored, outdated, failed)",
		},
		[]string{"outcome"},
	)

	m.DraftOutcomesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textanchor_draft_outcomes_total",
			Help: "Selection gesture outcomes (committed, discarded, click)",
		},
		[]string{"outcome"},
	)

	m.DocumentReloads = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "textanchor_document_reloads_total",
			Help: "Total number of document reloads",
		},
	)

	// Server metrics
	m.ServerUptimeSeconds = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "textanchor_server_uptime_seconds",
			Help: "Server uptime in seconds",
		},
		func() float64 { return time.Since(m.ServerStartTime).Seconds() },
	)

	return m
}

// RecordGrpcRequest records a gRPC request with its status
func (m *Metrics) RecordGrpcRequest(method string, status string, duration time.Duration) {
	m.GrpcRequestsTotal.WithLabelValues(method, status).Inc()
	m.GrpcRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveIndexOperation records a spatial index operation
func (m *Metrics) ObserveIndexOperation(op string, d time.Duration, err error) {
	status := "success"
	switch {
	case errors.Is(err, spatial.ErrNoGeometry):
		status = "empty"
	case err != nil:
		status = "error"
	}
	m.IndexOperationsTotal.WithLabelValues(op, status).Inc()
	m.IndexOperationDuration.WithLabelValues(op).Observe(d.Seconds())
}

// SetIndexSize updates the index size gauges
func (m *Metrics) SetIndexSize(annotations, rects int) {
	m.IndexedAnnotations.Set(float64(annotations))
	m.IndexedRects.Set(float64(rects))
}

// ObserveAnchor counts a selector revival outcome
func (m *Metrics) ObserveAnchor(outcome string) {
	m.AnchorOutcomesTotal.WithLabelValues(outcome).Inc()
}

// ObserveDraft counts a gesture outcome
func (m *Metrics) ObserveDraft(outcome string) {
	m.DraftOutcomesTotal.WithLabelValues(outcome).Inc()
}

// RecordReload counts a document reload
func (m *Metrics) RecordReload() {
	m.DocumentReloads.Inc()
}
