// Package metrics provides Prometheus collectors for fetch activity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Load outcomes
const (
	ResultCacheHit  = "cache_hit"
	ResultComplete  = "complete"
	ResultCancelled = "cancelled"
	ResultFailed    = "failed"
	ResultRejected  = "rejected"
)

// Chunk sources
const (
	SourceNetwork = "network"
	SourceCache   = "cache"
)

// Collector records fetcher metrics. A nil *Collector is valid and records
// nothing.
type Collector struct {
	chunkRequests *prometheus.CounterVec
	chunkDuration prometheus.Histogram
	chunkBytes    *prometheus.CounterVec
	loads         *prometheus.CounterVec
	progress      *prometheus.GaugeVec
	chunkSize     *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector registers the fetcher collectors on reg. A nil reg uses the
// default registry.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	return &Collector{
		chunkRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunk_requests_total",
				Help:      "Range requests issued for artifact chunks",
			},
			[]string{"artifact", "status"},
		),
		chunkDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "chunk_fetch_duration_seconds",
				Help:      "Time to fetch and persist one chunk",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
			},
		),
		chunkBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunk_bytes_total",
				Help:      "Chunk bytes placed into assembly buffers",
			},
			[]string{"artifact", "source"},
		),
		loads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "loads_total",
				Help:      "Artifact load attempts by outcome",
			},
			[]string{"artifact", "result"},
		),
		progress: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "download_progress_ratio",
				Help:      "Progress of the current load in [0,1]",
			},
			[]string{"artifact"},
		),
		chunkSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "chunk_size_bytes",
				Help:      "Chunk size chosen for the current load",
			},
			[]string{"artifact"},
		),
		logger: logger.With(zap.String("component", "metrics")),
	}
}

// RecordChunkRequest records one range request and its duration
func (c *Collector) RecordChunkRequest(artifact, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.chunkRequests.WithLabelValues(artifact, status).Inc()
	c.chunkDuration.Observe(duration.Seconds())
}

// RecordChunkBytes records bytes placed into the buffer from source
func (c *Collector) RecordChunkBytes(artifact, source string, n int) {
	if c == nil {
		return
	}
	c.chunkBytes.WithLabelValues(artifact, source).Add(float64(n))
}

// RecordLoad records the outcome of one load attempt
func (c *Collector) RecordLoad(artifact, result string) {
	if c == nil {
		return
	}
	c.loads.WithLabelValues(artifact, result).Inc()
	c.logger.Debug("load recorded", zap.String("artifact", artifact), zap.String("result", result))
}

// SetProgress sets the progress gauge
func (c *Collector) SetProgress(artifact string, fraction float64) {
	if c == nil {
		return
	}
	c.progress.WithLabelValues(artifact).Set(fraction)
}

// SetChunkSize sets the chunk size gauge
func (c *Collector) SetChunkSize(artifact string, size int64) {
	if c == nil {
		return
	}
	c.chunkSize.WithLabelValues(artifact).Set(float64(size))
}
