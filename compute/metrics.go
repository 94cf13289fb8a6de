package compute

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shuttle_dispatches_total",
		Help: "Total number of compute dispatches submitted",
	})

	dispatchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shuttle_dispatch_failures_total",
		Help: "Total number of dispatches rejected before or during submission",
	})

	pipelineBuilds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shuttle_pipeline_builds_total",
		Help: "Total number of compute pipelines compiled",
	})

	pipelineCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shuttle_pipeline_cache_hits_total",
		Help: "Total number of pipeline lookups served from the per-type cache",
	})

	poolHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shuttle_pool_hits_total",
		Help: "Total number of successful buffer pool retrievals",
	})

	poolMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shuttle_pool_misses_total",
		Help: "Total number of buffer pool misses (fresh allocations)",
	})

	poolSizeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shuttle_pool_size_bytes",
		Help: "Current total size of buffers held in the pool in bytes",
	})

	poolBuffers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shuttle_pool_buffers_count",
		Help: "Current total number of buffers held in the pool",
	})
)
