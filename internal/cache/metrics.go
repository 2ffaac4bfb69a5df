package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by partition tier
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_agent_cache_hits_total",
			Help: "Total number of cache partition hits",
		},
		[]string{"tier"}, // "static", "dynamic", "images", "api"
	)

	// CacheMisses tracks cache misses by partition tier
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_agent_cache_misses_total",
			Help: "Total number of cache partition misses",
		},
		[]string{"tier"},
	)

	// CacheBytes tracks response body bytes written per tier
	CacheBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_agent_cache_written_bytes_total",
			Help: "Total response body bytes written into cache partitions",
		},
		[]string{"tier"},
	)

	// CacheErrors tracks store operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_agent_cache_errors_total",
			Help: "Total number of cache store errors",
		},
		[]string{"operation"}, // "get", "put", "delete", ...
	)

	// CacheEvictions tracks entries removed by the expiry sweeper and partitions removed on activation
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_agent_cache_evictions_total",
			Help: "Total number of evicted cache entries and partitions",
		},
		[]string{"reason"}, // "expired", "superseded"
	)
)
