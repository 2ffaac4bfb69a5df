package strategy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Responses tracks intercepted responses by request class and source
	Responses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_agent_responses_total",
			Help: "Total number of intercepted responses by class and source",
		},
		[]string{"class", "source"}, // source: "network", "cache", "stale", "fallback"
	)

	// NetworkTimeouts tracks network-first races lost to the timeout
	NetworkTimeouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_agent_network_timeouts_total",
			Help: "Total number of network-first timeouts",
		},
		[]string{"partition"},
	)
)
