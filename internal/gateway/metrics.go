package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	searchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "console_gateway_searches_total",
		Help: "Number of backend log searches issued",
	})
	searchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "console_gateway_search_failures_total",
		Help: "Number of backend log searches that failed or were rejected by the breaker",
	})
)
