package router

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentcore",
		Subsystem: "router",
		Name:      "requests_total",
		Help:      "Routed requests by provider and outcome.",
	}, []string{"provider", "outcome"})

	costTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agentcore",
		Subsystem: "router",
		Name:      "cost_usd_total",
		Help:      "Cumulative estimated cost of routed requests in USD.",
	})

	degradedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agentcore",
		Subsystem: "router",
		Name:      "degraded_responses_total",
		Help:      "Synthetic responses returned because no provider was usable.",
	})
)

func observeSuccess(provider string, cost float64) {
	requestsTotal.WithLabelValues(provider, "success").Inc()
	if cost > 0 {
		costTotal.Add(cost)
	}
}

func observeFailure(provider string) {
	requestsTotal.WithLabelValues(provider, "failure").Inc()
}

func observeDegraded() {
	degradedTotal.Inc()
}
