package search

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// nodesExpanded counts search nodes expanded across all queries.
	nodesExpanded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pepmap",
		Subsystem: "search",
		Name:      "nodes_expanded_total",
		Help:      "Total search nodes expanded",
	})

	// nodesPruned counts discarded extensions.
	// Labels: reason (empty, mass, combinations)
	nodesPruned = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pepmap",
		Subsystem: "search",
		Name:      "nodes_pruned_total",
		Help:      "Total search extensions pruned by reason",
	}, []string{"reason"})

	// matchesAccepted counts accepted nodes before deduplication.
	matchesAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pepmap",
		Subsystem: "search",
		Name:      "accepted_total",
		Help:      "Total accepted search nodes",
	})

	// queriesTotal counts finished queries.
	// Labels: status (ok, truncated, invalid, cancelled, error)
	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pepmap",
		Subsystem: "search",
		Name:      "queries_total",
		Help:      "Total queries by outcome",
	}, []string{"status"})

	// searchDuration measures the time to walk and resolve one query.
	searchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pepmap",
		Subsystem: "search",
		Name:      "duration_seconds",
		Help:      "Query search latency in seconds",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	})
)

// observe records the outcome of one search.
func observe(st Stats, err error) {
	nodesExpanded.Add(float64(st.Expanded))
	nodesPruned.WithLabelValues("empty").Add(float64(st.PrunedEmpty))
	nodesPruned.WithLabelValues("mass").Add(float64(st.PrunedMass))
	nodesPruned.WithLabelValues("combinations").Add(float64(st.PrunedCombinations))
	matchesAccepted.Add(float64(st.Accepted))
	searchDuration.Observe(st.Duration.Seconds())

	status := "ok"
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = "cancelled"
	case err != nil:
		status = "error"
	case st.Truncated:
		status = "truncated"
	}
	queriesTotal.WithLabelValues(status).Inc()
}
