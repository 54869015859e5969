// Package metrics declares the Prometheus collectors exposed by the two
// services.
//
// Collectors are registered once at program start via the New* constructors
// and handed through constructors; scrapers cache their label-bound handles
// instead of re-deriving them per request. Production code registers on the
// default registry (which the status listeners expose in text format, and
// which already carries process_start_time_seconds via the standard process
// collector); tests pass their own registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// scopeLabels are the labels shared by all per-scope collectors.
var scopeLabels = []string{"basearch", "stream", "graph_type"}

// GraphBuilder holds the graph-builder collectors.
type GraphBuilder struct {
	// GraphFinalEdges tracks the number of edges in a cached graph, after
	// processing.
	GraphFinalEdges *prometheus.GaugeVec

	// GraphFinalReleases tracks the number of releases in a cached graph,
	// after processing.
	GraphFinalReleases *prometheus.GaugeVec

	// LastRefresh records the UTC timestamp of the last graph refresh.
	LastRefresh *prometheus.GaugeVec

	// UpstreamScrapes counts upstream scrape attempts.
	UpstreamScrapes *prometheus.CounterVec

	// CachedGraphRequests counts reads of the cached graph.
	CachedGraphRequests *prometheus.CounterVec
}

// NewGraphBuilder registers the graph-builder collectors on reg and returns
// them. Call once per registry.
func NewGraphBuilder(reg prometheus.Registerer) *GraphBuilder {
	factory := promauto.With(reg)
	return &GraphBuilder{
		GraphFinalEdges: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fcos_cincinnati_gb_scraper_graph_final_edges",
			Help: "Number of edges in the cached graph, after processing.",
		}, scopeLabels),
		GraphFinalReleases: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fcos_cincinnati_gb_scraper_graph_final_releases",
			Help: "Number of releases in the cached graph, after processing.",
		}, scopeLabels),
		LastRefresh: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fcos_cincinnati_gb_scraper_graph_last_refresh_timestamp",
			Help: "UTC timestamp of last graph refresh.",
		}, scopeLabels),
		UpstreamScrapes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fcos_cincinnati_gb_scraper_upstream_scrapes_total",
			Help: "Total number of upstream scrapes.",
		}, scopeLabels),
		CachedGraphRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fcos_cincinnati_gb_cache_graph_requests_total",
			Help: "Total number of requests for a cached graph.",
		}, scopeLabels),
	}
}

// PolicyEngine holds the policy-engine collectors.
type PolicyEngine struct {
	// IncomingRequests counts incoming HTTP client requests to /v1/graph.
	IncomingRequests prometheus.Counter

	// UniqueUUIDs counts distinct node UUIDs seen by the per-instance
	// Bloom filter.
	UniqueUUIDs prometheus.Counter

	// RolloutWariness observes per-request rollout wariness.
	RolloutWariness prometheus.Histogram
}

// NewPolicyEngine registers the policy-engine collectors on reg and returns
// them. Call once per registry.
func NewPolicyEngine(reg prometheus.Registerer) *PolicyEngine {
	factory := promauto.With(reg)
	return &PolicyEngine{
		IncomingRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "fcos_cincinnati_pe_v1_graph_incoming_requests_total",
			Help: "Total number of incoming HTTP client requests to /v1/graph.",
		}),
		UniqueUUIDs: factory.NewCounter(prometheus.CounterOpts{
			Name: "fcos_cincinnati_pe_v1_graph_unique_uuids_total",
			Help: "Total number of unique node UUIDs (per-instance Bloom filter).",
		}),
		RolloutWariness: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fcos_cincinnati_pe_v1_graph_rollout_wariness",
			Help:    "Per-request rollout wariness.",
			Buckets: prometheus.LinearBuckets(0.0, 0.1, 11),
		}),
	}
}
