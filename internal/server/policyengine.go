package server

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/corestream/cincinnati/internal/config"
	"github.com/corestream/cincinnati/pkg/graph"
	"github.com/corestream/cincinnati/pkg/httputil"
	"github.com/corestream/cincinnati/pkg/metrics"
	"github.com/corestream/cincinnati/pkg/policy"
	"github.com/corestream/cincinnati/pkg/population"
)

// PolicyEngine answers client /v1/graph requests: it fetches the scoped
// graph from the upstream graph-builder, throttles in-progress rollouts
// against the client's wariness, prunes dead-end departures, and serves the
// result.
type PolicyEngine struct {
	settings   *config.PolicyEngineSettings
	client     *httputil.Client
	population *population.Estimator
	metrics    *metrics.PolicyEngine
	logger     *log.Logger
}

// NewPolicyEngine creates the policy-engine request handler.
func NewPolicyEngine(settings *config.PolicyEngineSettings, m *metrics.PolicyEngine, logger *log.Logger) *PolicyEngine {
	return &PolicyEngine{
		settings:   settings,
		client:     httputil.NewClient(settings.RequestTimeout),
		population: population.New(settings.BloomSizeBytes, settings.BloomMaxMembers),
		metrics:    m,
		logger:     logger,
	}
}

// Router builds the public service router.
func (pe *PolicyEngine) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(corsMiddleware(pe.settings.OriginAllowlist))
	r.Use(requestLogger(pe.logger))
	r.Get("/v1/graph", pe.serveGraph)
	return r
}

func (pe *PolicyEngine) serveGraph(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	pe.recordMetrics(query)

	scope, err := parseScope(query, pe.settings.ScopeAllowlist)
	if err != nil {
		pe.logger.Error("graph request with invalid scope", "err", err)
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	// Wariness is observed before the upstream fetch so that the
	// wariness-versus-outcome correlation is exact per request.
	wariness := policy.Wariness(query.Get("rollout_wariness"), query.Get("node_uuid"))
	pe.metrics.RolloutWariness.Observe(wariness)

	upstream, err := pe.fetchUpstreamGraph(r.Context(), scope)
	if err != nil {
		pe.logger.Error("upstream graph fetch failed", "scope", scope.String(), "err", err)
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}

	final := policy.FilterDeadends(policy.ThrottleRollouts(upstream, wariness))
	data, err := final.MarshalPretty()
	if err != nil {
		pe.logger.Error("graph serialization failed", "scope", scope.String(), "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// recordMetrics counts the incoming request and feeds the client-population
// estimator. Purely observational; failures to track never affect the
// response.
func (pe *PolicyEngine) recordMetrics(query url.Values) {
	pe.metrics.IncomingRequests.Inc()

	if nodeUUID := query.Get("node_uuid"); nodeUUID != "" {
		if pe.population.Observe(nodeUUID) {
			pe.metrics.UniqueUUIDs.Inc()
		}
	}
}

// fetchUpstreamGraph retrieves the scoped graph from the graph-builder.
// Transient failures (network errors and 5xx answers) are retried with
// backoff; any other non-2xx answer and an undecodable body are not.
func (pe *PolicyEngine) fetchUpstreamGraph(ctx context.Context, scope graph.Scope) (*graph.Graph, error) {
	target, err := url.Parse(pe.settings.UpstreamBase)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("basearch", scope.Basearch)
	q.Set("stream", scope.Stream)
	q.Set("oci", strconv.FormatBool(scope.OCI))
	target.RawQuery = q.Encode()

	var g *graph.Graph
	err = httputil.Retry(ctx, 3, time.Second, func() error {
		body, err := pe.client.Get(ctx, target.String())
		if err != nil {
			return err
		}
		g, err = graph.Decode(body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}
