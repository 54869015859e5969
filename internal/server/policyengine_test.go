package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/corestream/cincinnati/internal/config"
	"github.com/corestream/cincinnati/pkg/graph"
	"github.com/corestream/cincinnati/pkg/metadata"
	"github.com/corestream/cincinnati/pkg/metrics"
)

// upstreamGraph builds the graph a graph-builder would serve: three nodes
// where node 0 is a dead-end, node 1 a barrier and node 2 a rollout that has
// not started.
func upstreamGraph(t *testing.T) []byte {
	t.Helper()

	g := graph.New()
	g.Nodes = append(g.Nodes,
		graph.Node{Version: "36.1.0", Payload: "aaa", Metadata: map[string]string{
			metadata.KeyDeadend: "true",
		}},
		graph.Node{Version: "36.2.0", Payload: "bbb", Metadata: map[string]string{
			metadata.KeyBarrier: "true",
		}},
		graph.Node{Version: "36.3.0", Payload: "ccc", Metadata: map[string]string{
			metadata.KeyRollout:    "true",
			metadata.KeyStartEpoch: strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10),
		}},
	)
	g.Edges = append(g.Edges,
		graph.Edge{From: 0, To: 1},
		graph.Edge{From: 1, To: 2},
	)
	data, err := g.MarshalPretty()
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func testPolicyEngine(t *testing.T, upstream http.HandlerFunc) (*PolicyEngine, *metrics.PolicyEngine) {
	t.Helper()

	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	m := metrics.NewPolicyEngine(prometheus.NewRegistry())
	pe := NewPolicyEngine(&config.PolicyEngineSettings{
		UpstreamBase:    srv.URL + "/v1/graph",
		RequestTimeout:  5 * time.Second,
		BloomSizeBytes:  1024,
		BloomMaxMembers: 100,
	}, m, log.Default())
	return pe, m
}

func decodeGraph(t *testing.T, rec *httptest.ResponseRecorder) *graph.Graph {
	t.Helper()
	var g graph.Graph
	if err := json.Unmarshal(rec.Body.Bytes(), &g); err != nil {
		t.Fatalf("response is not a graph: %v", err)
	}
	return &g
}

func TestPolicyEnginePipeline(t *testing.T) {
	doc := upstreamGraph(t)
	pe, _ := testPolicyEngine(t, func(w http.ResponseWriter, r *http.Request) {
		// The upstream query carries the scope through.
		if got := r.URL.Query().Get("basearch"); got != "x86_64" {
			t.Errorf("upstream basearch = %q", got)
		}
		if got := r.URL.Query().Get("oci"); got != "false" {
			t.Errorf("upstream oci = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
	})

	// A wary client: the unstarted rollout is hidden and the dead-end's
	// outgoing edge pruned.
	req := httptest.NewRequest(http.MethodGet, "/v1/graph?basearch=x86_64&stream=stable&rollout_wariness=1.0", nil)
	rec := httptest.NewRecorder()
	pe.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	g := decodeGraph(t, rec)
	if len(g.Nodes) != 3 {
		t.Errorf("policy must not drop nodes, got %d", len(g.Nodes))
	}
	if len(g.Edges) != 0 {
		t.Errorf("edges = %v, want none (deadend departure and gated rollout)", g.Edges)
	}

	// A zero-wariness client still cannot leave the dead-end but sees the
	// rollout... which has not started, so it stays gated only for
	// wariness above zero.
	req = httptest.NewRequest(http.MethodGet, "/v1/graph?basearch=x86_64&stream=stable&rollout_wariness=0", nil)
	rec = httptest.NewRecorder()
	pe.Router().ServeHTTP(rec, req)

	g = decodeGraph(t, rec)
	if len(g.Edges) != 1 || g.Edges[0] != (graph.Edge{From: 1, To: 2}) {
		t.Errorf("edges = %v, want only the barrier-to-rollout edge", g.Edges)
	}
}

func TestPolicyEngineInvalidScope(t *testing.T) {
	pe, _ := testPolicyEngine(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be contacted for an invalid scope")
	})

	for _, query := range []string{"", "basearch=x86_64", "stream=stable", "basearch=&stream=stable"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/graph?"+query, nil)
		rec := httptest.NewRecorder()
		pe.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("query %q: status = %d, want 400", query, rec.Code)
		}
	}
}

func TestPolicyEngineScopeAllowlist(t *testing.T) {
	doc := upstreamGraph(t)
	pe, _ := testPolicyEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(doc)
	})
	pe.settings.ScopeAllowlist = map[graph.Scope]bool{
		{Basearch: "x86_64", Stream: "stable"}: true,
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/graph?basearch=x86_64&stream=stable", nil)
	rec := httptest.NewRecorder()
	pe.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("allowed scope: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/graph?basearch=riscv64&stream=stable", nil)
	rec = httptest.NewRecorder()
	pe.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("disallowed scope: status = %d, want 400", rec.Code)
	}
}

func TestPolicyEngineUpstreamFailure(t *testing.T) {
	pe, _ := testPolicyEngine(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/graph?basearch=x86_64&stream=stable", nil)
	rec := httptest.NewRecorder()
	pe.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
	// Bland status text only; no internal detail leaks.
	if got := rec.Body.String(); got != http.StatusText(http.StatusBadGateway)+"\n" {
		t.Errorf("body = %q", got)
	}
}

func TestPolicyEngineRequestMetrics(t *testing.T) {
	doc := upstreamGraph(t)
	pe, m := testPolicyEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(doc)
	})

	serve := func(query string) {
		req := httptest.NewRequest(http.MethodGet, "/v1/graph?"+query, nil)
		pe.Router().ServeHTTP(httptest.NewRecorder(), req)
	}

	serve("basearch=x86_64&stream=stable&node_uuid=node-a")
	serve("basearch=x86_64&stream=stable&node_uuid=node-a")
	serve("basearch=x86_64&stream=stable&node_uuid=node-b")
	serve("basearch=x86_64&stream=stable")

	if got := testutil.ToFloat64(m.IncomingRequests); got != 4 {
		t.Errorf("incoming requests = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.UniqueUUIDs); got != 2 {
		t.Errorf("unique uuids = %v, want 2", got)
	}
}
