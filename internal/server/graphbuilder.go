package server

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/corestream/cincinnati/pkg/graph"
	"github.com/corestream/cincinnati/pkg/scraper"
)

// GraphBuilder routes /v1/graph requests to the scraper owning the
// requested scope and serves its cached serialized graph verbatim. The
// cached bytes are already arch-selected, so no request-time processing
// happens here.
type GraphBuilder struct {
	scrapers map[graph.Scope]*scraper.Scraper
	logger   *log.Logger
}

// NewGraphBuilder creates the graph-builder request handler over the given
// scrapers, one per served scope.
func NewGraphBuilder(scrapers map[graph.Scope]*scraper.Scraper, logger *log.Logger) *GraphBuilder {
	return &GraphBuilder{scrapers: scrapers, logger: logger}
}

// Router builds the public service router.
func (gb *GraphBuilder) Router(originAllowlist []string) http.Handler {
	r := chi.NewRouter()
	r.Use(corsMiddleware(originAllowlist))
	r.Use(requestLogger(gb.logger))
	r.Get("/v1/graph", gb.serveGraph)
	return r
}

func (gb *GraphBuilder) serveGraph(w http.ResponseWriter, r *http.Request) {
	scope, err := parseScope(r.URL.Query(), nil)
	if err != nil {
		gb.logger.Error("graph request with invalid scope", "err", err)
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	s, ok := gb.scrapers[scope]
	if !ok {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	cached, err := s.Cached(scope)
	if err != nil {
		gb.logger.Error("cached graph lookup failed", "scope", scope.String(), "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(cached)
}
