// Package scraper implements the per-scope refresh loop of the
// graph-builder.
//
// Exactly one scraper exists per served scope. A scraper periodically
// fetches the upstream release index and updates metadata, assembles the
// scoped update graph, serializes it once, and publishes the bytes through
// an atomic snapshot pointer. Readers obtain the current snapshot via
// [Scraper.Cached] and must not mutate it.
//
// # Failure semantics
//
// Upstream errors (DNS, TCP, TLS, non-2xx, JSON parse) and assembly errors
// are all transient: the scraper logs them, preserves the previous cache,
// and keeps ticking. Until the first successful refresh the cache holds the
// serialization of an empty graph. Upstream load is bounded by one scrape
// pair per interval; there is no additional backoff.
package scraper

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/corestream/cincinnati/pkg/errors"
	"github.com/corestream/cincinnati/pkg/graph"
	"github.com/corestream/cincinnati/pkg/httputil"
	"github.com/corestream/cincinnati/pkg/metadata"
	"github.com/corestream/cincinnati/pkg/metrics"
	"github.com/corestream/cincinnati/pkg/policy"
	"github.com/corestream/cincinnati/pkg/snapshot"
)

// DefaultInterval is the pause between refresh ticks.
const DefaultInterval = 30 * time.Second

// Config assembles the dependencies of one scraper.
type Config struct {
	// Scope is the graph scope this scraper owns.
	Scope graph.Scope

	// ReleasesURLTemplate and UpdatesURLTemplate are the upstream URL
	// templates; ${stream} and ${basearch} placeholders are substituted at
	// construction. Empty templates use the metadata package defaults.
	ReleasesURLTemplate string
	UpdatesURLTemplate  string

	// Interval is the pause between refresh ticks (default 30s).
	Interval time.Duration

	// Timeout bounds each upstream request (default 30m).
	Timeout time.Duration

	// Remap optionally substitutes known-bad boot-image digests into the
	// served OCI graph (see DigestRemap). Nil disables patching.
	Remap *DigestRemap

	Logger  *log.Logger
	Metrics *metrics.GraphBuilder
}

// Scraper owns the cached serialized graph for one scope.
type Scraper struct {
	scope       graph.Scope
	client      *httputil.Client
	releasesURL string
	updatesURL  string
	interval    time.Duration
	remap       *DigestRemap
	logger      *log.Logger

	// Label-bound metric handles, cached at construction.
	scrapes       prometheus.Counter
	cachedReads   prometheus.Counter
	lastRefresh   prometheus.Gauge
	finalEdges    prometheus.Gauge
	finalReleases prometheus.Gauge

	cached *snapshot.Bytes
}

// New creates a scraper for cfg.Scope. The cache is seeded with an empty
// graph so readers always receive valid JSON.
func New(cfg Config) (*Scraper, error) {
	if cfg.Scope.Basearch == "" || cfg.Scope.Stream == "" {
		return nil, errors.New(errors.ErrCodeInternal, "scraper scope missing basearch or stream")
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Interval < 0 {
		return nil, errors.New(errors.ErrCodeInternal, "non-positive scraper interval")
	}
	if cfg.ReleasesURLTemplate == "" {
		cfg.ReleasesURLTemplate = metadata.ReleasesURLTemplate
	}
	if cfg.UpdatesURLTemplate == "" {
		cfg.UpdatesURLTemplate = metadata.UpdatesURLTemplate
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	empty, err := graph.New().MarshalPretty()
	if err != nil {
		return nil, err
	}

	labels := []string{cfg.Scope.Basearch, cfg.Scope.Stream, cfg.Scope.GraphType()}
	s := &Scraper{
		scope:       cfg.Scope,
		client:      httputil.NewClient(cfg.Timeout),
		releasesURL: expandTemplate(cfg.ReleasesURLTemplate, cfg.Scope),
		updatesURL:  expandTemplate(cfg.UpdatesURLTemplate, cfg.Scope),
		interval:    cfg.Interval,
		remap:       cfg.Remap,
		logger:      cfg.Logger.With("scope", cfg.Scope.String()),

		scrapes:       cfg.Metrics.UpstreamScrapes.WithLabelValues(labels...),
		cachedReads:   cfg.Metrics.CachedGraphRequests.WithLabelValues(labels...),
		lastRefresh:   cfg.Metrics.LastRefresh.WithLabelValues(labels...),
		finalEdges:    cfg.Metrics.GraphFinalEdges.WithLabelValues(labels...),
		finalReleases: cfg.Metrics.GraphFinalReleases.WithLabelValues(labels...),

		cached: snapshot.New(empty),
	}
	return s, nil
}

// Run drives the refresh state machine until ctx is cancelled: an immediate
// first tick, then one tick per interval. Run owns all writes to the cache.
func (s *Scraper) Run(ctx context.Context) {
	s.refresh(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

// Cached returns the current serialized graph for scope. Requesting a scope
// other than the one this scraper serves is a routing bug and returns a
// mismatch error without touching metrics. The returned bytes are a shared
// snapshot; callers must not modify them.
func (s *Scraper) Cached(scope graph.Scope) ([]byte, error) {
	if scope != s.scope {
		return nil, errors.New(errors.ErrCodeScopeMismatch,
			"unexpected scope %s on scraper for %s", scope, s.scope)
	}
	s.cachedReads.Inc()
	return s.cached.Load(), nil
}

// refresh performs one tick: fetch both documents, assemble, arch-select,
// serialize, publish. Any failure leaves the previous cache untouched.
func (s *Scraper) refresh(ctx context.Context) {
	s.scrapes.Inc()

	releases, updates, err := s.fetchMetadata(ctx)
	if err != nil {
		s.logger.Error("transient scraping failure", "err", err)
		return
	}

	if s.remap != nil && s.scope.OCI && s.remap.Active(time.Now().UTC()) {
		s.remap.Apply(releases, s.logger)
	}

	g, err := graph.Assemble(releases, updates, s.scope)
	if err != nil {
		s.logger.Error("transient assembly failure", "err", err)
		return
	}
	g = policy.PickBasearch(g, s.scope.Basearch, schemeFor(s.scope))

	data, err := g.MarshalPretty()
	if err != nil {
		s.logger.Error("graph serialization failure", "err", err)
		return
	}

	s.cached.Store(data)
	s.lastRefresh.Set(float64(time.Now().Unix()))
	s.finalEdges.Set(float64(len(g.Edges)))
	s.finalReleases.Set(float64(len(g.Nodes)))
	s.logger.Debug("cached graph refreshed", "releases", len(g.Nodes), "edges", len(g.Edges))
}

// fetchMetadata retrieves the release index and updates document
// concurrently. Both must succeed.
func (s *Scraper) fetchMetadata(ctx context.Context) ([]metadata.Release, *metadata.UpdatesDocument, error) {
	var (
		releases []metadata.Release
		updates  *metadata.UpdatesDocument
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		body, err := s.client.Get(egCtx, s.releasesURL)
		if err != nil {
			return err
		}
		index, err := metadata.DecodeReleasesIndex(body)
		if err != nil {
			return err
		}
		releases = index.Releases
		return nil
	})
	eg.Go(func() error {
		body, err := s.client.Get(egCtx, s.updatesURL)
		if err != nil {
			return err
		}
		updates, err = metadata.DecodeUpdates(body)
		return err
	})

	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}
	return releases, updates, nil
}

func schemeFor(scope graph.Scope) string {
	if scope.OCI {
		return metadata.SchemeOCI
	}
	return metadata.SchemeChecksum
}

// expandTemplate substitutes the ${stream} and ${basearch} placeholders.
func expandTemplate(template string, scope graph.Scope) string {
	expanded := strings.ReplaceAll(template, "${stream}", scope.Stream)
	return strings.ReplaceAll(expanded, "${basearch}", scope.Basearch)
}
