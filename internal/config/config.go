// Package config loads and validates the TOML configuration files of the
// two services.
//
// Each binary has its own top-level config struct. Loading is strict about
// the file being present and parseable, lenient about omitted values: every
// omitted field falls back to a production default during validation, so a
// minimal config file is empty.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/corestream/cincinnati/pkg/graph"
	"github.com/corestream/cincinnati/pkg/httputil"
	"github.com/corestream/cincinnati/pkg/metadata"
	"github.com/corestream/cincinnati/pkg/population"
	"github.com/corestream/cincinnati/pkg/scraper"
)

// Defaults shared by both services.
const (
	defaultListenAddr = "0.0.0.0"

	defaultGBServicePort = 8080
	defaultGBStatusPort  = 9080
	defaultPEServicePort = 8081
	defaultPEStatusPort  = 9081

	// defaultUpstreamBase is the graph endpoint of a graph-builder,
	// usually running in the same pod.
	defaultUpstreamBase = "http://127.0.0.1:8080/v1/graph"
)

var (
	defaultBasearches = []string{"x86_64", "aarch64", "s390x", "ppc64le"}
	defaultStreams    = []string{"next", "stable", "testing"}
)

// Listener is a listen address in config form.
type Listener struct {
	Address string `toml:"address"`
	Port    int    `toml:"port"`
}

// Addr renders the listener as host:port, applying defaults.
func (l Listener) Addr(defaultPort int) string {
	address := l.Address
	if address == "" {
		address = defaultListenAddr
	}
	port := l.Port
	if port == 0 {
		port = defaultPort
	}
	return net.JoinHostPort(address, strconv.Itoa(port))
}

// GraphBuilderConfig is the graph-builder configuration file.
type GraphBuilderConfig struct {
	Service struct {
		Listener
		OriginAllowlist []string `toml:"origin_allowlist"`
	} `toml:"service"`

	Status Listener `toml:"status"`

	Scrapers struct {
		Basearches         []string `toml:"basearches"`
		Streams            []string `toml:"streams"`
		OCIGraphs          bool     `toml:"oci_graphs"`
		IntervalSecs       uint     `toml:"interval_secs"`
		ReleasesURL        string   `toml:"releases_url"`
		UpdatesURL         string   `toml:"updates_url"`
		RequestTimeoutSecs uint     `toml:"request_timeout_secs"`
		DigestRemapPath    string   `toml:"digest_remap_path"`
	} `toml:"scrapers"`
}

// GraphBuilderSettings are the validated runtime settings.
type GraphBuilderSettings struct {
	ServiceAddr     string
	StatusAddr      string
	OriginAllowlist []string

	Scopes          []graph.Scope
	Interval        time.Duration
	ReleasesURL     string
	UpdatesURL      string
	RequestTimeout  time.Duration
	DigestRemapPath string
}

// LoadGraphBuilder reads and validates a graph-builder config file.
func LoadGraphBuilder(path string) (*GraphBuilderSettings, error) {
	var cfg GraphBuilderConfig
	if err := decodeFile(path, &cfg); err != nil {
		return nil, err
	}

	basearches := cfg.Scrapers.Basearches
	if len(basearches) == 0 {
		basearches = defaultBasearches
	}
	streams := cfg.Scrapers.Streams
	if len(streams) == 0 {
		streams = defaultStreams
	}

	var scopes []graph.Scope
	for _, basearch := range basearches {
		for _, stream := range streams {
			if basearch == "" || stream == "" {
				return nil, fmt.Errorf("config %s: empty basearch or stream entry", path)
			}
			scopes = append(scopes, graph.Scope{Basearch: basearch, Stream: stream})
			if cfg.Scrapers.OCIGraphs {
				scopes = append(scopes, graph.Scope{Basearch: basearch, Stream: stream, OCI: true})
			}
		}
	}

	settings := &GraphBuilderSettings{
		ServiceAddr:     cfg.Service.Addr(defaultGBServicePort),
		StatusAddr:      cfg.Status.Addr(defaultGBStatusPort),
		OriginAllowlist: cfg.Service.OriginAllowlist,
		Scopes:          scopes,
		Interval:        scraper.DefaultInterval,
		ReleasesURL:     cfg.Scrapers.ReleasesURL,
		UpdatesURL:      cfg.Scrapers.UpdatesURL,
		RequestTimeout:  httputil.DefaultTimeout,
		DigestRemapPath: cfg.Scrapers.DigestRemapPath,
	}
	if settings.ReleasesURL == "" {
		settings.ReleasesURL = metadata.ReleasesURLTemplate
	}
	if settings.UpdatesURL == "" {
		settings.UpdatesURL = metadata.UpdatesURLTemplate
	}
	if cfg.Scrapers.IntervalSecs > 0 {
		settings.Interval = time.Duration(cfg.Scrapers.IntervalSecs) * time.Second
	}
	if cfg.Scrapers.RequestTimeoutSecs > 0 {
		settings.RequestTimeout = time.Duration(cfg.Scrapers.RequestTimeoutSecs) * time.Second
	}
	return settings, nil
}

// PolicyEngineConfig is the policy-engine configuration file.
type PolicyEngineConfig struct {
	Service struct {
		Listener
		OriginAllowlist []string `toml:"origin_allowlist"`

		// Scope allowlist, empty meaning all scopes are accepted.
		Basearches []string `toml:"basearches"`
		Streams    []string `toml:"streams"`
	} `toml:"service"`

	Status Listener `toml:"status"`

	Upstream struct {
		BaseURL            string `toml:"base_url"`
		RequestTimeoutSecs uint   `toml:"request_timeout_secs"`
	} `toml:"upstream"`

	Bloom struct {
		SizeBytes  int `toml:"size_bytes"`
		MaxMembers int `toml:"max_members"`
	} `toml:"bloom"`
}

// PolicyEngineSettings are the validated runtime settings.
type PolicyEngineSettings struct {
	ServiceAddr     string
	StatusAddr      string
	OriginAllowlist []string

	// ScopeAllowlist is nil when every scope is accepted.
	ScopeAllowlist map[graph.Scope]bool

	UpstreamBase   string
	RequestTimeout time.Duration

	BloomSizeBytes  int
	BloomMaxMembers int
}

// LoadPolicyEngine reads and validates a policy-engine config file.
func LoadPolicyEngine(path string) (*PolicyEngineSettings, error) {
	var cfg PolicyEngineConfig
	if err := decodeFile(path, &cfg); err != nil {
		return nil, err
	}

	settings := &PolicyEngineSettings{
		ServiceAddr:     cfg.Service.Addr(defaultPEServicePort),
		StatusAddr:      cfg.Status.Addr(defaultPEStatusPort),
		OriginAllowlist: cfg.Service.OriginAllowlist,
		UpstreamBase:    cfg.Upstream.BaseURL,
		RequestTimeout:  httputil.DefaultTimeout,
		BloomSizeBytes:  population.DefaultSizeBytes,
		BloomMaxMembers: population.DefaultMaxMembers,
	}
	if settings.UpstreamBase == "" {
		settings.UpstreamBase = defaultUpstreamBase
	}
	if cfg.Upstream.RequestTimeoutSecs > 0 {
		settings.RequestTimeout = time.Duration(cfg.Upstream.RequestTimeoutSecs) * time.Second
	}
	if cfg.Bloom.SizeBytes > 0 {
		settings.BloomSizeBytes = cfg.Bloom.SizeBytes
	}
	if cfg.Bloom.MaxMembers > 0 {
		settings.BloomMaxMembers = cfg.Bloom.MaxMembers
	}

	// An allowlist on either axis restricts scopes; both empty means open.
	if len(cfg.Service.Basearches) > 0 || len(cfg.Service.Streams) > 0 {
		basearches := cfg.Service.Basearches
		if len(basearches) == 0 {
			basearches = defaultBasearches
		}
		streams := cfg.Service.Streams
		if len(streams) == 0 {
			streams = defaultStreams
		}
		settings.ScopeAllowlist = make(map[graph.Scope]bool)
		for _, basearch := range basearches {
			for _, stream := range streams {
				settings.ScopeAllowlist[graph.Scope{Basearch: basearch, Stream: stream}] = true
				settings.ScopeAllowlist[graph.Scope{Basearch: basearch, Stream: stream, OCI: true}] = true
			}
		}
	}
	return settings, nil
}

func decodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if err := toml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}
