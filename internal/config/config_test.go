package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/corestream/cincinnati/pkg/graph"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadGraphBuilderDefaults(t *testing.T) {
	settings, err := LoadGraphBuilder(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("LoadGraphBuilder error: %v", err)
	}

	if settings.ServiceAddr != "0.0.0.0:8080" {
		t.Errorf("service addr = %q", settings.ServiceAddr)
	}
	if settings.StatusAddr != "0.0.0.0:9080" {
		t.Errorf("status addr = %q", settings.StatusAddr)
	}
	if settings.Interval != 30*time.Second {
		t.Errorf("interval = %v", settings.Interval)
	}
	// Default scopes: four basearches, three streams, checksum graphs only.
	if len(settings.Scopes) != 12 {
		t.Errorf("scope count = %d, want 12", len(settings.Scopes))
	}
	for _, scope := range settings.Scopes {
		if scope.OCI {
			t.Errorf("OCI scope %s without oci_graphs", scope)
		}
	}
}

func TestLoadGraphBuilderExplicit(t *testing.T) {
	settings, err := LoadGraphBuilder(writeConfig(t, `
[service]
address = "127.0.0.1"
port = 18080
origin_allowlist = ["https://builds.coreos.fedoraproject.org"]

[scrapers]
basearches = ["x86_64"]
streams = ["stable", "testing"]
oci_graphs = true
interval_secs = 10
request_timeout_secs = 60
releases_url = "https://example.com/${stream}/releases.json"
`))
	if err != nil {
		t.Fatalf("LoadGraphBuilder error: %v", err)
	}

	if settings.ServiceAddr != "127.0.0.1:18080" {
		t.Errorf("service addr = %q", settings.ServiceAddr)
	}
	if len(settings.OriginAllowlist) != 1 {
		t.Errorf("origin allowlist = %v", settings.OriginAllowlist)
	}
	if settings.Interval != 10*time.Second {
		t.Errorf("interval = %v", settings.Interval)
	}
	if settings.RequestTimeout != time.Minute {
		t.Errorf("request timeout = %v", settings.RequestTimeout)
	}
	if settings.ReleasesURL != "https://example.com/${stream}/releases.json" {
		t.Errorf("releases url = %q", settings.ReleasesURL)
	}

	// One basearch, two streams, both graph types.
	if len(settings.Scopes) != 4 {
		t.Fatalf("scope count = %d, want 4", len(settings.Scopes))
	}
	oci := 0
	for _, scope := range settings.Scopes {
		if scope.OCI {
			oci++
		}
	}
	if oci != 2 {
		t.Errorf("OCI scopes = %d, want 2", oci)
	}
}

func TestLoadGraphBuilderMissingFile(t *testing.T) {
	if _, err := LoadGraphBuilder(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadPolicyEngineDefaults(t *testing.T) {
	settings, err := LoadPolicyEngine(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("LoadPolicyEngine error: %v", err)
	}

	if settings.ServiceAddr != "0.0.0.0:8081" {
		t.Errorf("service addr = %q", settings.ServiceAddr)
	}
	if settings.StatusAddr != "0.0.0.0:9081" {
		t.Errorf("status addr = %q", settings.StatusAddr)
	}
	if settings.UpstreamBase != "http://127.0.0.1:8080/v1/graph" {
		t.Errorf("upstream base = %q", settings.UpstreamBase)
	}
	if settings.RequestTimeout != 30*time.Minute {
		t.Errorf("request timeout = %v", settings.RequestTimeout)
	}
	if settings.BloomSizeBytes != 10*1024*1024 || settings.BloomMaxMembers != 1_000_000 {
		t.Errorf("bloom sizing = %d/%d", settings.BloomSizeBytes, settings.BloomMaxMembers)
	}
	if settings.ScopeAllowlist != nil {
		t.Error("default scope allowlist should be open")
	}
}

func TestLoadPolicyEngineScopeAllowlist(t *testing.T) {
	settings, err := LoadPolicyEngine(writeConfig(t, `
[service]
basearches = ["x86_64"]
streams = ["stable"]

[upstream]
base_url = "http://graph-builder:8080/v1/graph"
request_timeout_secs = 120

[bloom]
size_bytes = 2048
max_members = 500
`))
	if err != nil {
		t.Fatalf("LoadPolicyEngine error: %v", err)
	}

	if settings.UpstreamBase != "http://graph-builder:8080/v1/graph" {
		t.Errorf("upstream base = %q", settings.UpstreamBase)
	}
	if settings.RequestTimeout != 2*time.Minute {
		t.Errorf("request timeout = %v", settings.RequestTimeout)
	}
	if settings.BloomSizeBytes != 2048 || settings.BloomMaxMembers != 500 {
		t.Errorf("bloom sizing = %d/%d", settings.BloomSizeBytes, settings.BloomMaxMembers)
	}

	if settings.ScopeAllowlist == nil {
		t.Fatal("scope allowlist should be set")
	}
	if !settings.ScopeAllowlist[graph.Scope{Basearch: "x86_64", Stream: "stable"}] {
		t.Error("configured scope missing from allowlist")
	}
	if !settings.ScopeAllowlist[graph.Scope{Basearch: "x86_64", Stream: "stable", OCI: true}] {
		t.Error("OCI variant of configured scope missing from allowlist")
	}
	if settings.ScopeAllowlist[graph.Scope{Basearch: "x86_64", Stream: "testing"}] {
		t.Error("unconfigured stream should not be allowed")
	}
}
