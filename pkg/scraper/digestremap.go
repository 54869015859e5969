package scraper

// Some boot images shipped with a deployed container digest that does not
// match what was released, so those nodes cannot find their booted
// deployment in the graph and never update out of it. To unstick them the
// graph-builder can periodically serve the mismatched digests instead: on
// every refresh falling in an even UTC minute, affected releases get their
// OCI pullspec digest swapped for the known-bad one. The newest release is
// left untouched so it stays a valid update target.

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/corestream/cincinnati/pkg/errors"
	"github.com/corestream/cincinnati/pkg/metadata"
)

// DigestPair maps a released (good) digest to the mismatched (bad) digest
// found on boot images.
type DigestPair struct {
	Good string `json:"good"`
	Bad  string `json:"bad"`
}

// DigestRemap holds the per-version, per-architecture digest pairs.
type DigestRemap struct {
	byVersion map[string]map[string]DigestPair
}

// LoadDigestRemap reads a remap data file, a JSON object keyed by version,
// then architecture:
//
//	{"43.20251024.3.0": {"x86_64": {"good": "sha256:…", "bad": "sha256:…"}}}
func LoadDigestRemap(path string) (*DigestRemap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "reading digest remap data")
	}

	byVersion := make(map[string]map[string]DigestPair)
	if err := json.Unmarshal(data, &byVersion); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "decoding digest remap data")
	}
	return &DigestRemap{byVersion: byVersion}, nil
}

// Active reports whether bad digests should be served at the given time.
// Patching alternates with the refresh interval: only refreshes landing in
// an even minute serve the substituted digests.
func (r *DigestRemap) Active(now time.Time) bool {
	return now.Minute()%2 == 0
}

// Apply rewrites the digest part of each affected release's OCI pullspec in
// place. The last release is never touched; it must remain a valid target.
func (r *DigestRemap) Apply(releases []metadata.Release, logger *log.Logger) {
	if len(releases) == 0 {
		return
	}

	for i := range releases[:len(releases)-1] {
		entry := &releases[i]
		arches, ok := r.byVersion[entry.Version]
		if !ok {
			continue
		}
		for j := range entry.OCIImages {
			image := &entry.OCIImages[j]
			pair, ok := arches[image.Architecture]
			if !ok {
				continue
			}
			// digest_ref is a digested pullspec, $name@$digest; only the
			// digest part changes.
			name, _, found := strings.Cut(image.DigestRef, "@")
			if !found {
				logger.Warn("digest remap: pullspec without digest",
					"version", entry.Version, "arch", image.Architecture)
				continue
			}
			image.DigestRef = name + "@" + pair.Bad
			logger.Info("patched release with boot-image digest",
				"version", entry.Version, "arch", image.Architecture)
		}
	}
}
