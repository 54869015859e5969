// Package metadata defines the upstream Fedora CoreOS metadata contract.
//
// Two documents drive graph assembly:
//   - the release index (releases.json), an ordered list of releases where
//     position is the node's age (0 = oldest)
//   - the updates document (<stream>.json), carrying barrier, dead-end and
//     rollout annotations matched to releases by version
//
// Decoding is strict about required fields: a document missing them fails
// with an UPSTREAM_ERROR rather than producing a partial graph.
package metadata

import (
	"encoding/json"

	"github.com/corestream/cincinnati/pkg/errors"
)

// Templated upstream URLs. The ${stream} placeholder is substituted with the
// scope's stream at scraper construction.
const (
	// ReleasesURLTemplate is the default templated URL for the release index.
	ReleasesURLTemplate = "https://builds.coreos.fedoraproject.org/prod/streams/${stream}/releases.json"

	// UpdatesURLTemplate is the default templated URL for updates metadata.
	UpdatesURLTemplate = "https://builds.coreos.fedoraproject.org/updates/${stream}.json"
)

// Canonical node-metadata keys. These string keys appear in served node
// metadata and are part of the wire contract.
const (
	KeyScheme = "org.fedoraproject.coreos.scheme"

	KeyAgeIndex   = "org.fedoraproject.coreos.releases.age_index"
	KeyArchPrefix = "org.fedoraproject.coreos.releases.arch"

	KeyBarrier       = "org.fedoraproject.coreos.updates.barrier"
	KeyBarrierReason = "org.fedoraproject.coreos.updates.barrier_reason"
	KeyDeadend       = "org.fedoraproject.coreos.updates.deadend"
	KeyDeadendReason = "org.fedoraproject.coreos.updates.deadend_reason"
	KeyRollout       = "org.fedoraproject.coreos.updates.rollout"
	KeyDuration      = "org.fedoraproject.coreos.updates.duration_minutes"
	KeyStartEpoch    = "org.fedoraproject.coreos.updates.start_epoch"
	KeyStartValue    = "org.fedoraproject.coreos.updates.start_value"
)

// Artifact schemes identifying how a node payload is to be consumed.
const (
	SchemeChecksum = "checksum"
	SchemeOCI      = "oci"
)

// ReleasesIndex is the upstream release index.
type ReleasesIndex struct {
	Releases []Release `json:"releases"`
}

// Release is a single release-index entry. The index is ordered; a release's
// position is its age (0 = oldest).
type Release struct {
	Version   string            `json:"version"`
	Commits   []ReleaseCommit   `json:"commits"`
	Metadata  string            `json:"metadata"`
	OCIImages []ReleaseOCIImage `json:"oci_images,omitempty"`
}

// ReleaseCommit is a per-architecture ostree commit checksum.
type ReleaseCommit struct {
	Architecture string `json:"architecture"`
	Checksum     string `json:"checksum"`
}

// ReleaseOCIImage is a per-architecture digested container pullspec.
type ReleaseOCIImage struct {
	Architecture string `json:"architecture"`
	DigestRef    string `json:"digest_ref"`
}

// UpdatesDocument is the upstream updates metadata for one stream.
type UpdatesDocument struct {
	Stream   string          `json:"stream"`
	Releases []ReleaseUpdate `json:"releases"`
}

// ReleaseUpdate annotates one release, matched by version.
type ReleaseUpdate struct {
	Version  string         `json:"version"`
	Metadata UpdateMetadata `json:"metadata"`
}

// UpdateMetadata carries the optional update-policy records for a release.
type UpdateMetadata struct {
	Barrier *UpdateBarrier `json:"barrier,omitempty"`
	Deadend *UpdateDeadend `json:"deadend,omitempty"`
	Rollout *UpdateRollout `json:"rollout,omitempty"`
}

// UpdateBarrier marks a release clients cannot skip.
type UpdateBarrier struct {
	Reason string `json:"reason"`
}

// UpdateDeadend marks a release with no permitted outgoing updates.
type UpdateDeadend struct {
	Reason string `json:"reason"`
}

// UpdateRollout describes a time-ramped staged rollout.
type UpdateRollout struct {
	StartEpoch      *int64   `json:"start_epoch,omitempty"`
	StartPercentage *float64 `json:"start_percentage,omitempty"`
	DurationMinutes *uint64  `json:"duration_minutes,omitempty"`
}

// DecodeReleasesIndex parses a release index document.
// A document without a "releases" array is rejected.
func DecodeReleasesIndex(data []byte) (*ReleasesIndex, error) {
	var probe struct {
		Releases *[]Release `json:"releases"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, errors.Wrap(errors.ErrCodeUpstream, err, "decoding release index")
	}
	if probe.Releases == nil {
		return nil, errors.New(errors.ErrCodeUpstream, "release index missing 'releases' field")
	}

	var index ReleasesIndex
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, errors.Wrap(errors.ErrCodeUpstream, err, "decoding release index")
	}
	for i, rel := range index.Releases {
		if rel.Version == "" {
			return nil, errors.New(errors.ErrCodeUpstream, "release index entry %d missing version", i)
		}
	}
	return &index, nil
}

// DecodeUpdates parses an updates metadata document.
// Documents without "stream" or "releases" fields are rejected.
func DecodeUpdates(data []byte) (*UpdatesDocument, error) {
	var probe struct {
		Stream   *string          `json:"stream"`
		Releases *[]ReleaseUpdate `json:"releases"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, errors.Wrap(errors.ErrCodeUpstream, err, "decoding updates metadata")
	}
	if probe.Stream == nil {
		return nil, errors.New(errors.ErrCodeUpstream, "updates metadata missing 'stream' field")
	}
	if probe.Releases == nil {
		return nil, errors.New(errors.ErrCodeUpstream, "updates metadata missing 'releases' field")
	}

	var doc UpdatesDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeUpstream, err, "decoding updates metadata")
	}
	for i, rel := range doc.Releases {
		if rel.Version == "" {
			return nil, errors.New(errors.ErrCodeUpstream, "updates entry %d missing version", i)
		}
	}
	return &doc, nil
}
