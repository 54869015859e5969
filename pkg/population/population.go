// Package population estimates the distinct client population from
// node_uuid request parameters.
//
// The estimator is a process-local Bloom filter: it may under-count
// (false positives hide genuinely new clients) but never double-counts, and
// it loses state on restart. It is purely observational and never affects
// responses.
package population

import (
	"math"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/cespare/xxhash/v2"
)

// Defaults matching an expected population of ~1e6 members.
const (
	// DefaultSizeBytes is the default Bloom filter size (~10 MiB).
	DefaultSizeBytes = 10 * 1024 * 1024

	// DefaultMaxMembers is the default expected number of distinct members.
	DefaultMaxMembers = 1_000_000
)

// Estimator tracks approximate distinct node UUIDs.
// Safe for concurrent use.
type Estimator struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
}

// New creates an estimator backed by a Bloom filter of sizeBytes, with the
// hash count tuned for maxMembers expected entries. Non-positive arguments
// fall back to the defaults.
func New(sizeBytes, maxMembers int) *Estimator {
	if sizeBytes <= 0 {
		sizeBytes = DefaultSizeBytes
	}
	if maxMembers <= 0 {
		maxMembers = DefaultMaxMembers
	}

	bits := uint(sizeBytes) * 8
	hashes := uint(math.Round(float64(bits) / float64(maxMembers) * math.Ln2))
	hashes = max(hashes, 1)

	return &Estimator{
		filter: bloom.New(bits, hashes),
	}
}

// Observe records a node UUID and reports whether it was first seen now.
// The UUID is reduced to a 64-bit digest before insertion, matching the
// wariness derivation hash.
func (e *Estimator) Observe(nodeUUID string) bool {
	digest := xxhash.Sum64String(nodeUUID)
	var key [8]byte
	for i := range key {
		key[i] = byte(digest >> (8 * i))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.filter.TestOrAdd(key[:])
}
