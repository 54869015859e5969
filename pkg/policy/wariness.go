package policy

import (
	"math"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Left limit of the derived wariness range is not included: a client always
// carries a strictly positive derived wariness.
const computedWarinessMin = 0.000001

// Wariness resolves the per-request rollout wariness in [0, 1].
//
// An explicit rollout_wariness parameter wins when it parses as a float and
// is clamped into range. Otherwise wariness is derived from node_uuid by
// hashing it and scaling the 64-bit digest into (0, 1]; the same UUID always
// derives the same value. Without a node_uuid the derived value is the
// minimum, so the client sees all rollouts.
func Wariness(rolloutWariness, nodeUUID string) float64 {
	if input, err := strconv.ParseFloat(rolloutWariness, 64); err == nil {
		return math.Min(math.Max(input, 0.0), 1.0)
	}

	if nodeUUID == "" {
		return computedWarinessMin
	}

	digest := xxhash.Sum64String(nodeUUID)
	scaled := float64(digest) / float64(math.MaxUint64)
	return math.Min(math.Max(scaled, computedWarinessMin), 1.0)
}
