package graph

import (
	"sort"
	"strconv"

	"github.com/corestream/cincinnati/pkg/metadata"
)

// Assemble combines a release index and an updates document into an update
// graph for one scope.
//
// Nodes are created in release-index order, so a node's index is its age
// (recorded under the age_index metadata key). Per-architecture artifacts are
// recorded under arch.<architecture> keys: ostree commit checksums for
// checksum scopes, digested container pullspecs for OCI scopes. Update-policy
// annotations (barrier, dead-end, rollout) are matched by version and
// injected as metadata.
//
// Edges target only barriers and rollouts:
//   - every rollout is reachable from all nodes since the previous barrier
//   - every barrier not itself under rollout is reachable from all nodes
//     since the previous barrier
//
// Nodes with neither annotation become reachable only once a later barrier
// or rollout promotes them. Dead-end pruning is a request-time policy and is
// not applied here.
func Assemble(releases []metadata.Release, updates *metadata.UpdatesDocument, scope Scope) (*Graph, error) {
	if updates == nil {
		updates = &metadata.UpdatesDocument{}
	}
	g := New()

	for ageIndex, entry := range releases {
		node := Node{
			Version: entry.Version,
			Payload: "",
			Metadata: map[string]string{
				metadata.KeyAgeIndex: strconv.Itoa(ageIndex),
			},
		}

		if scope.OCI {
			for _, image := range entry.OCIImages {
				if image.Architecture == "" || image.DigestRef == "" {
					continue
				}
				node.Metadata[metadata.KeyArchPrefix+"."+image.Architecture] = image.DigestRef
			}
		} else {
			for _, commit := range entry.Commits {
				if commit.Architecture == "" || commit.Checksum == "" {
					continue
				}
				node.Metadata[metadata.KeyArchPrefix+"."+commit.Architecture] = commit.Checksum
			}
		}

		injectDeadendReason(updates, &node)
		injectBarrierReason(updates, &node)
		injectThrottlingParams(updates, &node)

		g.Nodes = append(g.Nodes, node)
	}

	g.Edges = computeEdges(g.Nodes)
	return g, nil
}

// computeEdges derives update paths from barrier and rollout annotations.
func computeEdges(nodes []Node) []Edge {
	var rollouts, barriers []int
	rolloutSet := make(map[int]bool)
	for index, node := range nodes {
		if _, ok := node.Metadata[metadata.KeyRollout]; ok {
			rollouts = append(rollouts, index)
			rolloutSet[index] = true
		}
		if _, ok := node.Metadata[metadata.KeyBarrier]; ok {
			barriers = append(barriers, index)
		}
	}
	sort.Ints(rollouts)
	sort.Ints(barriers)

	edges := []Edge{}

	// Edges targeting rollouts, back till the previous barrier.
	for i := len(rollouts) - 1; i >= 0; i-- {
		target := rollouts[i]
		previousBarrier := 0
		for _, b := range barriers {
			if b >= target {
				break
			}
			previousBarrier = b
		}
		for from := previousBarrier; from < target; from++ {
			edges = append(edges, Edge{From: from, To: target})
		}
	}

	// Edges targeting barriers, back till the previous barrier. An
	// in-progress barrier (also under rollout) was already handled above.
	start := 0
	for _, target := range barriers {
		if !rolloutSet[target] {
			for from := start; from < target; from++ {
				edges = append(edges, Edge{From: from, To: target})
			}
		}
		start = target
	}

	return edges
}

func injectBarrierReason(updates *metadata.UpdatesDocument, node *Node) {
	for _, entry := range updates.Releases {
		if entry.Version != node.Version || entry.Metadata.Barrier == nil {
			continue
		}
		reason := entry.Metadata.Barrier.Reason
		if reason == "" {
			reason = "generic"
		}
		node.Metadata[metadata.KeyBarrier] = "true"
		node.Metadata[metadata.KeyBarrierReason] = reason
	}
}

func injectDeadendReason(updates *metadata.UpdatesDocument, node *Node) {
	for _, entry := range updates.Releases {
		if entry.Version != node.Version || entry.Metadata.Deadend == nil {
			continue
		}
		reason := entry.Metadata.Deadend.Reason
		if reason == "" {
			reason = "generic"
		}
		node.Metadata[metadata.KeyDeadend] = "true"
		node.Metadata[metadata.KeyDeadendReason] = reason
	}
}

func injectThrottlingParams(updates *metadata.UpdatesDocument, node *Node) {
	for _, entry := range updates.Releases {
		if entry.Version != node.Version || entry.Metadata.Rollout == nil {
			continue
		}
		rollout := entry.Metadata.Rollout
		node.Metadata[metadata.KeyRollout] = "true"
		if rollout.StartEpoch != nil {
			node.Metadata[metadata.KeyStartEpoch] = strconv.FormatInt(*rollout.StartEpoch, 10)
		}
		if rollout.StartPercentage != nil {
			node.Metadata[metadata.KeyStartValue] = strconv.FormatFloat(*rollout.StartPercentage, 'f', -1, 64)
		}
		if rollout.DurationMinutes != nil {
			node.Metadata[metadata.KeyDuration] = strconv.FormatUint(*rollout.DurationMinutes, 10)
		}
	}
}
