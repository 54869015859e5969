// Package policy implements request-time transformations over an assembled
// update graph.
//
// All transforms operate on the graph in place and return it, so pipelines
// compose without copies:
//
//	g = policy.FilterDeadends(policy.ThrottleRollouts(g, wariness))
//
// Transform order matters for the served output: the graph-builder applies
// architecture selection during assembly, while the policy-engine applies
// rollout throttling before dead-end pruning.
package policy

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/corestream/cincinnati/pkg/graph"
	"github.com/corestream/cincinnati/pkg/metadata"
)

// PickBasearch selects the per-architecture artifact for basearch on every
// node: the matching arch.<basearch> value becomes the node payload and the
// scheme key records how it is to be consumed (metadata.SchemeChecksum or
// metadata.SchemeOCI). All arch.* keys are stripped afterwards.
//
// Nodes without a matching architecture keep an empty payload; clients
// ignore them when reachable. Scope allowlisting happens at the request
// layer, not here.
func PickBasearch(g *graph.Graph, basearch, scheme string) *graph.Graph {
	archKey := metadata.KeyArchPrefix + "." + basearch
	for i := range g.Nodes {
		node := &g.Nodes[i]
		if payload, ok := node.Metadata[archKey]; ok {
			node.Payload = payload
			node.Metadata[metadata.KeyScheme] = scheme
		}
		for key := range node.Metadata {
			if strings.HasPrefix(key, metadata.KeyArchPrefix+".") {
				delete(node.Metadata, key)
			}
		}
	}
	return g
}

// FilterDeadends prunes outgoing edges from dead-end nodes. Incoming edges
// are kept: a client may arrive at a dead-end but cannot depart from it.
func FilterDeadends(g *graph.Graph) *graph.Graph {
	deadends := make(map[int]bool)
	for index, node := range g.Nodes {
		if node.Metadata[metadata.KeyDeadend] == "true" {
			deadends[index] = true
		}
	}

	kept := g.Edges[:0]
	for _, edge := range g.Edges {
		if !deadends[edge.From] {
			kept = append(kept, edge)
		}
	}
	g.Edges = kept
	return g
}

// ThrottleRollouts conditionally prunes incoming edges towards throttled
// rollouts. A rollout node whose current throttling value is below the
// client wariness loses its incoming edges; the node itself stays in the
// graph, so a client already sitting on it keeps its outgoing edges.
func ThrottleRollouts(g *graph.Graph, clientWariness float64) *graph.Graph {
	return throttleRolloutsAt(g, clientWariness, time.Now().Unix())
}

func throttleRolloutsAt(g *graph.Graph, clientWariness float64, now int64) *graph.Graph {
	hidden := make(map[int]bool)

	for index, node := range g.Nodes {
		if _, ok := node.Metadata[metadata.KeyRollout]; !ok {
			continue
		}

		// Start epoch defaults to 0, start value to 0.0.
		startEpoch := int64(0)
		if raw, ok := node.Metadata[metadata.KeyStartEpoch]; ok {
			if epoch, err := strconv.ParseInt(raw, 10, 64); err == nil {
				startEpoch = epoch
			}
		}
		startValue := 0.0
		if raw, ok := node.Metadata[metadata.KeyStartValue]; ok {
			if val, err := strconv.ParseFloat(raw, 64); err == nil {
				startValue = val
			}
		}

		// Duration has no default: without it the rollout never progresses
		// past its initial value.
		var minutes uint64
		hasDuration := false
		if raw, ok := node.Metadata[metadata.KeyDuration]; ok {
			if m, err := strconv.ParseUint(raw, 10, 64); err == nil {
				minutes = max(m, 1)
				hasDuration = true
			}
		}

		var throttling float64
		if hasDuration {
			end := startEpoch + int64(minutes*60)
			rate := (1.0 - startValue) / float64(end-startEpoch)
			if math.IsInf(rate, 0) || math.IsNaN(rate) {
				rate = 0
			}
			switch {
			case now < startEpoch:
				throttling = 0.0
			case now > end:
				throttling = 1.0
			default:
				throttling = startValue + rate*float64(now-startEpoch)
			}
		} else {
			if now < startEpoch {
				throttling = 0.0
			} else {
				throttling = startValue
			}
		}

		if clientWariness > throttling {
			hidden[index] = true
		}
	}

	kept := g.Edges[:0]
	for _, edge := range g.Edges {
		if !hidden[edge.To] {
			kept = append(kept, edge)
		}
	}
	g.Edges = kept
	return g
}
