// Package graph models the served Cincinnati update-graph and its assembly
// from upstream metadata.
//
// A graph is a DAG whose nodes are releases ordered by age and whose edges
// are permitted update transitions, always directed from older to newer.
// Nodes carry string metadata under the canonical keys defined in
// pkg/metadata; edges are encoded on the wire as two-element [from, to]
// index arrays.
//
// Assembly combines the upstream release index with the updates document for
// one scope (see [Assemble]); request-time transformations over an assembled
// graph live in pkg/policy.
package graph

import (
	"bytes"
	"encoding/json"

	"github.com/corestream/cincinnati/pkg/errors"
)

// Node is a single release entry in the update graph.
type Node struct {
	Version  string            `json:"version"`
	Metadata map[string]string `json:"metadata"`
	Payload  string            `json:"payload"`
}

// Edge is a permitted transition between two node indices, directed from
// older to newer (From < To).
type Edge struct {
	From int
	To   int
}

// MarshalJSON encodes the edge in its wire form, a two-element array.
func (e Edge) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{e.From, e.To})
}

// UnmarshalJSON decodes the two-element array wire form.
func (e *Edge) UnmarshalJSON(data []byte) error {
	var fields []int
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if len(fields) != 2 {
		return errors.New(errors.ErrCodeUpstream, "edge with %d fields, expected 2", len(fields))
	}
	e.From = fields[0]
	e.To = fields[1]
	return nil
}

// Graph is a Cincinnati update-graph: releases (nodes) and update paths
// (edges). The zero value is not directly serializable; use New for an
// empty graph with non-nil slices.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// New returns an empty graph that serializes as {"nodes":[],"edges":[]}.
func New() *Graph {
	return &Graph{Nodes: []Node{}, Edges: []Edge{}}
}

// MarshalPretty encodes the graph as indented JSON with a trailing newline.
// Output is stable for a given graph: node metadata maps are serialized with
// sorted keys by encoding/json.
func (g *Graph) MarshalPretty() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(g); err != nil {
		return nil, errors.Wrap(errors.ErrCodeSerialization, err, "encoding graph")
	}
	return buf.Bytes(), nil
}

// Decode parses a served graph document.
func Decode(data []byte) (*Graph, error) {
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, errors.Wrap(errors.ErrCodeUpstream, err, "decoding graph")
	}
	if g.Nodes == nil {
		g.Nodes = []Node{}
	}
	if g.Edges == nil {
		g.Edges = []Edge{}
	}
	return &g, nil
}
