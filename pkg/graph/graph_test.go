package graph

import (
	"encoding/json"
	"testing"
)

func TestEdgeWireFormat(t *testing.T) {
	data, err := json.Marshal(Edge{From: 3, To: 7})
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if string(data) != "[3,7]" {
		t.Errorf("edge wire form = %s, want [3,7]", data)
	}

	var e Edge
	if err := json.Unmarshal([]byte("[1,4]"), &e); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if e.From != 1 || e.To != 4 {
		t.Errorf("decoded edge = %+v", e)
	}

	if err := json.Unmarshal([]byte("[1,2,3]"), &e); err == nil {
		t.Error("three-element edge should fail to decode")
	}
	if err := json.Unmarshal([]byte(`"1-2"`), &e); err == nil {
		t.Error("non-array edge should fail to decode")
	}
}

func TestDecode(t *testing.T) {
	doc := `{
	  "nodes": [
	    {"version": "36.1.0", "payload": "abc", "metadata": {"k": "v"}},
	    {"version": "36.2.0", "payload": "def", "metadata": {}}
	  ],
	  "edges": [[0, 1]]
	}`

	g, err := Decode([]byte(doc))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if len(g.Nodes) != 2 || len(g.Edges) != 1 {
		t.Fatalf("decoded %d nodes, %d edges", len(g.Nodes), len(g.Edges))
	}
	if g.Nodes[0].Version != "36.1.0" || g.Nodes[0].Payload != "abc" {
		t.Errorf("node 0 = %+v", g.Nodes[0])
	}
	if g.Edges[0] != (Edge{From: 0, To: 1}) {
		t.Errorf("edge 0 = %+v", g.Edges[0])
	}

	if _, err := Decode([]byte("{")); err == nil {
		t.Error("malformed JSON should fail to decode")
	}
}

func TestDecodeNormalizesNilSlices(t *testing.T) {
	g, err := Decode([]byte("{}"))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if g.Nodes == nil || g.Edges == nil {
		t.Error("decoded graph should have non-nil slices")
	}

	data, err := g.MarshalPretty()
	if err != nil {
		t.Fatalf("MarshalPretty error: %v", err)
	}
	var round Graph
	if err := json.Unmarshal(data, &round); err != nil {
		t.Fatalf("round trip error: %v", err)
	}
}

func TestMarshalPrettyStable(t *testing.T) {
	g := New()
	g.Nodes = append(g.Nodes, Node{
		Version:  "36.1.0",
		Payload:  "abc",
		Metadata: map[string]string{"b": "2", "a": "1", "c": "3"},
	})

	first, err := g.MarshalPretty()
	if err != nil {
		t.Fatalf("MarshalPretty error: %v", err)
	}
	for range 10 {
		again, err := g.MarshalPretty()
		if err != nil {
			t.Fatalf("MarshalPretty error: %v", err)
		}
		if string(again) != string(first) {
			t.Fatal("serialization is not stable across calls")
		}
	}
}
