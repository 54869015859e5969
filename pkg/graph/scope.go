package graph

import "fmt"

// Scope identifies one independent update graph: a (basearch, stream, oci)
// tuple. Scopes are value-comparable; the set of served scopes is fixed at
// startup.
type Scope struct {
	Basearch string
	Stream   string
	OCI      bool
}

// GraphType returns the metric label value for the scope's artifact family.
func (s Scope) GraphType() string {
	if s.OCI {
		return "oci"
	}
	return "checksum"
}

// String renders the scope for logs.
func (s Scope) String() string {
	return fmt.Sprintf("%s/%s/%s", s.Basearch, s.Stream, s.GraphType())
}
