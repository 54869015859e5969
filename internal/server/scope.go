package server

import (
	"net/url"
	"strconv"

	"github.com/corestream/cincinnati/pkg/errors"
	"github.com/corestream/cincinnati/pkg/graph"
)

// parseScope validates request query parameters into a graph scope.
// basearch and stream are required and must be non-empty; oci is optional
// and defaults to false. When an allowlist is given, the scope must be in
// it. Every failure carries the INVALID_SCOPE code.
func parseScope(query url.Values, allowlist map[graph.Scope]bool) (graph.Scope, error) {
	basearch := query.Get("basearch")
	if basearch == "" {
		return graph.Scope{}, errors.New(errors.ErrCodeInvalidScope, "missing or empty basearch")
	}
	stream := query.Get("stream")
	if stream == "" {
		return graph.Scope{}, errors.New(errors.ErrCodeInvalidScope, "missing or empty stream")
	}

	oci := false
	if raw := query.Get("oci"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return graph.Scope{}, errors.New(errors.ErrCodeInvalidScope, "invalid oci value %q", raw)
		}
		oci = parsed
	}

	scope := graph.Scope{Basearch: basearch, Stream: stream, OCI: oci}
	if allowlist != nil && !allowlist[scope] {
		return graph.Scope{}, errors.New(errors.ErrCodeInvalidScope, "scope not allowed: %s", scope)
	}
	return scope, nil
}
