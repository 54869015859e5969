// Package snapshot provides an atomically swappable immutable byte buffer.
//
// A writer publishes a fully built value with Store; readers obtain a
// shared-ownership reference with Load and observe either the previous or
// the new value, never a partial one. Callers must treat loaded slices as
// read-only.
package snapshot

import "sync/atomic"

// Bytes is an atomic reference to an immutable byte slice.
type Bytes struct {
	ptr atomic.Pointer[[]byte]
}

// New creates a snapshot holding initial.
func New(initial []byte) *Bytes {
	b := &Bytes{}
	b.ptr.Store(&initial)
	return b
}

// Load returns the current value. The slice is shared; do not modify it.
func (b *Bytes) Load() []byte {
	return *b.ptr.Load()
}

// Store atomically replaces the current value with data.
func (b *Bytes) Store(data []byte) {
	b.ptr.Store(&data)
}
