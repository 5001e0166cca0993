// Package bridge implements the Version Bridge (C1): a bidirectional
// mapping between a document's internal CRDT frontier and the opaque
// external version identifiers exposed over the wire.
package bridge

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Frontier is the set of operation ids applied to reach a document
// state, represented as a deduplicated, sorted slice of "agent:seq"
// strings. Two frontiers built from the same op set are equal
// regardless of the order operations were applied in.
type Frontier []string

// Root is the empty frontier (the empty document).
func Root() Frontier { return nil }

// IsRoot reports whether f is the empty frontier.
func (f Frontier) IsRoot() bool { return len(f) == 0 }

// key canonicalizes a frontier into a stable map key.
func (f Frontier) key() string {
	if len(f) == 0 {
		return ""
	}
	return strings.Join(f, ",")
}

// Union returns the sorted, deduplicated union of f and other.
func (f Frontier) Union(other Frontier) Frontier {
	seen := make(map[string]struct{}, len(f)+len(other))
	for _, id := range f {
		seen[id] = struct{}{}
	}
	for _, id := range other {
		seen[id] = struct{}{}
	}
	out := make(Frontier, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Bridge maintains the two directions of the version map for one
// document. The root frontier always maps to the nil external id (the
// "None" sentinel from spec.md §4.2); it is never stored.
type Bridge struct {
	mu         sync.RWMutex
	toExternal map[string]string
	toFrontier map[string]Frontier
}

// New returns an empty Bridge.
func New() *Bridge {
	return &Bridge{
		toExternal: make(map[string]string),
		toFrontier: make(map[string]Frontier),
	}
}

// FrontierToExternal returns the external id for f, minting and storing
// a fresh UUID-shaped id on first sight. The root frontier always
// returns ("", true) with no id minted.
func (b *Bridge) FrontierToExternal(f Frontier) (id string, isRoot bool) {
	if f.IsRoot() {
		return "", true
	}
	key := f.key()

	b.mu.RLock()
	if existing, ok := b.toExternal[key]; ok {
		b.mu.RUnlock()
		return existing, false
	}
	b.mu.RUnlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.toExternal[key]; ok {
		return existing, false
	}
	fresh := uuid.New().String()
	b.toExternal[key] = fresh
	b.toFrontier[fresh] = f
	return fresh, false
}

// ExternalToFrontier returns the frontier for an external id, or false
// if the id was never issued by this bridge.
func (b *Bridge) ExternalToFrontier(id string) (Frontier, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	f, ok := b.toFrontier[id]
	return f, ok
}
