package testutil

import "sync"

// FixedGenerator returns identifiers from a fixed list, in order.
//
// This enables deterministic test execution and golden snapshot comparison:
// the same scenario with the same FixedGenerator produces byte-identical
// traces. Once the list is exhausted the last identifier repeats, which
// tests use to provoke identifier collisions.
//
// Thread-safety: safe for concurrent use.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	pos int
}

// NewFixedGenerator creates a generator over ids. With no ids, Generate
// returns "test-id-default".
func NewFixedGenerator(ids ...string) *FixedGenerator {
	if len(ids) == 0 {
		ids = []string{"test-id-default"}
	}
	return &FixedGenerator{ids: append([]string(nil), ids...)}
}

// Generate returns the next identifier. Implements storage.IDGenerator.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.ids[g.pos]
	if g.pos < len(g.ids)-1 {
		g.pos++
	}
	return id
}
