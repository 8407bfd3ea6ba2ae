package vv

import (
	"testing"

	"gotest.tools/assert"
)

func TestStorePruneAndCompact(t *testing.T) {

	g := newTestGraph(t, "a", "b", "c", "d")
	g.ring(minCompactArena + 200)

	n := g.newNode()
	for _, name := range g.order {
		_, _, err := n.linker.Link(g.rawEvent(name))
		assert.NilError(t, err)
	}
	assert.Equal(t, n.store.Len(), len(g.order))

	last := n.rec(g.order[len(g.order)-1])
	threshold := last.generation() - 50

	removed := n.store.pruneBelow(threshold)
	assert.Assert(t, len(removed) > minCompactArena/2)
	assert.Equal(t, n.store.Len(), len(g.order)-len(removed))
	assert.Equal(t, n.store.AncientThreshold(), threshold)

	// compacted
	assert.Equal(t, len(n.store.arena), n.store.Len())

	for i, rec := range removed {
		assert.Assert(t, rec.generation() < threshold)
		if i > 0 {
			assert.Assert(t, !byGenerationLess(rec, removed[i-1]))
		}
		assert.Assert(t, !n.store.Has(rec.hash))
		pe, ok := n.store.ancient(rec.hash)
		assert.Assert(t, ok)
		assert.Equal(t, pe.seq, rec.seq)
		assert.Equal(t, len(n.store.chainAt(rec.creator, rec.seq)), 0)
	}

	// everything left can still be found and is in link order
	recs := n.store.records()
	for i, rec := range recs {
		assert.Assert(t, rec.generation() >= threshold)
		assert.Equal(t, n.store.Get(rec.hash), rec)
		if i > 0 {
			assert.Assert(t, recs[i-1].index < rec.index)
		}
	}

	// lowering the threshold is a no-op
	assert.Equal(t, len(n.store.pruneBelow(threshold-1)), 0)
}
