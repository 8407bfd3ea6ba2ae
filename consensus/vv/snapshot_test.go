package vv

import (
	"context"
	"errors"
	"testing"

	"github.com/RobustRoundRobin/go-hashgraph/secp256k1suite"
	"gotest.tools/assert"
)

func TestSnapshotRestoreContinuesOrder(t *testing.T) {

	g := newTestGraph(t, "a", "b", "c", "d")
	g.config.RoundsNonAncient = 4
	g.ring(200)

	reference := g.newNode()
	reference.mustFeed(g.order...)

	for _, cut := range []int{37, 100, 151} {
		first := g.newNode()
		first.mustFeed(g.order[:cut]...)

		ctx := context.Background()
		store := NewMemSnapshotStore(&secp256k1suite.BytesCodec{})
		assert.NilError(t, store.SaveSnapshot(ctx, first.consensus.Snapshot()))

		snap, err := store.LoadSnapshot(ctx)
		assert.NilError(t, err)
		assert.Equal(t, snap.NextOrder, first.consensus.NextOrder())

		second := g.newNode()
		_, err = second.consensus.Restore(snap)
		assert.NilError(t, err)
		assert.Equal(t, second.store.Len(), first.store.Len())
		assert.Equal(t, second.store.AncientThreshold(), first.store.AncientThreshold())

		// events already linked before the snapshot are duplicates now
		status, err := second.feed(g.order[cut-1])
		assert.NilError(t, err)
		assert.Equal(t, status, LinkDuplicate)

		second.mustFeed(g.order[cut:]...)

		got := append(first.orderedNames(), second.orderedNames()...)
		assert.DeepEqual(t, got, reference.orderedNames())
	}
}

func TestSnapshotRoundTripsState(t *testing.T) {

	g := newTestGraph(t, "a", "b", "c", "d")
	g.ring(50)

	n := g.newNode()
	n.mustFeed(g.order...)

	snap := n.consensus.Snapshot()
	b, err := EncodeSnapshot(g.codec, snap)
	assert.NilError(t, err)
	decoded, err := DecodeSnapshot(g.codec, b)
	assert.NilError(t, err)

	restored := g.newNode()
	_, err = restored.consensus.Restore(decoded)
	assert.NilError(t, err)

	r1, ok1 := n.consensus.DecidedRound()
	r2, ok2 := restored.consensus.DecidedRound()
	assert.Equal(t, r1, r2)
	assert.Equal(t, ok1, ok2)
	assert.Equal(t, restored.consensus.MaxRound(), n.consensus.MaxRound())

	for _, name := range g.order {
		want, got := n.rec(name), restored.rec(name)
		assert.Equal(t, got.round, want.round, name)
		assert.Equal(t, got.witness, want.witness, name)
		assert.Equal(t, got.fame, want.fame, name)
		assert.Equal(t, got.ordered, want.ordered, name)
		assert.Equal(t, got.consensusOrder, want.consensusOrder, name)
		assert.DeepEqual(t, got.forkSeen, want.forkSeen)
		assert.Equal(t, len(got.stronglySeen), len(want.stronglySeen))
	}
}

func TestRestoreNeedsEmptyStore(t *testing.T) {

	g := newTestGraph(t, "a", "b", "c", "d")
	g.ring(8)
	n := g.newNode()
	n.mustFeed(g.order...)

	_, err := n.consensus.Restore(n.consensus.Snapshot())
	assert.Assert(t, errors.Is(err, ErrStoreNotEmpty))
}

func TestDecodeSnapshotInvalid(t *testing.T) {
	_, err := DecodeSnapshot(&secp256k1suite.BytesCodec{}, []byte{0x01, 0x02})
	assert.Assert(t, errors.Is(err, ErrSnapshotInvalid))
}

func TestMemSnapshotStoreEmpty(t *testing.T) {
	store := NewMemSnapshotStore(&secp256k1suite.BytesCodec{})
	snap, err := store.LoadSnapshot(context.Background())
	assert.NilError(t, err)
	assert.Assert(t, snap == nil)
	assert.Equal(t, store.Saves(), 0)
}
