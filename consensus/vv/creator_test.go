package vv

import (
	"fmt"
	"testing"
	"time"

	hashgraph "github.com/RobustRoundRobin/go-hashgraph"
	"gotest.tools/assert"
)

type creatorNode struct {
	*testNode
	creator *Creator
	created int
}

func (g *testGraph) newCreatorNode(self string, supply TransactionSupplier) *creatorNode {
	n := g.newNode()
	cr, err := NewCreator(g.config, g.codec, n.store, g.ids[self], supply, g.logger, n.metrics)
	assert.NilError(g.t, err)
	n.consensus.stale = cr.eventStale
	return &creatorNode{testNode: n, creator: cr}
}

func (n *creatorNode) feed(names ...string) {
	for _, name := range names {
		linked, _, err := n.linker.Link(n.g.rawEvent(name))
		assert.NilError(n.g.t, err, name)
		for _, rec := range linked {
			n.creator.eventAdded(rec)
			ordered := n.consensus.Add(rec)
			n.creator.eventsOrdered(ordered)
			n.ordered = append(n.ordered, ordered...)
		}
	}
}

// create makes the next event and links it back, returning its name
func (n *creatorNode) create(now time.Time) (string, *hashgraph.Event) {
	e, h, ok := n.creator.MaybeCreateEvent(now)
	assert.Assert(n.g.t, ok)
	name := fmt.Sprintf("created%d", n.created)
	n.created++
	n.g.put(name, e)
	assert.Equal(n.g.t, n.g.hashes[name], h)
	n.feed(name)
	return name, e
}

func TestCreatorParents(t *testing.T) {

	g := newTestGraph(t, "a", "b", "c", "d")
	genesis(g)

	txs := 0
	n := g.newCreatorNode("a", func() [][]byte {
		txs++
		return [][]byte{[]byte(fmt.Sprintf("tx%d", txs))}
	})
	n.feed("b0", "c0", "d0")

	_, first := n.create(testEpoch.Add(time.Second))
	assert.Assert(t, !first.HasSelfParent())
	assert.Assert(t, first.HasOtherParent())
	assert.Equal(t, first.Generation, uint64(1))
	assert.DeepEqual(t, first.Transactions, [][]byte{[]byte("tx1")})

	firstName := g.names[first.OtherParent]
	_, second := n.create(testEpoch.Add(2 * time.Second))
	assert.Equal(t, second.SelfParent, g.hashes["created0"])
	assert.Assert(t, second.HasOtherParent())
	assert.Assert(t, g.names[second.OtherParent] != firstName,
		"other parent %s used twice in a row", firstName)
	assert.Equal(t, second.Generation, uint64(2))
	assert.Equal(t, n.creator.Unordered(), 2)
}

func TestCreatorPrefersNewEvents(t *testing.T) {

	g := newTestGraph(t, "a", "b", "c")
	genesis(g)
	g.add("b", "c0")
	g.add("b", "")
	g.add("b", "")

	n := g.newCreatorNode("a", nil)
	n.feed("b0", "c0", "b1", "b2", "b3")

	// b3 has the highest generation
	_, e := n.create(testEpoch.Add(time.Second))
	assert.Equal(t, e.OtherParent, g.hashes["b3"])
	assert.Equal(t, e.Generation, uint64(4))

	// b has been used, c0 is next even though it is older
	_, e = n.create(testEpoch.Add(2 * time.Second))
	assert.Equal(t, e.OtherParent, g.hashes["c0"])
}

func TestCreatorTimeIsMonotonic(t *testing.T) {

	g := newTestGraph(t, "a", "b")
	genesis(g)
	n := g.newCreatorNode("a", nil)
	n.feed("b0")

	now := testEpoch.Add(time.Hour)
	_, first := n.create(now)
	assert.Equal(t, first.CreatedAt, hashgraph.UnixNano(now))

	// the clock stepping back does not make our events go back in time
	_, second := n.create(now.Add(-time.Minute))
	assert.Equal(t, second.CreatedAt, first.CreatedAt+1)
}

func TestCreatorBackpressure(t *testing.T) {

	g := newTestGraph(t, "a", "b", "c", "d")
	g.config.MaxUnorderedSelfEvents = 2
	genesis(g)

	n := g.newCreatorNode("a", nil)
	n.feed("b0", "c0", "d0")

	now := testEpoch.Add(time.Second)
	for i := 0; i < 3; i++ {
		n.create(now)
	}
	assert.Equal(t, n.creator.Unordered(), 3)

	_, _, ok := n.creator.MaybeCreateEvent(now)
	assert.Assert(t, !ok)

	// ordering one of ours lets creation continue
	e := g.events["created0"]
	n.creator.eventsOrdered([]Ordered{{Hash: g.hashes["created0"], Event: e}})
	assert.Equal(t, n.creator.Unordered(), 2)
	_, _, ok = n.creator.MaybeCreateEvent(now)
	assert.Assert(t, ok)
}

func TestCreatorCountsLinkedEvents(t *testing.T) {

	g := newTestGraph(t, "a", "b", "c", "d")
	g.config.MaxUnorderedSelfEvents = 1
	genesis(g)

	n := g.newCreatorNode("a", nil)
	n.feed("b0", "c0", "d0")

	// events that never come back from the host hold nothing up
	now := testEpoch.Add(time.Second)
	for i := 0; i < 3; i++ {
		_, _, ok := n.creator.MaybeCreateEvent(now)
		assert.Assert(t, ok)
	}
	assert.Equal(t, n.creator.Unordered(), 0)

	e, h, ok := n.creator.MaybeCreateEvent(now)
	assert.Assert(t, ok)
	assert.Equal(t, e.Seq, uint64(3))
	assert.Equal(t, e.SelfParentGen, uint64(3))
	n.g.put("lost", e)
	assert.Equal(t, g.hashes["lost"], h)
	assert.Equal(t, n.creator.Unordered(), 0)
}

func TestCreatorNotAMember(t *testing.T) {
	g := newTestGraph(t, "a", "b")
	n := g.newNode()
	_, err := NewCreator(g.config, g.codec, n.store, g.codec.Keccak256Hash([]byte("x")), nil, g.logger, n.metrics)
	assert.ErrorContains(t, err, "not a member")
}

// Four creator driven nodes gossiping everything to each other make
// progress: rounds are decided and every node orders the same events.
func TestCreatedEventsReachConsensus(t *testing.T) {

	g := newTestGraph(t, "a", "b", "c", "d")
	nodes := make([]*creatorNode, len(g.nodes))
	for i, name := range g.nodes {
		nodes[i] = g.newCreatorNode(name, nil)
	}

	now := testEpoch
	for step := 0; step < 120; step++ {
		now = now.Add(time.Millisecond)
		n := nodes[step%len(nodes)]

		e, _, ok := n.creator.MaybeCreateEvent(now)
		assert.Assert(t, ok)
		name := fmt.Sprintf("e%d", step)
		g.put(name, e)
		for _, other := range nodes {
			other.feed(name)
		}
	}

	for _, n := range nodes {
		assert.Assert(t, len(n.ordered) > 0)
		assert.DeepEqual(t, n.orderedNames(), nodes[0].orderedNames())
	}
}
