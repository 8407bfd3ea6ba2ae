package vv

import (
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	hashgraph "github.com/RobustRoundRobin/go-hashgraph"
	"github.com/RobustRoundRobin/go-hashgraph/secp256k1suite"
	"gotest.tools/assert"
)

type TestLogger struct {
	t       *testing.T
	verbose bool
}

func (l *TestLogger) LazyValue(func() string) interface{} {
	return nil
}

func (l *TestLogger) log(msg string, ctx ...interface{}) {

	if len(ctx)%2 != 0 {
		panic("even number of context arguments required")
	}

	s := make([]string, 0, len(ctx)/2)

	for i := 0; i < len(ctx); i += 2 {
		s = append(s, fmt.Sprintf("%v=%v", ctx[i], ctx[i+1]))
	}

	l.t.Log(msg + " " + strings.Join(s, ", "))
}

func (l *TestLogger) Trace(msg string, ctx ...interface{}) {
	if l.verbose {
		l.log(msg, ctx...)
	}
}
func (l *TestLogger) Debug(msg string, ctx ...interface{}) {
	if l.verbose {
		l.log(msg, ctx...)
	}
}
func (l *TestLogger) Info(msg string, ctx ...interface{}) { l.log(msg, ctx...) }
func (l *TestLogger) Warn(msg string, ctx ...interface{}) { l.log(msg, ctx...) }
func (l *TestLogger) Crit(msg string, ctx ...interface{}) {
	l.log(msg, ctx...)
	panic("crit")
}

var testEpoch = time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)

// testGraph builds events for a set of named nodes. Events are named by
// their creator and self chain position, "a0", "a1", "b0" and so on.
type testGraph struct {
	t       *testing.T
	logger  *TestLogger
	codec   *hashgraph.CipherCodec
	config  *hashgraph.Config
	weights *hashgraph.WeightTable

	nodes  []string
	ids    map[string]Hash
	events map[string]*hashgraph.Event
	hashes map[string]Hash
	names  map[Hash]string
	raw    map[string][]byte
	latest map[string]string
	seq    map[string]int
	order  []string

	clock time.Time
}

func newTestGraph(t *testing.T, nodes ...string) *testGraph {
	weights := make(map[string]uint64)
	for _, n := range nodes {
		weights[n] = 1
	}
	return newWeightedTestGraph(t, nodes, weights)
}

func newWeightedTestGraph(t *testing.T, nodes []string, weights map[string]uint64) *testGraph {

	config := *hashgraph.DefaultConfig
	g := &testGraph{
		t:      t,
		logger: &TestLogger{t: t},
		codec:  secp256k1suite.NewCodec(),
		config: &config,
		nodes:  nodes,
		ids:    make(map[string]Hash),
		events: make(map[string]*hashgraph.Event),
		hashes: make(map[string]Hash),
		names:  make(map[Hash]string),
		raw:    make(map[string][]byte),
		latest: make(map[string]string),
		seq:    make(map[string]int),
		clock:  testEpoch,
	}

	wm := make(map[Hash]uint64)
	for _, n := range nodes {
		id := g.codec.Keccak256Hash([]byte("node-" + n))
		g.ids[n] = id
		wm[id] = weights[n]
	}
	var err error
	g.weights, err = hashgraph.NewWeightTable(wm)
	assert.NilError(t, err)
	return g
}

func (g *testGraph) tick() uint64 {
	g.clock = g.clock.Add(time.Millisecond)
	return hashgraph.UnixNano(g.clock)
}

// add creates the next event for creator with the named other parent ("" for
// none) and returns its name
func (g *testGraph) add(creator, other string) string {

	e := &hashgraph.Event{
		Creator: g.ids[creator], Seq: uint64(g.seq[creator]), CreatedAt: g.tick()}

	var gen uint64
	hasParent := false
	if sp, ok := g.latest[creator]; ok {
		e.SelfParent, e.SelfParentGen = g.hashes[sp], g.events[sp].Generation
		gen, hasParent = g.events[sp].Generation, true
	}
	if other != "" {
		op := g.events[other]
		e.OtherParent, e.OtherParentGen = g.hashes[other], op.Generation
		if !hasParent || op.Generation > gen {
			gen = op.Generation
		}
		hasParent = true
	}
	if hasParent {
		e.Generation = gen + 1
	}
	e.Transactions = [][]byte{[]byte(fmt.Sprintf("%s-tx-%d", creator, g.seq[creator]))}

	name := creator + strconv.Itoa(g.seq[creator])
	g.seq[creator]++
	g.latest[creator] = name
	g.put(name, e)
	return name
}

// put encodes e under name. Used directly to build malformed events.
func (g *testGraph) put(name string, e *hashgraph.Event) {
	h, raw, err := g.codec.EncodeSignEvent(e, nil)
	assert.NilError(g.t, err)
	g.events[name] = e
	g.hashes[name] = h
	g.names[h] = name
	g.raw[name] = raw
	g.order = append(g.order, name)
}

// ring creates count events, each node in turn taking the latest event of
// the previous node as other parent. The first event of each node has no
// parents.
func (g *testGraph) ring(count int) []string {
	var names []string
	n := len(g.nodes)
	for k := 0; k < count; k++ {
		i := len(g.order) % n
		creator := g.nodes[i]
		other := ""
		if _, ok := g.latest[creator]; ok {
			other = g.latest[g.nodes[(i+n-1)%n]]
		}
		names = append(names, g.add(creator, other))
	}
	return names
}

func (g *testGraph) rawEvent(name string) hashgraph.RawEvent {
	return hashgraph.RawEvent{Raw: g.raw[name], SignatureValid: true, ReceivedAt: g.clock}
}

// testNode is the linker and consensus of one node, driven synchronously
type testNode struct {
	g         *testGraph
	metrics   *Metrics
	store     *Store
	linker    *Linker
	consensus *Consensus
	ordered   []Ordered
}

func (g *testGraph) newNode() *testNode {
	return g.newNodeWithCache(0)
}

// newNodeWithCache is newNode with the given number of pruned events
// remembered by the store
func (g *testGraph) newNodeWithCache(prunedCacheSize int) *testNode {
	metrics, err := NewMetrics(nil)
	assert.NilError(g.t, err)
	store, err := NewStore(g.weights, prunedCacheSize)
	assert.NilError(g.t, err)
	return &testNode{
		g:         g,
		metrics:   metrics,
		store:     store,
		linker:    NewLinker(g.config, g.codec, store, g.logger, metrics),
		consensus: NewConsensus(g.config, store, g.logger, metrics),
	}
}

func (n *testNode) feed(names ...string) (LinkStatus, error) {
	var (
		status LinkStatus
		err    error
	)
	for _, name := range names {
		var linked []*eventRecord
		linked, status, err = n.linker.Link(n.g.rawEvent(name))
		if err != nil {
			return status, err
		}
		for _, rec := range linked {
			n.ordered = append(n.ordered, n.consensus.Add(rec)...)
		}
	}
	return status, err
}

func (n *testNode) mustFeed(names ...string) {
	for _, name := range names {
		_, err := n.feed(name)
		assert.NilError(n.g.t, err, name)
	}
}

func (n *testNode) rec(name string) *eventRecord {
	rec := n.store.Get(n.g.hashes[name])
	assert.Assert(n.g.t, rec != nil, name)
	return rec
}

// orderedNames is the consensus order as event names
func (n *testNode) orderedNames() []string {
	names := make([]string, 0, len(n.ordered))
	for _, o := range n.ordered {
		names = append(names, n.g.names[o.Hash])
	}
	return names
}
