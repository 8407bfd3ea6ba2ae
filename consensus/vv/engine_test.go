package vv

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	hashgraph "github.com/RobustRoundRobin/go-hashgraph"
	"github.com/RobustRoundRobin/go-hashgraph/secp256k1suite"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/goleak"
	"gotest.tools/assert"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type collector struct {
	mu      sync.Mutex
	ordered []Ordered
}

func (c *collector) output(ordered []Ordered) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ordered = append(c.ordered, ordered...)
}

func (c *collector) names(g *testGraph) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.ordered))
	for _, o := range c.ordered {
		names = append(names, g.names[o.Hash])
	}
	return names
}

func (g *testGraph) newEngine(self string, opts ...EngineOption) *Engine {
	e, err := New(g.config, g.codec, g.weights, g.ids[self], g.logger, opts...)
	assert.NilError(g.t, err)
	return e
}

func TestEngineConcurrentIngestion(t *testing.T) {

	g := newTestGraph(t, "a", "b", "c", "d")
	g.config.RoundsNonAncient = 1000
	g.ring(160)

	reference := g.newNode()
	reference.mustFeed(g.order...)

	out := &collector{}
	e := g.newEngine("a", WithOutput(out.output), WithRegisterer(prometheus.NewRegistry()))
	assert.NilError(t, e.Start(context.Background()))

	shuffled := append([]string(nil), g.order...)
	rand.New(rand.NewSource(3)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	const workers = 4
	var wg sync.WaitGroup
	errs := make(chan error, len(shuffled))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := w; i < len(shuffled); i += workers {
				if _, err := e.HandleEvent(g.rawEvent(shuffled[i])); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NilError(t, err)
	}

	// the snapshot request is queued behind everything linked so far
	snap, err := e.Snapshot()
	assert.NilError(t, err)
	assert.Equal(t, len(snap.Events), len(g.order))

	assert.NilError(t, e.Stop(context.Background()))
	assert.DeepEqual(t, out.names(g), reference.orderedNames())
}

func TestEngineDuplicatesAndStopped(t *testing.T) {

	g := newTestGraph(t, "a", "b", "c", "d")
	genesis(g)

	e := g.newEngine("a")
	_, err := e.HandleEvent(g.rawEvent("a0"))
	assert.Assert(t, errors.Is(err, ErrEngineStopped))

	assert.NilError(t, e.Start(context.Background()))
	assert.Assert(t, e.IsRunning())

	status, err := e.HandleEvent(g.rawEvent("a0"))
	assert.NilError(t, err)
	assert.Equal(t, status, LinkLinked)
	status, err = e.HandleEvent(g.rawEvent("a0"))
	assert.NilError(t, err)
	assert.Equal(t, status, LinkDuplicate)

	raw := g.rawEvent("b0")
	raw.SignatureValid = false
	status, err = e.HandleEvent(raw)
	assert.Assert(t, errors.Is(err, hashgraph.ErrMalformedEvent))
	assert.Equal(t, status, LinkRejected)

	// a bad copy does not stop the good one
	status, err = e.HandleEvent(g.rawEvent("b0"))
	assert.NilError(t, err)
	assert.Equal(t, status, LinkLinked)

	assert.NilError(t, e.Stop(context.Background()))
	assert.Assert(t, !e.IsRunning())
	_, err = e.CreateEvent()
	assert.Assert(t, errors.Is(err, ErrEngineStopped))
}

func TestEngineCreateEvent(t *testing.T) {

	g := newTestGraph(t, "a", "b", "c", "d")
	genesis(g)

	now := testEpoch.Add(time.Minute)
	e := g.newEngine("a", WithClock(func() time.Time { return now }),
		WithTransactionSupplier(func() [][]byte { return [][]byte{[]byte("payload")} }))
	assert.NilError(t, e.Start(context.Background()))
	defer e.Stop(context.Background())

	for _, name := range []string{"b0", "c0", "d0"} {
		_, err := e.HandleEvent(g.rawEvent(name))
		assert.NilError(t, err)
	}

	created, err := e.CreateEvent()
	assert.NilError(t, err)
	assert.Assert(t, created != nil)
	assert.Equal(t, created.Event.Creator, g.ids["a"])
	assert.Equal(t, created.Event.CreatedAt, hashgraph.UnixNano(now))
	assert.DeepEqual(t, created.Event.Transactions, [][]byte{[]byte("payload")})

	// sign it and hand it back as the transport would
	key, err := secp256k1suite.GenerateKey()
	assert.NilError(t, err)
	h, raw, err := g.codec.EncodeSignEvent(created.Event, key)
	assert.NilError(t, err)
	assert.Equal(t, h, created.Hash)

	status, err := e.HandleEvent(hashgraph.RawEvent{Raw: raw, SignatureValid: true, ReceivedAt: now})
	assert.NilError(t, err)
	assert.Equal(t, status, LinkLinked)
}

func TestEngineSnapshotPersistence(t *testing.T) {

	g := newTestGraph(t, "a", "b", "c", "d")
	g.ring(100)

	reference := g.newNode()
	reference.mustFeed(g.order...)

	snapshots := NewMemSnapshotStore(&secp256k1suite.BytesCodec{})
	ctx := context.Background()
	cut := 57

	out := &collector{}
	e := g.newEngine("a", WithOutput(out.output), WithSnapshotStore(snapshots))
	assert.NilError(t, e.Start(ctx))
	for _, name := range g.order[:cut] {
		_, err := e.HandleEvent(g.rawEvent(name))
		assert.NilError(t, err)
	}
	assert.NilError(t, e.Stop(ctx))
	assert.Equal(t, snapshots.Saves(), 1)

	// a new engine picks up where the last one stopped
	restarted := g.newEngine("a", WithOutput(out.output), WithSnapshotStore(snapshots))
	assert.NilError(t, restarted.Start(ctx))

	status, err := restarted.HandleEvent(g.rawEvent(g.order[cut-1]))
	assert.NilError(t, err)
	assert.Equal(t, status, LinkDuplicate)

	for _, name := range g.order[cut:] {
		_, err := restarted.HandleEvent(g.rawEvent(name))
		assert.NilError(t, err)
	}
	assert.NilError(t, restarted.Stop(ctx))
	assert.Equal(t, snapshots.Saves(), 2)

	assert.DeepEqual(t, out.names(g), reference.orderedNames())
}

func TestEngineExpiresOrphans(t *testing.T) {

	g := newTestGraph(t, "a", "b", "c", "d")
	g.config.OrphanRetention = 1
	g.config.OrphanSweepInterval = 5
	genesis(g)
	g.add("a", "c0")

	e := g.newEngine("a", WithClock(time.Now))
	assert.NilError(t, e.Start(context.Background()))
	defer e.Stop(context.Background())

	_, err := e.HandleEvent(g.rawEvent("a0"))
	assert.NilError(t, err)

	raw := g.rawEvent("a1")
	raw.ReceivedAt = time.Now()
	status, err := e.HandleEvent(raw)
	assert.NilError(t, err)
	assert.Equal(t, status, LinkBuffered)

	deadline := time.Now().Add(5 * time.Second)
	for e.linker.Orphans() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, e.linker.Orphans(), 0)

	// the sweep has finished once the run loop answers
	_, err = e.Snapshot()
	assert.NilError(t, err)

	// with its parent in, a fresh copy of the expired event links
	_, err = e.HandleEvent(g.rawEvent("c0"))
	assert.NilError(t, err)
	status, err = e.HandleEvent(g.rawEvent("a1"))
	assert.NilError(t, err)
	assert.Equal(t, status, LinkLinked)
}

func TestEngineMetricsRegistered(t *testing.T) {

	g := newTestGraph(t, "a", "b")
	reg := prometheus.NewRegistry()
	g.newEngine("a", WithRegisterer(reg))

	// registering a second engine on the same registry fails
	_, err := New(g.config, g.codec, g.weights, g.ids["b"], g.logger, WithRegisterer(reg))
	assert.Assert(t, err != nil)

	families, err := reg.Gather()
	assert.NilError(t, err)
	assert.Assert(t, len(families) > 0)
}
