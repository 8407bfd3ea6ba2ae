package vv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	hashgraph "github.com/RobustRoundRobin/go-hashgraph"
	lru "github.com/hashicorp/golang-lru"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ErrEngineStopped = errors.New("consensus not running")
	ErrEngineRunning = errors.New("consensus already running")
)

// Output receives ordered events from the engine goroutine, in consensus
// order. It must not call back into the engine.
type Output func(ordered []Ordered)

type EngineOption func(e *Engine)

// WithOutput sets the consumer of ordered events
func WithOutput(o Output) EngineOption {
	return func(e *Engine) { e.output = o }
}

// WithSnapshotStore restores from the latest saved snapshot on Start and
// saves one on Stop
func WithSnapshotStore(s SnapshotStore) EngineOption {
	return func(e *Engine) { e.snapshots = s }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func WithTransactionSupplier(s TransactionSupplier) EngineOption {
	return func(e *Engine) { e.supply = s }
}

// WithRegisterer registers the engine metrics with reg
func WithRegisterer(reg prometheus.Registerer) EngineOption {
	return func(e *Engine) { e.registerer = reg }
}

// Engine runs virtual voting for one node. Events are linked as they arrive,
// from any goroutine, and consensus runs on a single goroutine that owns all
// consensus state.
type Engine struct {
	codec *hashgraph.CipherCodec

	// Don't change these while the engine is running
	config     *hashgraph.Config
	logger     hashgraph.Logger
	self       Hash
	output     Output
	snapshots  SnapshotStore
	supply     TransactionSupplier
	registerer prometheus.Registerer
	now        func() time.Time

	metrics   *Metrics
	store     *Store
	linker    *Linker
	consensus *Consensus
	creator   *Creator

	// Track which events we have recently seen so duplicates from gossip
	// are dropped before decoding work is repeated.
	seen *lru.ARCCache

	// held while linking and posting so the run loop sees records in link
	// order
	ingestMu sync.Mutex

	runningMu sync.RWMutex // hold read lock if checking 'runningCh is nil'
	runningWG sync.WaitGroup

	// runningCh is passed as the input channel to the engine run() method.
	// The run method assumes the ownership of all values sent to this channel.
	runningCh chan interface{}
}

// New creates a consensus engine for node self. weights is the membership
// and must be the same on every node.
func New(
	config *hashgraph.Config, codec *hashgraph.CipherCodec,
	weights *hashgraph.WeightTable, self Hash, logger hashgraph.Logger,
	opts ...EngineOption) (*Engine, error) {

	e := &Engine{
		codec:  codec,
		config: config,
		logger: logger,
		self:   self,
		now:    time.Now,
	}
	for _, o := range opts {
		o(e)
	}

	var err error
	if e.metrics, err = NewMetrics(e.registerer); err != nil {
		return nil, err
	}
	if e.seen, err = lru.NewARC(seenCacheSize(config)); err != nil {
		return nil, err
	}
	if e.store, err = NewStore(weights, seenCacheSize(config)); err != nil {
		return nil, err
	}
	e.linker = NewLinker(config, codec, e.store, logger, e.metrics)
	e.consensus = NewConsensus(config, e.store, logger, e.metrics)
	if e.creator, err = NewCreator(
		config, codec, e.store, self, e.supply, logger, e.metrics); err != nil {
		return nil, err
	}
	e.consensus.stale = e.creator.eventStale

	return e, nil
}

func seenCacheSize(config *hashgraph.Config) int {
	if config.SeenCacheSize > 0 {
		return config.SeenCacheSize
	}
	return hashgraph.DefaultConfig.SeenCacheSize
}

func (e *Engine) NodeID() Hash {
	return e.self
}

func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// IsRunning returns true if the engine is still running
func (e *Engine) IsRunning() bool {
	e.runningMu.RLock()
	defer e.runningMu.RUnlock()
	return e.runningCh != nil
}

// Start restores from the snapshot store, if there is one, and starts the
// consensus goroutine. Starting a running engine does nothing.
func (e *Engine) Start(ctx context.Context) error {

	e.runningMu.Lock()
	defer e.runningMu.Unlock()

	if e.runningCh != nil {
		return nil
	}

	if e.snapshots != nil && e.store.Len() == 0 {
		snap, err := e.snapshots.LoadSnapshot(ctx)
		if err != nil {
			return err
		}
		if snap != nil {
			if err := e.restore(snap); err != nil {
				return err
			}
		}
	}

	e.runningCh = make(chan interface{})
	e.runningWG.Add(1)
	go e.run(e.runningCh)

	return nil
}

// Stop stops the consensus goroutine and waits for it to exit. If there is a
// snapshot store the final state is saved to it.
func (e *Engine) Stop(ctx context.Context) error {

	e.runningMu.Lock()

	if e.runningCh == nil {
		e.runningMu.Unlock()
		return nil
	}

	close(e.runningCh)
	e.runningCh = nil
	e.runningMu.Unlock()

	e.runningWG.Wait()

	if e.snapshots == nil {
		return nil
	}
	// The run loop has exited so nothing else touches consensus state
	if err := e.snapshots.SaveSnapshot(ctx, e.consensus.Snapshot()); err != nil {
		e.logger.Info("hashgraph saving snapshot", "err", err)
		return err
	}
	return nil
}

func (e *Engine) restore(snap *Snapshot) error {
	recs, err := e.consensus.Restore(snap)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		e.seen.Add(rec.hash, true)
		e.creator.eventAdded(rec)
	}
	return nil
}

func (e *Engine) run(ch <-chan interface{}) {

	defer e.runningWG.Done()

	d := e.config.OrphanSweepDuration()
	if d <= 0 {
		d = hashgraph.DefaultConfig.OrphanSweepDuration()
	}
	sweep := time.NewTicker(d)
	defer sweep.Stop()

	for {
		select {

		case i, ok := <-ch:

			if !ok {
				e.logger.Info("hashgraph run - input channel closed")
				return
			}

			switch et := i.(type) {

			case *engLinked:

				e.processLinked(et.records)

			case *engCreateEvent:

				created := &CreatedEvent{}
				created.Event, created.Hash, ok = e.creator.MaybeCreateEvent(e.now())
				if !ok {
					created = nil
				}
				et.reply <- created

			case *engSnapshot:

				et.reply <- e.consensus.Snapshot()

			default:
				e.logger.Info("hashgraph engine.run received unknown type", "v", i)
			}

		case <-sweep.C:

			// an expired orphan may be gossiped again once its parents are in
			for _, h := range e.linker.Expire(e.now()) {
				e.seen.Remove(h)
			}
		}
	}
}

func (e *Engine) processLinked(records []*eventRecord) {
	for _, rec := range records {
		e.creator.eventAdded(rec)
		ordered := e.consensus.Add(rec)
		if len(ordered) == 0 {
			continue
		}
		e.creator.eventsOrdered(ordered)
		if e.output != nil {
			e.output(ordered)
		}
	}
}

// HandleEvent takes an event from the transport. It is safe to call from any
// number of goroutines. The returned status says what happened to the event,
// malformed events also return an error wrapping ErrMalformedEvent.
func (e *Engine) HandleEvent(raw hashgraph.RawEvent) (LinkStatus, error) {

	se, h, err := e.codec.DecodeSignedEvent(raw.Raw)
	if err != nil {
		e.metrics.rejected(rejectMalformed)
		return LinkRejected, fmt.Errorf("%v: %w", err, hashgraph.ErrMalformedEvent)
	}

	if e.seen.Contains(h) {
		e.metrics.rejected(rejectDuplicate)
		return LinkDuplicate, nil
	}

	e.runningMu.RLock()
	defer e.runningMu.RUnlock()
	if e.runningCh == nil {
		return LinkRejected, ErrEngineStopped
	}

	e.ingestMu.Lock()
	defer e.ingestMu.Unlock()

	linked, status, err := e.linker.LinkEvent(
		&se.Event, h, raw.SignatureValid, raw.ReceivedAt)
	if err != nil {
		e.logger.Debug("hashgraph event rejected", "event", h.HexShort(), "err", err)
		return status, err
	}
	if status == LinkLinked || status == LinkBuffered {
		e.seen.Add(h, true)
	}
	if len(linked) > 0 {
		e.runningCh <- &engLinked{records: linked}
	}
	return status, nil
}

// CreateEvent creates our next event. It returns nil if creation is held
// back because too many of our events are waiting for consensus.
func (e *Engine) CreateEvent() (*CreatedEvent, error) {

	reply := make(chan *CreatedEvent, 1)
	if !e.PostIfRunning(&engCreateEvent{reply: reply}) {
		return nil, fmt.Errorf("hashgraph CreateEvent: %w", ErrEngineStopped)
	}
	return <-reply, nil
}

// Snapshot returns a consistent snapshot of the running engine
func (e *Engine) Snapshot() (*Snapshot, error) {

	reply := make(chan *Snapshot, 1)
	if !e.PostIfRunning(&engSnapshot{reply: reply}) {
		return nil, fmt.Errorf("hashgraph Snapshot: %w", ErrEngineStopped)
	}
	return <-reply, nil
}

func (e *Engine) PostIfRunning(i interface{}) bool {
	e.runningMu.RLock()
	defer e.runningMu.RUnlock()
	if e.runningCh == nil {
		e.logger.Debug("hashgraph PostIfRunning - engine not running")
		return false
	}

	e.runningCh <- i
	return true
}
