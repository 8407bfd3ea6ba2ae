package vv

import (
	"fmt"
	"time"

	hashgraph "github.com/RobustRoundRobin/go-hashgraph"
)

// TransactionSupplier returns the transactions for the next event we create
type TransactionSupplier func() [][]byte

type selfEvent struct {
	hash       Hash
	seq        uint64
	generation uint64
	createdAt  uint64
}

// Creator decides when and on top of what this node creates its next event.
// It follows the linked events through eventAdded and is only used from the
// consensus goroutine.
type Creator struct {
	config  *hashgraph.Config
	logger  hashgraph.Logger
	codec   *hashgraph.CipherCodec
	store   *Store
	metrics *Metrics

	self    Hash
	selfIdx int
	supply  TransactionSupplier

	last *selfEvent

	// tips[c] is the latest event we know from creator c
	tips []*eventRecord

	// used[c] is set once an event by c has been an other parent since our
	// last event
	used []bool

	unordered map[Hash]bool
}

func NewCreator(
	config *hashgraph.Config, codec *hashgraph.CipherCodec, store *Store, self Hash,
	supply TransactionSupplier, logger hashgraph.Logger, metrics *Metrics) (*Creator, error) {

	selfIdx, ok := store.weights.Index(self)
	if !ok {
		return nil, fmt.Errorf("node %s is not a member", self.HexShort())
	}
	n := store.weights.Len()
	return &Creator{
		config:    config,
		logger:    logger,
		codec:     codec,
		store:     store,
		metrics:   metrics,
		self:      self,
		selfIdx:   selfIdx,
		supply:    supply,
		tips:      make([]*eventRecord, n),
		used:      make([]bool, n),
		unordered: make(map[Hash]bool),
	}, nil
}

// Unordered is the number of our own events still waiting for consensus
func (cr *Creator) Unordered() int {
	return len(cr.unordered)
}

// eventAdded tracks a newly linked (or restored) record
func (cr *Creator) eventAdded(rec *eventRecord) {

	if rec.creator != cr.selfIdx {
		if tip := cr.tips[rec.creator]; tip == nil || rec.seq > tip.seq {
			cr.tips[rec.creator] = rec
		}
		return
	}

	if !rec.ordered {
		cr.unordered[rec.hash] = true
	}
	if cr.last == nil || rec.seq > cr.last.seq {
		cr.last = &selfEvent{
			hash: rec.hash, seq: rec.seq,
			generation: rec.generation(), createdAt: rec.createdAt(),
		}
	}
}

func (cr *Creator) eventsOrdered(ordered []Ordered) {
	for _, o := range ordered {
		if o.Event.Creator == cr.self {
			delete(cr.unordered, o.Hash)
		}
	}
}

func (cr *Creator) eventStale(rec *eventRecord) {
	if rec.creator == cr.selfIdx {
		delete(cr.unordered, rec.hash)
	}
}

// MaybeCreateEvent creates our next event, or returns false if too many of
// our events are still waiting to be ordered. The event is not linked, the
// caller signs and gossips it and it comes back through the linker like any
// other. It only counts as waiting once it has been linked.
func (cr *Creator) MaybeCreateEvent(now time.Time) (*hashgraph.Event, Hash, bool) {

	if uint64(len(cr.unordered)) > cr.config.MaxUnorderedSelfEvents {
		cr.logger.Trace("hashgraph event creation held back", "unordered", len(cr.unordered))
		return nil, Hash{}, false
	}

	e := &hashgraph.Event{Creator: cr.self}

	var (
		gen       uint64
		seq       uint64
		hasParent bool
	)
	if cr.last != nil {
		e.SelfParent, e.SelfParentGen = cr.last.hash, cr.last.generation
		gen, seq, hasParent = cr.last.generation, cr.last.seq+1, true
	}
	e.Seq = seq
	op := cr.chooseOtherParent()
	if op != nil {
		e.OtherParent, e.OtherParentGen = op.hash, op.generation()
		if !hasParent || op.generation() > gen {
			gen = op.generation()
		}
		hasParent = true
	}
	if hasParent {
		e.Generation = gen + 1
	}

	e.CreatedAt = hashgraph.UnixNano(now)
	if cr.last != nil && e.CreatedAt <= cr.last.createdAt {
		e.CreatedAt = cr.last.createdAt + 1
	}
	if cr.supply != nil {
		e.Transactions = cr.supply()
	}

	h, err := cr.codec.HashEvent(e)
	if err != nil {
		cr.logger.Info("hashgraph hashing new event", "err", err)
		return nil, Hash{}, false
	}

	cr.last = &selfEvent{hash: h, seq: seq, generation: e.Generation, createdAt: e.CreatedAt}
	for i := range cr.used {
		cr.used[i] = false
	}
	if op != nil {
		cr.used[op.creator] = true
	}
	cr.metrics.EventsCreated.Inc()

	cr.logger.Trace("hashgraph created event", "event", h.HexShort(),
		"generation", e.Generation, "other", e.OtherParent.HexShort(),
		"txs", len(e.Transactions))
	return e, h, true
}

// chooseOtherParent prefers the tip with the highest generation that we do
// not have yet and whose creator has not been an other parent since our last
// event.
func (cr *Creator) chooseOtherParent() *eventRecord {

	threshold := cr.store.AncientThreshold()
	var lastRec *eventRecord
	if cr.last != nil {
		lastRec = cr.store.Get(cr.last.hash)
	}

	rank := func(tip *eventRecord) int {
		r := 0
		if !cr.used[tip.creator] {
			r += 2
		}
		if lastRec == nil || !cr.store.isAncestor(lastRec, tip) {
			r++
		}
		return r
	}

	var (
		best     *eventRecord
		bestRank int
	)
	for c, tip := range cr.tips {
		if c == cr.selfIdx || tip == nil || tip.generation() < threshold {
			continue
		}
		r := rank(tip)
		switch {
		case best == nil, r > bestRank:
		case r < bestRank:
			continue
		case tip.generation() > best.generation():
		case tip.generation() < best.generation():
			continue
		case !tip.hash.Less(best.hash):
			continue
		}
		best, bestRank = tip, r
	}
	return best
}
