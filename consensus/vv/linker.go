package vv

import (
	"fmt"
	"sync"
	"time"

	hashgraph "github.com/RobustRoundRobin/go-hashgraph"
)

// LinkStatus is the outcome of offering an event to the Linker
type LinkStatus int

const (
	// LinkRejected means the event was malformed (or a discarded fork) and
	// has been dropped for good
	LinkRejected LinkStatus = iota
	// LinkLinked means the event, and possibly orphans waiting on it, were
	// added to the store
	LinkLinked
	// LinkBuffered means the event is waiting for a parent
	LinkBuffered
	// LinkDuplicate means the event is already linked or buffered
	LinkDuplicate
	// LinkAncient means the event is older than anything consensus still
	// needs and was dropped
	LinkAncient
)

// Linker validates events and connects them to their parents. Events whose
// parents are unknown are held in the orphan buffer until the parents arrive
// or the retention window passes.
type Linker struct {
	mu sync.Mutex

	config  *hashgraph.Config
	logger  hashgraph.Logger
	codec   *hashgraph.CipherCodec
	store   *Store
	orphans *orphanBuffer
	metrics *Metrics
}

func NewLinker(
	config *hashgraph.Config, codec *hashgraph.CipherCodec, store *Store,
	logger hashgraph.Logger, metrics *Metrics) *Linker {

	return &Linker{
		config:  config,
		logger:  logger,
		codec:   codec,
		store:   store,
		orphans: newOrphanBuffer(),
		metrics: metrics,
	}
}

// Link decodes raw and links it. On success the newly linked records are
// returned in topological order, the event itself first followed by any
// orphans it released.
func (l *Linker) Link(raw hashgraph.RawEvent) ([]*eventRecord, LinkStatus, error) {

	se, h, err := l.codec.DecodeSignedEvent(raw.Raw)
	if err != nil {
		l.metrics.rejected(rejectMalformed)
		return nil, LinkRejected, fmt.Errorf("%v: %w", err, hashgraph.ErrMalformedEvent)
	}
	return l.LinkEvent(&se.Event, h, raw.SignatureValid, raw.ReceivedAt)
}

// LinkEvent links an already decoded event with hash h
func (l *Linker) LinkEvent(
	e *hashgraph.Event, h Hash, signatureValid bool, receivedAt time.Time,
) ([]*eventRecord, LinkStatus, error) {

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.store.Has(h) || l.orphans.has(h) {
		l.metrics.rejected(rejectDuplicate)
		return nil, LinkDuplicate, nil
	}

	if !signatureValid {
		l.metrics.rejected(rejectMalformed)
		return nil, LinkRejected, fmt.Errorf(
			"event %s invalid signature: %w", h.HexShort(), hashgraph.ErrMalformedEvent)
	}

	if _, ok := l.store.weights.Index(e.Creator); !ok {
		l.metrics.rejected(rejectMalformed)
		return nil, LinkRejected, fmt.Errorf(
			"event %s creator %s not a member: %w",
			h.HexShort(), e.Creator.HexShort(), hashgraph.ErrMalformedEvent)
	}

	if l.store.IsAncient(e.Generation) {
		l.metrics.rejected(rejectAncient)
		return nil, LinkAncient, nil
	}

	o := &orphan{hash: h, event: e, receivedAt: receivedAt}
	rec, err := l.tryLink(o)
	if err != nil {
		l.metrics.rejected(reasonFor(err))
		return nil, LinkRejected, err
	}
	if rec == nil {
		l.orphans.add(o)
		l.metrics.OrphansBuffered.Set(float64(l.orphans.Len()))
		l.logger.Trace("hashgraph event buffered", "event", h.HexShort(),
			"missing", len(o.missing))
		return nil, LinkBuffered, nil
	}

	linked := l.releaseOrphans(rec)
	l.metrics.OrphansBuffered.Set(float64(l.orphans.Len()))
	return linked, LinkLinked, nil
}

// Expire discards orphans received more than the retention window before
// now. The discarded event hashes are returned.
func (l *Linker) Expire(now time.Time) []Hash {
	l.mu.Lock()
	defer l.mu.Unlock()

	expired := l.orphans.expire(now.Add(-l.config.OrphanRetentionDuration()))
	if len(expired) == 0 {
		return nil
	}

	hashes := make([]Hash, 0, len(expired))
	for _, o := range expired {
		hashes = append(hashes, o.hash)
		l.logger.Debug("hashgraph discarding orphan",
			"err", hashgraph.ErrOrphanedEvent, "event", o.hash.HexShort(),
			"creator", o.event.Creator.HexShort(), "received", o.receivedAt)
		l.metrics.rejected(rejectOrphaned)
	}
	l.metrics.OrphansBuffered.Set(float64(l.orphans.Len()))
	return hashes
}

// Orphans is the number of buffered events
func (l *Linker) Orphans() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.orphans.Len()
}

// releaseOrphans links everything that was waiting, directly or indirectly,
// on rec
func (l *Linker) releaseOrphans(rec *eventRecord) []*eventRecord {

	linked := []*eventRecord{rec}
	queue := []Hash{rec.hash}

	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]

		for _, o := range l.orphans.release(h) {
			r, err := l.tryLink(o)
			if err != nil {
				l.metrics.rejected(reasonFor(err))
				l.logger.Info("hashgraph dropping released orphan",
					"event", o.hash.HexShort(), "err", err)
				continue
			}
			if r == nil {
				l.orphans.add(o)
				continue
			}
			linked = append(linked, r)
			queue = append(queue, r.hash)
		}
	}
	return linked
}

// tryLink validates o against its parents and, if they are all available,
// publishes a new record to the store. It returns nil and no error if a
// parent is missing, o.missing says which. A parent whose declared
// generation is below the ancient threshold is never missing: it is ancient
// and the event links without it.
func (l *Linker) tryLink(o *orphan) (*eventRecord, error) {

	e := o.event
	creator, _ := l.store.weights.Index(e.Creator)

	o.missing = o.missing[:0]

	var (
		parents   [2]*eventRecord
		maxGen    uint64
		hasParent bool
	)

	if e.HasSelfParent() {
		if e.Seq == 0 {
			return nil, fmt.Errorf("event %s has a self parent at seq 0: %w",
				o.hash.HexShort(), hashgraph.ErrMalformedEvent)
		}
		if sp := l.store.Get(e.SelfParent); sp != nil {
			if sp.creator != creator {
				return nil, fmt.Errorf("event %s self parent by %s: %w",
					o.hash.HexShort(), sp.event.Creator.HexShort(), hashgraph.ErrMalformedEvent)
			}
			if err := checkSelfParent(o, sp.seq, sp.generation()); err != nil {
				return nil, err
			}
			parents[0] = sp
		} else if pe, ok := l.store.ancient(e.SelfParent); ok {
			if pe.creator != creator {
				return nil, fmt.Errorf("event %s ancient self parent by other creator: %w",
					o.hash.HexShort(), hashgraph.ErrMalformedEvent)
			}
			if err := checkSelfParent(o, pe.seq, pe.generation); err != nil {
				return nil, err
			}
		} else if !l.store.IsAncient(e.SelfParentGen) {
			o.missing = append(o.missing, e.SelfParent)
		}
		maxGen, hasParent = e.SelfParentGen, true

	} else if e.Seq != 0 || e.SelfParentGen != 0 {
		return nil, fmt.Errorf("event %s without self parent has seq %d, parent generation %d: %w",
			o.hash.HexShort(), e.Seq, e.SelfParentGen, hashgraph.ErrMalformedEvent)
	}

	if e.HasOtherParent() {
		if e.OtherParent == e.SelfParent {
			return nil, fmt.Errorf("event %s other parent is the self parent: %w",
				o.hash.HexShort(), hashgraph.ErrMalformedEvent)
		}
		opCreator := -1
		var opGen uint64
		known := true
		if op := l.store.Get(e.OtherParent); op != nil {
			parents[1] = op
			opCreator, opGen = op.creator, op.generation()
		} else if pe, ok := l.store.ancient(e.OtherParent); ok {
			opCreator, opGen = pe.creator, pe.generation
		} else {
			known = false
			if !l.store.IsAncient(e.OtherParentGen) {
				o.missing = append(o.missing, e.OtherParent)
			}
		}
		if opCreator == creator && l.store.weights.Len() > 1 {
			return nil, fmt.Errorf("event %s other parent by the same creator: %w",
				o.hash.HexShort(), hashgraph.ErrMalformedEvent)
		}
		if known && opGen != e.OtherParentGen {
			return nil, fmt.Errorf("event %s other parent generation %d, declared %d: %w",
				o.hash.HexShort(), opGen, e.OtherParentGen, hashgraph.ErrMalformedEvent)
		}
		if !hasParent || e.OtherParentGen > maxGen {
			maxGen = e.OtherParentGen
		}
		hasParent = true

	} else if e.OtherParentGen != 0 {
		return nil, fmt.Errorf("event %s without other parent has parent generation %d: %w",
			o.hash.HexShort(), e.OtherParentGen, hashgraph.ErrMalformedEvent)
	}

	if len(o.missing) > 0 {
		return nil, nil
	}

	var expect uint64
	if hasParent {
		expect = maxGen + 1
	}
	if e.Generation != expect {
		return nil, fmt.Errorf("event %s generation %d, expected %d: %w",
			o.hash.HexShort(), e.Generation, expect, hashgraph.ErrMalformedEvent)
	}

	seq := e.Seq
	if existing := l.store.chainAt(creator, seq); len(existing) > 0 {
		l.metrics.ForksDetected.Inc()
		if l.config.DiscardForks {
			return nil, fmt.Errorf("event %s creator %s seq %d: %w",
				o.hash.HexShort(), e.Creator.HexShort(), seq, hashgraph.ErrForkDetected)
		}
		if !l.store.IsForker(creator) {
			l.logger.Warn("hashgraph creator forked",
				"err", hashgraph.ErrForkDetected, "creator", e.Creator.HexShort(),
				"seq", seq, "event", o.hash.HexShort(), "other", existing[0].HexShort())
		}
		l.store.markForker(creator)
	}

	rec := &eventRecord{
		hash:       o.hash,
		event:      e,
		creator:    creator,
		seq:        seq,
		receivedAt: o.receivedAt,
	}
	l.store.mergeAncestry(rec, parents[0], parents[1])
	l.store.add(rec)
	l.metrics.EventsLinked.Inc()

	return rec, nil
}

// checkSelfParent checks the seq and parent generation o declares against
// its known self parent
func checkSelfParent(o *orphan, seq, generation uint64) error {
	e := o.event
	if e.Seq != seq+1 || e.SelfParentGen != generation {
		return fmt.Errorf("event %s seq %d, parent generation %d does not follow self parent (seq %d, generation %d): %w",
			o.hash.HexShort(), e.Seq, e.SelfParentGen, seq, generation, hashgraph.ErrMalformedEvent)
	}
	return nil
}
