package vv

import (
	"sync"

	hashgraph "github.com/RobustRoundRobin/go-hashgraph"
	"github.com/google/btree"
	lru "github.com/hashicorp/golang-lru"
)

const (
	btreeDegree = 32

	// The arena is compacted once more than half of it has been pruned and it
	// has at least this many slots
	minCompactArena = 1024
)

// Store holds every linked, non ancient, event record. Records live in an
// arena in insertion order and are found by hash through the index. The
// generation ordered btree lets ancient events be pruned without scanning
// the arena.
//
// mu protects the index structures only. Record fields follow the single
// writer rule described on eventRecord.
type Store struct {
	mu sync.RWMutex

	weights *hashgraph.WeightTable

	arena     []*eventRecord
	index     map[Hash]int
	nextIndex uint64
	live      int

	// chains[c] maps self chain seq to the events creator c has at that
	// seq. More than one is a fork.
	chains  []map[uint64][]Hash
	forkers []bool

	byGeneration *btree.BTreeG[*eventRecord]

	ancientThreshold uint64

	// pruned remembers recently pruned events so late children can be
	// checked against their ancient parents. Children of parents that have
	// dropped out of it link on the generations they declare.
	pruned *lru.ARCCache
}

func byGenerationLess(a, b *eventRecord) bool {
	if a.generation() != b.generation() {
		return a.generation() < b.generation()
	}
	return a.index < b.index
}

// NewStore creates an empty store for the nodes in weights
func NewStore(weights *hashgraph.WeightTable, prunedCacheSize int) (*Store, error) {

	if prunedCacheSize <= 0 {
		prunedCacheSize = hashgraph.DefaultConfig.SeenCacheSize
	}
	pruned, err := lru.NewARC(prunedCacheSize)
	if err != nil {
		return nil, err
	}

	s := &Store{
		weights:      weights,
		index:        make(map[Hash]int),
		chains:       make([]map[uint64][]Hash, weights.Len()),
		forkers:      make([]bool, weights.Len()),
		byGeneration: btree.NewG(btreeDegree, byGenerationLess),
		pruned:       pruned,
	}
	for i := range s.chains {
		s.chains[i] = make(map[uint64][]Hash)
	}
	return s, nil
}

func (s *Store) Weights() *hashgraph.WeightTable {
	return s.weights
}

// Get returns the record for h or nil if it is not linked (or was pruned)
func (s *Store) Get(h Hash) *eventRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[h]
	if !ok {
		return nil
	}
	return s.arena[i]
}

func (s *Store) Has(h Hash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[h]
	return ok
}

// Len is the number of live records
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live
}

// add publishes a fully linked record. The record is assigned its arena
// index here.
func (s *Store) add(rec *eventRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.index = s.nextIndex
	s.nextIndex++

	s.index[rec.hash] = len(s.arena)
	s.arena = append(s.arena, rec)
	s.live++

	s.chains[rec.creator][rec.seq] = append(s.chains[rec.creator][rec.seq], rec.hash)
	s.byGeneration.ReplaceOrInsert(rec)
}

// chainAt returns the events creator has linked at seq
func (s *Store) chainAt(creator int, seq uint64) []Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chains[creator][seq]
}

func (s *Store) markForker(creator int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forkers[creator] = true
}

// IsForker is true once creator has been seen to produce two events with the
// same self parent
func (s *Store) IsForker(creator int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.forkers[creator]
}

func (s *Store) forkerIndices() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var f []uint64
	for c, forked := range s.forkers {
		if forked {
			f = append(f, uint64(c))
		}
	}
	return f
}

// AncientThreshold is the generation below which events are ancient
func (s *Store) AncientThreshold() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ancientThreshold
}

// IsAncient is true if events of generation are below the ancient threshold
func (s *Store) IsAncient(generation uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ancientThreshold > 0 && generation < s.ancientThreshold
}

// ancient returns what is remembered about a pruned event
func (s *Store) ancient(h Hash) (prunedEvent, bool) {
	v, ok := s.pruned.Get(h)
	if !ok {
		return prunedEvent{}, false
	}
	return v.(prunedEvent), true
}

// pruneBelow raises the ancient threshold to generation and removes every
// record below it. The removed records are returned in generation order.
func (s *Store) pruneBelow(generation uint64) []*eventRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	if generation <= s.ancientThreshold {
		return nil
	}
	s.ancientThreshold = generation

	var removed []*eventRecord
	for {
		rec, ok := s.byGeneration.Min()
		if !ok || rec.generation() >= generation {
			break
		}
		s.byGeneration.DeleteMin()

		i := s.index[rec.hash]
		s.arena[i] = nil
		delete(s.index, rec.hash)
		s.live--

		chain := s.chains[rec.creator]
		if hashes := chain[rec.seq]; len(hashes) <= 1 {
			delete(chain, rec.seq)
		} else {
			chain[rec.seq] = without(hashes, rec.hash)
		}

		s.pruned.Add(rec.hash, prunedEvent{
			generation: rec.generation(), seq: rec.seq, creator: rec.creator, round: rec.round})
		removed = append(removed, rec)
	}

	if len(s.arena) >= minCompactArena && s.live*2 < len(s.arena) {
		s.compact()
	}
	return removed
}

// compact drops the pruned arena slots. mu must be held.
func (s *Store) compact() {
	arena := make([]*eventRecord, 0, s.live)
	for _, rec := range s.arena {
		if rec == nil {
			continue
		}
		s.index[rec.hash] = len(arena)
		arena = append(arena, rec)
	}
	s.arena = arena
}

// records returns the live records in insertion order
func (s *Store) records() []*eventRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := make([]*eventRecord, 0, s.live)
	for _, rec := range s.arena {
		if rec != nil {
			recs = append(recs, rec)
		}
	}
	return recs
}

// restoreThreshold sets the ancient threshold and forkers recovered from a
// snapshot
func (s *Store) restoreThreshold(ancientThreshold uint64, forkers []uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ancientThreshold = ancientThreshold
	for _, c := range forkers {
		if int(c) < len(s.forkers) {
			s.forkers[c] = true
		}
	}
}

// restore publishes a record recovered from a snapshot, preserving its arena
// index.
func (s *Store) restore(rec *eventRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.index >= s.nextIndex {
		s.nextIndex = rec.index + 1
	}
	s.index[rec.hash] = len(s.arena)
	s.arena = append(s.arena, rec)
	s.live++
	s.chains[rec.creator][rec.seq] = append(s.chains[rec.creator][rec.seq], rec.hash)
	s.byGeneration.ReplaceOrInsert(rec)
}

func without(hashes []Hash, h Hash) []Hash {
	out := make([]Hash, 0, len(hashes))
	for _, o := range hashes {
		if o != h {
			out = append(out, o)
		}
	}
	return out
}
