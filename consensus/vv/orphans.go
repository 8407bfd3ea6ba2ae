package vv

import (
	"time"

	hashgraph "github.com/RobustRoundRobin/go-hashgraph"
	"github.com/google/btree"
)

// orphan is a valid event that is waiting for one or more parents
type orphan struct {
	hash       Hash
	event      *hashgraph.Event
	receivedAt time.Time
	missing    []Hash
}

func byReceivedLess(a, b *orphan) bool {
	if !a.receivedAt.Equal(b.receivedAt) {
		return a.receivedAt.Before(b.receivedAt)
	}
	return a.hash.Less(b.hash)
}

// orphanBuffer holds events whose parents are not linked yet. It is indexed
// by the missing parent hash for release and by received time for expiry. It
// is not safe for concurrent use, the linker serialises access.
type orphanBuffer struct {
	byHash  map[Hash]*orphan
	waiting map[Hash][]Hash // missing parent -> orphans waiting on it
	byAge   *btree.BTreeG[*orphan]
}

func newOrphanBuffer() *orphanBuffer {
	return &orphanBuffer{
		byHash:  make(map[Hash]*orphan),
		waiting: make(map[Hash][]Hash),
		byAge:   btree.NewG(btreeDegree, byReceivedLess),
	}
}

func (b *orphanBuffer) Len() int {
	return len(b.byHash)
}

func (b *orphanBuffer) has(h Hash) bool {
	_, ok := b.byHash[h]
	return ok
}

func (b *orphanBuffer) add(o *orphan) {
	if b.has(o.hash) {
		return
	}
	b.byHash[o.hash] = o
	for _, p := range o.missing {
		b.waiting[p] = append(b.waiting[p], o.hash)
	}
	b.byAge.ReplaceOrInsert(o)
}

func (b *orphanBuffer) remove(h Hash) *orphan {
	o, ok := b.byHash[h]
	if !ok {
		return nil
	}
	delete(b.byHash, h)
	b.byAge.Delete(o)
	for _, p := range o.missing {
		if w := without(b.waiting[p], h); len(w) > 0 {
			b.waiting[p] = w
		} else {
			delete(b.waiting, p)
		}
	}
	return o
}

// release removes and returns the orphans that were waiting on parent. They
// may still be missing other parents.
func (b *orphanBuffer) release(parent Hash) []*orphan {
	hashes := b.waiting[parent]
	if len(hashes) == 0 {
		return nil
	}
	released := make([]*orphan, 0, len(hashes))
	for _, h := range append([]Hash(nil), hashes...) {
		if o := b.remove(h); o != nil {
			released = append(released, o)
		}
	}
	return released
}

// expire removes and returns every orphan received before cutoff, oldest
// first
func (b *orphanBuffer) expire(cutoff time.Time) []*orphan {
	var expired []*orphan
	for {
		o, ok := b.byAge.Min()
		if !ok || !o.receivedAt.Before(cutoff) {
			break
		}
		expired = append(expired, b.remove(o.hash))
	}
	return expired
}
