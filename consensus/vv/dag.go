package vv

// Ancestry queries over the store. x "sees" y if y is an ancestor of x and
// the ancestry of x holds no fork by the creator of y. The ancestry vectors
// answer most queries directly. Only creators known to have forked need a
// walk of the self chain or the graph.

// record returns pending if it has hash h, otherwise the stored record
func (s *Store) record(h Hash, pending *eventRecord) *eventRecord {
	if pending != nil && pending.hash == h {
		return pending
	}
	return s.Get(h)
}

// selfDescends is true if low is on the self chain leading to high. A walk
// that reaches pruned events assumes it is.
func (s *Store) selfDescends(high, low ancestor, pending *eventRecord) bool {
	if low.seq > high.seq {
		return false
	}
	h := high.hash
	for seq := high.seq; seq > low.seq; seq-- {
		r := s.record(h, pending)
		if r == nil {
			return true
		}
		h = r.event.SelfParent
	}
	return h == low.hash
}

// mergeLatest combines two candidates for the latest ancestor by creator c.
// The later one wins, equal heights are a fork and are broken by the smaller
// hash. forkSeen is set if the two are not on the same self chain.
func (s *Store) mergeLatest(
	c int, a, b ancestor, forkSeen *bool, pending *eventRecord) ancestor {

	if !a.present {
		return b
	}
	if !b.present || a.hash == b.hash {
		return a
	}

	hi, lo := a, b
	if b.seq > a.seq || (b.seq == a.seq && b.hash.Less(a.hash)) {
		hi, lo = b, a
	}
	if hi.seq == lo.seq {
		*forkSeen = true
		return hi
	}
	if s.IsForker(c) && !s.selfDescends(hi, lo, pending) {
		*forkSeen = true
	}
	return hi
}

// mergeAncestry fills in the ancestry vector of rec from its parents. rec is
// not yet published, its seq, hash and creator must be set.
func (s *Store) mergeAncestry(rec *eventRecord, parents ...*eventRecord) {

	n := s.weights.Len()
	rec.last = make([]ancestor, n)
	rec.forkSeen = make([]bool, n)

	for _, p := range parents {
		if p == nil {
			continue
		}
		for c := 0; c < n; c++ {
			if p.forkSeen[c] {
				rec.forkSeen[c] = true
			}
			rec.last[c] = s.mergeLatest(c, rec.last[c], p.last[c], &rec.forkSeen[c], rec)
		}
	}

	self := ancestor{seq: rec.seq, hash: rec.hash, present: true}
	rec.last[rec.creator] = s.mergeLatest(
		rec.creator, rec.last[rec.creator], self, &rec.forkSeen[rec.creator], rec)
}

// isAncestor is true if y is x or an ancestor of x
func (s *Store) isAncestor(x, y *eventRecord) bool {
	if x.hash == y.hash {
		return true
	}
	c := y.creator
	a := x.last[c]
	if !a.present || a.seq < y.seq {
		return false
	}
	if !x.forkSeen[c] {
		if a.seq == y.seq {
			return a.hash == y.hash
		}
		if !s.IsForker(c) {
			return true
		}
		return s.selfDescends(a, ancestor{seq: y.seq, hash: y.hash, present: true}, nil)
	}
	return s.reaches(x, y)
}

// reaches searches the graph below x for y. Used when the ancestry of x
// holds a fork by the creator of y.
func (s *Store) reaches(x, y *eventRecord) bool {

	visited := map[Hash]bool{x.hash: true}
	stack := []*eventRecord{x}

	for len(stack) > 0 {
		r := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if r.hash == y.hash {
			return true
		}
		if r.generation() <= y.generation() {
			continue
		}
		if a := r.last[y.creator]; !a.present || a.seq < y.seq {
			continue
		}
		for _, h := range []Hash{r.event.SelfParent, r.event.OtherParent} {
			if h.IsZero() || visited[h] {
				continue
			}
			visited[h] = true
			if p := s.Get(h); p != nil {
				stack = append(stack, p)
			}
		}
	}
	return false
}

// sees is true if y is an ancestor of x and x has not seen y's creator fork
func (s *Store) sees(x, y *eventRecord) bool {
	if x.forkSeen[y.creator] {
		return false
	}
	return s.isAncestor(x, y)
}

// stronglySees is true if x sees w and the creators whose latest events in
// the ancestry of x also see w carry a supermajority of the weight.
func (s *Store) stronglySees(x, w *eventRecord) bool {
	if !s.sees(x, w) {
		return false
	}

	var weight uint64
	for c, a := range x.last {
		if !a.present || x.forkSeen[c] {
			continue
		}
		z := s.record(a.hash, x)
		if z == nil {
			continue
		}
		if s.sees(z, w) {
			weight += s.weights.Weight(c)
		}
	}
	return s.weights.IsSupermajority(weight)
}
