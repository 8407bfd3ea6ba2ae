package vv

import "sort"

// parentRound returns the round of the parent h, which may have been pruned.
// A linked event only has parents that are live or ancient, so a parent the
// store neither has nor remembers is placed in the oldest round still kept.
func (c *Consensus) parentRound(h Hash) (uint64, bool) {
	if h.IsZero() {
		return 0, false
	}
	if p := c.store.Get(h); p != nil {
		return p.round, true
	}
	if pe, ok := c.store.ancient(h); ok {
		return pe.round, true
	}
	return c.ancientRound, true
}

// assignRound sets the round and witness flag of rec. An event is in the
// round of its latest parent, or the next one if it strongly sees a
// supermajority of that rounds witnesses.
func (c *Consensus) assignRound(rec *eventRecord) {

	spRound, hasSP := c.parentRound(rec.event.SelfParent)
	opRound, hasOP := c.parentRound(rec.event.OtherParent)

	if !hasSP && !hasOP {
		rec.round = 0
		rec.witness = true
		return
	}

	r := spRound
	if opRound > r {
		r = opRound
	}
	if c.stronglySeesRound(rec, r) {
		r++
	}

	rec.round = r
	rec.witness = !rec.event.HasSelfParent() || r > spRound
}

// stronglySeesRound is true if x strongly sees witnesses of round r whose
// creators carry a supermajority of the weight
func (c *Consensus) stronglySeesRound(x *eventRecord, r uint64) bool {

	ri := c.rounds[r]
	if ri == nil {
		return false
	}

	counted := make([]bool, c.weights.Len())
	var weight uint64
	for _, w := range ri.witnesses {
		if counted[w.creator] || !c.store.stronglySees(x, w) {
			continue
		}
		counted[w.creator] = true
		weight += c.weights.Weight(w.creator)
		if c.weights.IsSupermajority(weight) {
			return true
		}
	}
	return false
}

func sortByCreator(recs []*eventRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].creator != recs[j].creator {
			return recs[i].creator < recs[j].creator
		}
		return recs[i].hash.Less(recs[j].hash)
	})
}

func sortRoundSnapshots(rounds []RoundSnapshot) {
	sort.Slice(rounds, func(i, j int) bool { return rounds[i].Round < rounds[j].Round })
}
