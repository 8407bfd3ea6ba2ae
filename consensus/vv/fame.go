package vv

// addWitness registers w with its round. A witness that turns up after its
// round is decided, or once the graph is two rounds past it, can never be
// famous and is decided immediately.
func (c *Consensus) addWitness(w *eventRecord) {

	if w.round > c.maxRound {
		c.maxRound = w.round
		c.metrics.MaxRound.Set(float64(w.round))
	}

	ri := c.rounds[w.round]
	if ri == nil && w.round >= c.decidedBelow {
		ri = &roundInfo{round: w.round}
		c.rounds[w.round] = ri
	}
	if ri != nil {
		ri.witnesses = append(ri.witnesses, w)
	}

	if w.round > 0 {
		c.collectStronglySeen(w)
	}

	if w.round < c.decidedBelow || c.maxRound >= w.round+2 {
		w.fame = FameFalse
		c.logger.Trace("hashgraph late witness not famous",
			"event", w.hash.HexShort(), "round", w.round, "max", c.maxRound)
	}
}

// collectStronglySeen records the previous round witnesses y strongly sees.
// All of them are ancestors of y so the set is complete once y is linked.
func (c *Consensus) collectStronglySeen(y *eventRecord) {
	prev := c.rounds[y.round-1]
	if prev == nil {
		return
	}
	counted := make([]bool, c.weights.Len())
	for _, w := range prev.witnesses {
		if counted[w.creator] || !c.store.stronglySees(y, w) {
			continue
		}
		counted[w.creator] = true
		y.stronglySeen = append(y.stronglySeen, w.hash)
	}
}

// decideFame runs the election for every undecided witness that has voters
// at least two rounds above it
func (c *Consensus) decideFame() {

	for r := c.decidedBelow; r+2 <= c.maxRound; r++ {
		ri := c.rounds[r]
		if ri == nil {
			continue
		}
		for _, x := range ri.witnesses {
			if x.fame == FameUndecided {
				c.elect(x)
			}
		}
		c.checkStalled(ri)
	}
}

// elect looks for a voter that decides the fame of x. Decisions are only made
// in normal rounds and only by a supermajority, so every voter that decides
// decides the same way.
func (c *Consensus) elect(x *eventRecord) {

	for ry := x.round + 2; ry <= c.maxRound; ry++ {
		if c.isCoinRound(ry - x.round) {
			continue
		}
		ri := c.rounds[ry]
		if ri == nil {
			continue
		}
		for _, y := range ri.witnesses {
			yes, no := c.tally(y, x)
			if c.weights.IsSupermajority(yes) {
				c.decide(x, FameTrue, y)
				return
			}
			if c.weights.IsSupermajority(no) {
				c.decide(x, FameFalse, y)
				return
			}
		}
	}
}

func (c *Consensus) decide(x *eventRecord, fame Fame, by *eventRecord) {
	x.fame = fame
	delete(c.votes, x.hash)
	c.logger.Trace("hashgraph fame decided", "event", x.hash.HexShort(),
		"round", x.round, "fame", fame, "voter", by.hash.HexShort(), "voterround", by.round)
}

// vote is the vote of witness y on the fame of witness x, memoised. y must
// be in a later round than x.
func (c *Consensus) vote(y, x *eventRecord) bool {

	votes := c.votes[x.hash]
	if votes == nil {
		votes = make(map[Hash]bool)
		c.votes[x.hash] = votes
	}
	if v, ok := votes[y.hash]; ok {
		return v
	}

	var v bool
	d := y.round - x.round
	if d <= 1 {
		v = c.store.sees(y, x)
	} else {
		yes, no := c.tally(y, x)
		v = yes >= no
		if c.isCoinRound(d) &&
			!c.weights.IsSupermajority(yes) && !c.weights.IsSupermajority(no) {
			v = coinBit(y.hash)
			c.metrics.CoinVotes.Inc()
		}
	}
	votes[y.hash] = v
	return v
}

// tally sums, by weight, the votes on x of the previous round witnesses y
// strongly sees
func (c *Consensus) tally(y, x *eventRecord) (yes, no uint64) {
	for _, h := range y.stronglySeen {
		w := c.store.Get(h)
		if w == nil || w.round <= x.round {
			continue
		}
		if c.vote(w, x) {
			yes += c.weights.Weight(w.creator)
		} else {
			no += c.weights.Weight(w.creator)
		}
	}
	return yes, no
}

func (c *Consensus) isCoinRound(d uint64) bool {
	return d%c.config.CoinFrequency == 0
}

// coinBit is the pseudo random vote used in coin rounds: the middle bit of
// the voters hash
func coinBit(h Hash) bool {
	return h[len(h)/2]&0x80 != 0
}

func (c *Consensus) checkStalled(ri *roundInfo) {
	if ri.stalled || c.maxRound <= ri.round+c.config.MaxVotingRounds || ri.famesDecided() {
		return
	}
	ri.stalled = true
	c.metrics.StalledElections.Inc()
	c.logger.Warn("hashgraph fame election running long", "round", ri.round,
		"max", c.maxRound, "limit", c.config.MaxVotingRounds)
}
