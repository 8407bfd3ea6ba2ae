package vv

import (
	"sort"
)

type received struct {
	rec       *eventRecord
	timestamp uint64
}

// orderRound gives a consensus order to every unordered event that is an
// ancestor of all the judges of the newly decided round ri. Events that only
// some judges have wait for a later round.
func (c *Consensus) orderRound(ri *roundInfo) []Ordered {

	if len(ri.judges) == 0 {
		c.metrics.RoundsNoJudges.Inc()
		c.logger.Warn("hashgraph decided round has no judges", "round", ri.round)
		return nil
	}

	var recv []received
	for _, x := range c.unorderedAncestors(ri.judges) {
		if !c.receivedByAll(ri.judges, x) {
			continue
		}
		recv = append(recv, received{rec: x, timestamp: c.medianTimestamp(ri.judges, x)})
	}

	sort.Slice(recv, func(i, j int) bool {
		if recv[i].timestamp != recv[j].timestamp {
			return recv[i].timestamp < recv[j].timestamp
		}
		return recv[i].rec.hash.Less(recv[j].rec.hash)
	})

	ordered := make([]Ordered, 0, len(recv))
	for _, r := range recv {
		x := r.rec
		x.ordered = true
		x.roundReceived = ri.round
		x.consensusTimestamp = r.timestamp
		x.consensusOrder = c.nextOrder
		c.nextOrder++

		ordered = append(ordered, Ordered{
			Order:        x.consensusOrder,
			Timestamp:    x.consensusTimestamp,
			Round:        x.roundReceived,
			Hash:         x.hash,
			Event:        x.event,
			Transactions: x.event.Transactions,
		})
	}

	c.metrics.EventsOrdered.Add(float64(len(ordered)))
	c.logger.Debug("hashgraph round ordered", "round", ri.round,
		"events", len(ordered), "next", c.nextOrder)
	return ordered
}

// unorderedAncestors returns every unordered event reachable from the judges.
// The walk does not go below ordered events, their ancestors are ordered too.
func (c *Consensus) unorderedAncestors(judges []*eventRecord) []*eventRecord {

	var found []*eventRecord
	visited := make(map[Hash]bool)
	stack := make([]*eventRecord, 0, len(judges))
	for _, j := range judges {
		visited[j.hash] = true
		stack = append(stack, j)
	}

	for len(stack) > 0 {
		r := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if r.ordered {
			continue
		}
		found = append(found, r)

		for _, h := range []Hash{r.event.SelfParent, r.event.OtherParent} {
			if h.IsZero() || visited[h] {
				continue
			}
			visited[h] = true
			if p := c.store.Get(h); p != nil {
				stack = append(stack, p)
			}
		}
	}
	return found
}

func (c *Consensus) receivedByAll(judges []*eventRecord, x *eventRecord) bool {
	for _, j := range judges {
		if !c.store.isAncestor(j, x) {
			return false
		}
	}
	return true
}

// medianTimestamp is the median, over the judges, of the time each judges
// creator first had x: the creation time of the earliest self ancestor of the
// judge that has x as an ancestor.
func (c *Consensus) medianTimestamp(judges []*eventRecord, x *eventRecord) uint64 {

	times := make([]uint64, 0, len(judges))
	for _, j := range judges {
		times = append(times, c.firstHadAt(j, x))
	}
	return median(times)
}

func (c *Consensus) firstHadAt(j, x *eventRecord) uint64 {
	z := j
	for z.event.HasSelfParent() {
		sp := c.store.Get(z.event.SelfParent)
		if sp == nil || !c.store.isAncestor(sp, x) {
			break
		}
		z = sp
	}
	return z.createdAt()
}

// median of the times, the midpoint of the middle two for an even count
func median(times []uint64) uint64 {
	if len(times) == 0 {
		return 0
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	n := len(times)
	if n%2 == 1 {
		return times[n/2]
	}
	a, b := times[n/2-1], times[n/2]
	return a + (b-a)/2
}
