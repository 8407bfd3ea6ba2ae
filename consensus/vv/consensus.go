package vv

import (
	hashgraph "github.com/RobustRoundRobin/go-hashgraph"
)

// roundInfo is what consensus tracks for one round
type roundInfo struct {
	round     uint64
	witnesses []*eventRecord // a forking creator may have more than one
	decided   bool
	judges    []*eventRecord // in creator index order

	minJudgeGeneration uint64
	stalled            bool
}

// Consensus runs virtual voting over the linked events. Records must be
// added in topological order by a single goroutine: Consensus is the only
// writer of the consensus fields of a record and it does no locking of its
// own.
type Consensus struct {
	config  *hashgraph.Config
	logger  hashgraph.Logger
	store   *Store
	weights *hashgraph.WeightTable
	metrics *Metrics

	rounds   map[uint64]*roundInfo
	maxRound uint64

	// every round below decidedBelow is decided
	decidedBelow uint64

	// ancientRound is the round whose smallest judge generation is the
	// ancient threshold. Pruned parents nobody remembers count as this round.
	ancientRound uint64

	// votes[candidate][voter]. Dropped once the candidate is decided.
	votes map[Hash]map[Hash]bool

	nextOrder uint64

	// stale is called for events pruned without ever being ordered
	stale func(*eventRecord)
}

func NewConsensus(
	config *hashgraph.Config, store *Store, logger hashgraph.Logger,
	metrics *Metrics) *Consensus {

	if config.CoinFrequency < 3 {
		logger.Crit("coin frequency must be at least 3", "coinfrequency", config.CoinFrequency)
	}

	return &Consensus{
		config:  config,
		logger:  logger,
		store:   store,
		weights: store.weights,
		metrics: metrics,
		rounds:  make(map[uint64]*roundInfo),
		votes:   make(map[Hash]map[Hash]bool),
	}
}

// Add runs consensus for a newly linked record and returns anything that
// became ordered as a result, in consensus order.
func (c *Consensus) Add(rec *eventRecord) []Ordered {

	c.assignRound(rec)
	if !rec.witness {
		return nil
	}

	c.addWitness(rec)
	c.decideFame()
	return c.decideRounds()
}

// DecidedRound returns the latest decided round, false if none are
func (c *Consensus) DecidedRound() (uint64, bool) {
	if c.decidedBelow == 0 {
		return 0, false
	}
	return c.decidedBelow - 1, true
}

func (c *Consensus) MaxRound() uint64 {
	return c.maxRound
}

// NextOrder is the consensus order the next ordered event will get
func (c *Consensus) NextOrder() uint64 {
	return c.nextOrder
}

// decideRounds decides, in ascending order, every round whose witnesses all
// have decided fame and orders the events they receive
func (c *Consensus) decideRounds() []Ordered {

	var ordered []Ordered

	for c.decidedBelow+2 <= c.maxRound {
		ri := c.rounds[c.decidedBelow]
		if ri == nil || !ri.famesDecided() {
			break
		}

		ri.decided = true
		c.selectJudges(ri)
		c.decidedBelow++

		c.metrics.RoundsDecided.Inc()
		c.metrics.DecidedRound.Set(float64(ri.round))
		c.logger.Debug("hashgraph round decided", "round", ri.round,
			"witnesses", len(ri.witnesses), "judges", len(ri.judges))

		ordered = append(ordered, c.orderRound(ri)...)
		c.pruneAncient()
	}
	return ordered
}

func (ri *roundInfo) famesDecided() bool {
	for _, w := range ri.witnesses {
		if w.fame == FameUndecided {
			return false
		}
	}
	return true
}

// selectJudges picks the famous witnesses. A creator with more than one
// famous witness in the round contributes no judge.
func (c *Consensus) selectJudges(ri *roundInfo) {

	famous := make([]int, c.weights.Len())
	for _, w := range ri.witnesses {
		if w.fame == FameTrue {
			famous[w.creator]++
		}
	}

	ri.judges = ri.judges[:0]
	for _, w := range ri.witnesses {
		if w.fame == FameTrue && famous[w.creator] == 1 {
			w.judge = true
			ri.judges = append(ri.judges, w)
		}
	}
	sortByCreator(ri.judges)

	for i, j := range ri.judges {
		if i == 0 || j.generation() < ri.minJudgeGeneration {
			ri.minJudgeGeneration = j.generation()
		}
	}
}

// pruneAncient advances the ancient threshold to the smallest judge
// generation of the oldest round that is still kept, and drops everything
// below it.
func (c *Consensus) pruneAncient() {

	if c.decidedBelow <= c.config.RoundsNonAncient {
		return
	}
	oldest := c.decidedBelow - c.config.RoundsNonAncient

	ri := c.rounds[oldest]
	if ri == nil || len(ri.judges) == 0 {
		return
	}

	removed := c.store.pruneBelow(ri.minJudgeGeneration)
	c.ancientRound = oldest
	for r := range c.rounds {
		if r < oldest {
			delete(c.rounds, r)
		}
	}

	for _, rec := range removed {
		if !rec.ordered {
			c.metrics.EventsStale.Inc()
			if c.stale != nil {
				c.stale(rec)
			}
		}
	}
	if len(removed) > 0 {
		c.metrics.EventsPruned.Add(float64(len(removed)))
		c.logger.Trace("hashgraph pruned ancient events", "count", len(removed),
			"threshold", ri.minJudgeGeneration)
	}
	c.metrics.StoreSize.Set(float64(c.store.Len()))
}
