package vv

import (
	"time"

	hashgraph "github.com/RobustRoundRobin/go-hashgraph"
)

type Hash = hashgraph.Hash

// Fame is the tri-state outcome of a witness election
type Fame uint8

const (
	FameUndecided Fame = iota
	FameTrue
	FameFalse
)

// ancestor identifies the latest known event of one creator in an events
// ancestry. present is false if nothing by that creator is an ancestor.
type ancestor struct {
	seq     uint64
	hash    Hash
	present bool
}

// eventRecord is the consensus state for one linked event. The event itself
// is never modified. Fields are split by writer: the linker fills in the
// first group before the record is published to the store, the consensus
// path (the engine run loop) owns the second group and sets each field once.
type eventRecord struct {
	hash  Hash
	event *hashgraph.Event

	index      uint64 // arena insertion sequence
	creator    int
	seq        uint64 // position in the creators self chain, 0 for its first event
	receivedAt time.Time

	// last[c] is the latest event by creator c that is an ancestor of (or
	// is) this event. forkSeen[c] is set if the ancestry contains a fork by
	// c.
	last     []ancestor
	forkSeen []bool

	round              uint64
	witness            bool
	stronglySeen       []Hash // previous round witnesses this witness strongly sees
	fame               Fame
	judge              bool
	ordered            bool
	roundReceived      uint64
	consensusTimestamp uint64
	consensusOrder     uint64
}

func (r *eventRecord) generation() uint64 {
	return r.event.Generation
}

func (r *eventRecord) createdAt() uint64 {
	return r.event.CreatedAt
}

// prunedEvent is what the store remembers about an ancient event once it has
// been removed.
type prunedEvent struct {
	generation uint64
	seq        uint64
	creator    int
	round      uint64
}

// Ordered is a consensus ordered event as delivered to the application
type Ordered struct {
	Order        uint64
	Timestamp    uint64 // unix nanos
	Round        uint64 // the round the event was received in
	Hash         Hash
	Event        *hashgraph.Event
	Transactions [][]byte
}
