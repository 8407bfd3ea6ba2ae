package vv

import (
	hashgraph "github.com/RobustRoundRobin/go-hashgraph"
)

// eng* types are sent to the engines runningCh. The run method assumes
// ownership of everything sent to it.

// engLinked carries newly linked records, in link order
type engLinked struct {
	records []*eventRecord
}

// engCreateEvent asks the run loop to create our next event
type engCreateEvent struct {
	reply chan<- *CreatedEvent
}

// engSnapshot asks the run loop for a consistent snapshot
type engSnapshot struct {
	reply chan<- *Snapshot
}

// CreatedEvent is a new event by this node. It has not been linked, the
// caller signs and gossips it, including back to this node.
type CreatedEvent struct {
	Event *hashgraph.Event
	Hash  Hash
}
