package hashgraph

import "time"

// Event is the immutable, gossiped, payload of a hashgraph event. Everything
// consensus derives about an event (round, fame, order) is kept elsewhere,
// addressed by the event hash.
type Event struct {
	Creator Hash

	// SelfParent is the creators previous event. It is the zero hash only
	// for the creators first event.
	SelfParent Hash

	// OtherParent is an event from a different creator, or the zero hash.
	OtherParent Hash

	// SelfParentGen and OtherParentGen are the generations of the parents,
	// zero when the parent is absent. A node that has pruned a parent can
	// still tell from these that it is ancient rather than missing.
	SelfParentGen  uint64
	OtherParentGen uint64

	// Seq is the position of the event in its creator's self chain, 0 for
	// the first event.
	Seq uint64

	// Generation is max(parent generations) + 1, or 0 for an event without
	// parents.
	Generation uint64

	// CreatedAt is the creators local clock at creation, in unix nano
	// seconds. Consensus timestamps are derived from these.
	CreatedAt uint64

	Transactions [][]byte
}

// SignedEvent is the gossip envelope. The signature is over the event hash.
type SignedEvent struct {
	Event Event
	Sig   [65]byte
}

// RawEvent is what the transport hands to consensus: the encoded SignedEvent,
// whether the signature checked out, and when this node received it. The
// received time is local and never gossiped.
type RawEvent struct {
	Raw            []byte
	SignatureValid bool
	ReceivedAt     time.Time
}

// HasSelfParent is false for a creators first event
func (e *Event) HasSelfParent() bool {
	return !e.SelfParent.IsZero()
}

// HasOtherParent reports whether the event has an other-parent
func (e *Event) HasOtherParent() bool {
	return !e.OtherParent.IsZero()
}

// Created is CreatedAt as a time.Time
func (e *Event) Created() time.Time {
	return time.Unix(0, int64(e.CreatedAt))
}

// UnixNano converts t to the representation used for CreatedAt
func UnixNano(t time.Time) uint64 {
	n := t.UnixNano()
	if n < 0 {
		return 0
	}
	return uint64(n)
}
