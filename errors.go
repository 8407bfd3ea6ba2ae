package hashgraph

import "errors"

// The consensus error taxonomy. None of these stop the consensus pipeline.
var (
	// ErrMalformedEvent is returned for events that can never be linked: bad
	// signature, unknown creator, parents from the wrong creator or a wrong
	// generation. They are discarded and never retried.
	ErrMalformedEvent = errors.New("malformed event")

	// ErrOrphanedEvent is reported for events whose parents did not arrive
	// within the orphan retention window.
	ErrOrphanedEvent = errors.New("orphaned event")

	// ErrForkDetected is reported when a creator produces two events with the
	// same self-parent. The creator is flagged, the event is still linked
	// unless Config.DiscardForks is set.
	ErrForkDetected = errors.New("fork detected")
)
