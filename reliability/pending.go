package reliability

import "time"

// PendingOutbound is bound to a single (connection, sequence id) pair: the
// serialized bytes behind a reliable or notify send that hasn't yet been
// confirmed, and the bookkeeping needed to retry or expire it.
type PendingOutbound struct {
	Seq      SequenceID
	Payload  []byte
	Attempts int
	LastSend time.Time
	Deadline time.Time

	// Tag is the user value carried through to a notify delivered/lost
	// event. Unused for reliable sends.
	Tag any
}
