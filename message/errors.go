package message

import "errors"

// ErrEndOfMessage is returned by any get_* operation that would read past
// the write cursor.
var ErrEndOfMessage = errors.New("message: read past write cursor")

// ErrInsufficientCapacity is returned by any add_* operation that would
// write past the buffer's capacity. Messages never grow implicitly.
var ErrInsufficientCapacity = errors.New("message: insufficient capacity")

// ErrInvalidBitCount is returned when a bit-level operation is asked for a
// width outside [1, 64].
var ErrInvalidBitCount = errors.New("message: bit count out of range")

// ErrUseAfterRelease is returned by any operation attempted on a Message
// that has already been returned to its pool.
var ErrUseAfterRelease = errors.New("message: use after release")

// ErrInvalidAutoRelay is returned by MarkAutoRelay on a Notify message,
// which has no auto-relay wire variant.
var ErrInvalidAutoRelay = errors.New("message: notify mode has no auto-relay variant")
