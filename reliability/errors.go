package reliability

import "errors"

// ErrMessageTooLarge names a payload that would not fit within
// message.MaxPayloadSize once framing overhead is accounted for. No
// function in this package returns it: an oversized payload surfaces as
// message.ErrInsufficientCapacity from the Add* calls of the fill callback.
var ErrMessageTooLarge = errors.New("reliability: message exceeds max payload size")
