package connection

import "errors"

// ErrWrongState is returned when an operation is attempted from a state
// that does not permit it (e.g. connect() while already Connected).
var ErrWrongState = errors.New("connection: operation invalid in current state")

// ErrUnknownPing is returned when a heartbeat echo references a ping id
// this side never sent, or already reaped.
var ErrUnknownPing = errors.New("connection: unrecognized heartbeat ping id")
