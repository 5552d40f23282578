package peer

import "errors"

// ErrServerFull describes the case where no free connection id remains in
// the allocator. No function returns it: the Server answers such a
// connect attempt with a Reject datagram instead.
var ErrServerFull = errors.New("peer: no free connection ids")

// ErrUnknownConnection is returned by the Server's SendUnreliable,
// SendReliable, SendNotify and DisconnectClient when id
// names no currently tracked connection.
var ErrUnknownConnection = errors.New("peer: unknown connection id")

// ErrNotStarted is returned by Client operations attempted before Connect.
var ErrNotStarted = errors.New("peer: client not started")

// ErrAlreadyConnected guards against calling Connect twice on a live client.
var ErrAlreadyConnected = errors.New("peer: already connected or connecting")
