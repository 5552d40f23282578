package connection

import (
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jonboulle/clockwork"
	"github.com/rs/xid"

	"github.com/ventosilenzioso/riptide/message"
	"github.com/ventosilenzioso/riptide/reliability"
)

// rttFloor is the minimum RTT sample accepted, clamped to >= 1 ms.
const rttFloor = time.Millisecond

// Connection is one peer-to-peer session: state machine, heartbeat/RTT
// bookkeeping, and the reliability engine that guarantees its reliable and
// notify sends. State is tracked through an explicit transition method
// set rather than direct field mutation, with the last-heartbeat timestamp
// driving the heartbeat/timeout deadline.
type Connection struct {
	ID       uint16
	Endpoint net.Addr

	state  State
	reason DisconnectReason

	cfg   Config
	clock clockwork.Clock

	canTimeout      bool
	timeoutOverride time.Duration
	timeoutDeadline time.Time
	lastHeartbeat   time.Time

	pendingPings map[uint16]time.Time
	nextPingID   uint16

	connectAttempts int
	connectBackoff  backoff.BackOff
	retryDeadline   time.Time
	correlationID   xid.ID

	engine *reliability.Engine
}

// newConnection builds the common skeleton shared by client and
// server-side construction.
func newConnection(endpoint net.Addr, clock clockwork.Clock, pool *message.Pool, cfg Config) *Connection {
	return &Connection{
		Endpoint:     endpoint,
		cfg:          cfg,
		clock:        clock,
		canTimeout:   true,
		pendingPings: make(map[uint16]time.Time),
		engine:       reliability.NewEngine(clock, pool, cfg.Reliability),
	}
}

// NewPending builds a server-side connection in state Pending, as created
// by the Peer Hub on receipt of the first Connect datagram.
func NewPending(id uint16, endpoint net.Addr, clock clockwork.Clock, pool *message.Pool, cfg Config) *Connection {
	c := newConnection(endpoint, clock, pool, cfg)
	c.ID = id
	c.state = Pending
	c.lastHeartbeat = clock.Now()
	c.refreshTimeoutDeadline()
	return c
}

// NewClient builds a client-side connection in state NotConnected, ready
// for BeginConnect.
func NewClient(endpoint net.Addr, clock clockwork.Clock, pool *message.Pool, cfg Config) *Connection {
	return newConnection(endpoint, clock, pool, cfg)
}

func (c *Connection) State() State                   { return c.state }
func (c *Connection) Reason() DisconnectReason        { return c.reason }
func (c *Connection) Engine() *reliability.Engine     { return c.engine }
func (c *Connection) SmoothedRTT() time.Duration      { return c.engine.SmoothedRTT() }
func (c *Connection) CorrelationID() xid.ID           { return c.correlationID }
func (c *Connection) SetCanTimeout(canTimeout bool)   { c.canTimeout = canTimeout }
func (c *Connection) SetTimeoutOverride(d time.Duration) {
	c.timeoutOverride = d
	c.refreshTimeoutDeadline()
}

func (c *Connection) timeout() time.Duration {
	if c.timeoutOverride > 0 {
		return c.timeoutOverride
	}
	return c.cfg.TimeoutTime
}

func (c *Connection) refreshTimeoutDeadline() {
	c.timeoutDeadline = c.clock.Now().Add(c.timeout())
}

// BeginConnect transitions a client connection NotConnected → Connecting,
// seeding an exponential backoff for the handshake retry loop. correlationID
// identifies this connect attempt in logs only — it is never put on the
// wire.
func (c *Connection) BeginConnect() (xid.ID, error) {
	if c.state != NotConnected {
		return xid.ID{}, ErrWrongState
	}
	c.state = Connecting
	c.reason = ReasonNone
	c.connectAttempts = 1
	c.correlationID = xid.New()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.HeartbeatInterval
	bo.MaxInterval = c.cfg.HeartbeatInterval * time.Duration(c.cfg.MaxConnectionAttempts)
	c.connectBackoff = bo

	c.retryDeadline = c.clock.Now().Add(c.cfg.HeartbeatInterval)
	return c.correlationID, nil
}

// PollConnectRetry reports whether it is time to resend the Connect
// handshake message. It never blocks — it samples NextBackOff once per
// call and advances retryDeadline, so a tick loop never suspends waiting
// on it. When the attempt budget is exhausted the connection transitions
// to NotConnected with ConnectionFailed and retry is false.
func (c *Connection) PollConnectRetry(now time.Time) (retry bool) {
	if c.state != Connecting || now.Before(c.retryDeadline) {
		return false
	}
	if c.connectAttempts >= c.cfg.MaxConnectionAttempts {
		c.transitionTerminal(ConnectionFailed)
		return false
	}
	c.connectAttempts++
	c.retryDeadline = now.Add(c.connectBackoff.NextBackOff())
	return true
}

// OnWelcome transitions Connecting → Connected on receipt of a Welcome
// message carrying the server-assigned connection id.
func (c *Connection) OnWelcome(id uint16) error {
	if c.state != Connecting {
		return ErrWrongState
	}
	c.ID = id
	c.state = Connected
	c.lastHeartbeat = c.clock.Now()
	c.refreshTimeoutDeadline()
	return nil
}

// Accept transitions a server-side Pending connection to Connected.
func (c *Connection) Accept() error {
	if c.state != Pending {
		return ErrWrongState
	}
	c.state = Connected
	c.lastHeartbeat = c.clock.Now()
	c.refreshTimeoutDeadline()
	return nil
}

// Reject transitions a server-side Pending connection to NotConnected with
// ConnectionRejected.
func (c *Connection) Reject() error {
	if c.state != Pending {
		return ErrWrongState
	}
	c.transitionTerminal(ConnectionRejected)
	return nil
}

// TouchHeartbeat records inbound traffic, keeping the connection alive.
func (c *Connection) TouchHeartbeat(now time.Time) {
	if c.state != Connected {
		return
	}
	c.lastHeartbeat = now
	c.refreshTimeoutDeadline()
}

// SendPing records the send time of an outbound heartbeat ping id so a
// later echo can be converted into an RTT sample.
func (c *Connection) SendPing(now time.Time) uint16 {
	id := c.nextPingID
	c.nextPingID++
	c.pendingPings[id] = now
	return id
}

// ReceivePingEcho converts a heartbeat echo into an RTT sample, folding it
// into the smoothed RTT estimate and the reliability engine's resend
// timer. Returns ErrUnknownPing if id was never sent or already reaped.
func (c *Connection) ReceivePingEcho(id uint16, now time.Time) (time.Duration, error) {
	sentAt, ok := c.pendingPings[id]
	if !ok {
		return 0, ErrUnknownPing
	}
	delete(c.pendingPings, id)

	sample := now.Sub(sentAt)
	if sample < rttFloor {
		sample = rttFloor
	}
	c.engine.RecordRTT(sample)
	return sample, nil
}

// CheckTimeout disconnects the connection with TimedOut if CanTimeout is
// true and the timeout deadline has elapsed without traffic.
func (c *Connection) CheckTimeout(now time.Time) bool {
	if c.state != Connected || !c.canTimeout {
		return false
	}
	if now.Before(c.timeoutDeadline) {
		return false
	}
	c.transitionTerminal(TimedOut)
	return true
}

// Disconnect moves the connection to NotConnected with the given reason.
// Valid from any non-terminal state.
func (c *Connection) Disconnect(reason DisconnectReason) {
	if c.state == NotConnected {
		return
	}
	c.transitionTerminal(reason)
}

func (c *Connection) transitionTerminal(reason DisconnectReason) {
	c.state = NotConnected
	c.reason = reason
}

// IsTerminal reports whether the connection has reached NotConnected.
func (c *Connection) IsTerminal() bool { return c.state == NotConnected }

// Tick advances the reliability engine's retry timers and folds any
// EventPoorConnection into an immediate disconnect, returning the
// remaining delivery/loss events for the caller to dispatch.
func (c *Connection) Tick(resend func(payload []byte)) []reliability.Event {
	c.engine.Tick(resend)
	events := c.engine.DrainEvents()
	if len(events) == 0 {
		return nil
	}
	out := events[:0]
	for _, ev := range events {
		if ev.Kind == reliability.EventPoorConnection {
			if c.cfg.Reliability.Quality.ResilienceWindow > 0 {
				c.transitionTerminal(PoorConnection)
			}
			continue
		}
		out = append(out, ev)
	}
	return out
}
