package peer

import (
	"log/slog"
	"net"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ventosilenzioso/riptide/connection"
	"github.com/ventosilenzioso/riptide/handler"
	"github.com/ventosilenzioso/riptide/message"
	"github.com/ventosilenzioso/riptide/metrics"
	"github.com/ventosilenzioso/riptide/reliability"
	"github.com/ventosilenzioso/riptide/transport"
)

// Client is the single-connection Peer Hub counterpart to Server. It owns
// exactly one Connection, dialed at Connect and torn down on Disconnect or
// timeout.
type Client struct {
	pool  *message.Pool
	cfg   ClientConfig
	clock clockwork.Clock
	log   *slog.Logger
	mx    *metrics.Metrics

	handlers handler.Registry

	transport transport.Transport
	inbound   chan transport.Event

	server       net.Addr
	conn         *connection.Connection
	lastPingSent time.Time
}

// NewClient builds a Client. The returned Client has no transport attached
// yet — construct one with a Handler of c.HandleTransportEvent and pass it
// to Start.
func NewClient(pool *message.Pool, clock clockwork.Clock, cfg ClientConfig) *Client {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	handlers := cfg.Handlers
	if handlers == nil {
		handlers = handler.NewTable(log)
	}
	return &Client{
		pool:     pool,
		cfg:      cfg,
		clock:    clock,
		log:      log,
		mx:       metrics.New(nil),
		handlers: handlers,
		inbound:  make(chan transport.Event, inboundQueueDepth),
	}
}

// SetMetrics swaps in a real Metrics instance (NewClient defaults to a
// disabled one so the core never requires a Prometheus registry).
func (c *Client) SetMetrics(m *metrics.Metrics) {
	if m != nil {
		c.mx = m
	}
}

func (c *Client) HandleTransportEvent(ev transport.Event) {
	select {
	case c.inbound <- ev:
	default:
		c.log.Warn("inbound queue full, dropping transport event", "kind", ev.Kind)
	}
}

// Start attaches tr (already constructed with c.HandleTransportEvent as its
// Handler) and starts it.
func (c *Client) Start(tr transport.Transport) error {
	c.transport = tr
	return tr.Start()
}

// Stop closes the transport, disconnecting first if still connected.
func (c *Client) Stop() error {
	if c.conn != nil && !c.conn.IsTerminal() {
		c.sendDisconnect(connection.Disconnected, "")
	}
	return c.transport.Stop()
}

// Connect begins the handshake to server, resetting any previous
// connection state. Returns ErrAlreadyConnected if a connect/connected
// session is already in progress.
func (c *Client) Connect(server net.Addr, payload []byte) error {
	if c.conn != nil && !c.conn.IsTerminal() {
		return ErrAlreadyConnected
	}
	c.server = server
	c.conn = connection.NewClient(server, c.clock, c.pool, c.cfg.Connection)
	if _, err := c.conn.BeginConnect(); err != nil {
		return err
	}
	return c.sendConnect(payload)
}

func (c *Client) sendConnect(payload []byte) error {
	m, err := encodeConnect(c.pool, payload)
	if err != nil {
		return err
	}
	defer m.Release()
	return c.transport.Send(m.Bytes(), c.server)
}

// State reports the current connection state, or NotConnected if Connect
// was never called.
func (c *Client) State() connection.State {
	if c.conn == nil {
		return connection.NotConnected
	}
	return c.conn.State()
}

// Reason reports the most recent terminal disconnect reason.
func (c *Client) Reason() connection.DisconnectReason {
	if c.conn == nil {
		return connection.ReasonNone
	}
	return c.conn.Reason()
}

// ConnectionID reports the server-assigned id once Connected.
func (c *Client) ConnectionID() uint16 {
	if c.conn == nil {
		return 0
	}
	return c.conn.ID
}

// SmoothedRTT reports the current round-trip estimate sampled from
// heartbeat echoes, or 0 before the first one arrives.
func (c *Client) SmoothedRTT() time.Duration {
	if c.conn == nil {
		return 0
	}
	return c.conn.SmoothedRTT()
}

// Tick drains inbound transport events, retries the handshake or
// heartbeat, and advances the reliability engine's retry timers.
func (c *Client) Tick() {
	c.transport.Poll()
	c.drainInbound()

	if c.conn == nil {
		return
	}
	now := c.clock.Now()

	if c.conn.State() == connection.Connecting {
		if c.conn.PollConnectRetry(now) {
			c.sendConnect(nil)
		}
		return
	}

	if c.conn.State() != connection.Connected {
		return
	}

	if c.lastPingSent.IsZero() || now.Sub(c.lastPingSent) >= c.cfg.Connection.HeartbeatInterval {
		c.sendPing(now)
	}

	c.conn.Tick(func(payload []byte) {
		c.mx.AddReliableRetry()
		c.transport.Send(payload, c.server)
	})
	c.conn.CheckTimeout(now)
}

func (c *Client) sendPing(now time.Time) {
	pingID := c.conn.SendPing(now)
	rtt := uint32(c.conn.SmoothedRTT() / time.Millisecond)
	m, err := encodeHeartbeat(c.pool, false, pingID, rtt)
	if err != nil {
		return
	}
	c.transport.Send(m.Bytes(), c.server)
	m.Release()
	c.lastPingSent = now
}

func (c *Client) drainInbound() {
	n := len(c.inbound)
	for i := 0; i < n; i++ {
		ev := <-c.inbound
		switch ev.Kind {
		case transport.EventDataReceived:
			c.onDatagram(ev.Data)
		case transport.EventDisconnected:
			if c.conn != nil {
				c.conn.Disconnect(connection.TransportError)
			}
		}
	}
}

func (c *Client) onDatagram(data []byte) {
	m, err := c.pool.DecodeRaw(data)
	if err != nil {
		c.log.Warn("dropping oversized datagram", "error", err)
		return
	}
	defer m.Release()

	tag, err := m.ConsumeTag()
	if err != nil {
		return
	}

	switch tag {
	case message.TagWelcome:
		c.handleWelcome(m)
	case message.TagReject:
		reason, _ := decodeReject(m)
		c.log.Info("connect rejected", "reason", reason)
		if c.conn != nil {
			c.conn.Disconnect(connection.ConnectionRejected)
		}
	default:
		if c.conn == nil || c.conn.State() != connection.Connected {
			return
		}
		c.handleConnected(tag, m)
	}
}

func (c *Client) handleWelcome(m *message.Message) {
	if c.conn == nil || c.conn.State() != connection.Connecting {
		return
	}
	id, err := decodeWelcome(m)
	if err != nil {
		return
	}
	c.conn.OnWelcome(id)
}

func (c *Client) handleConnected(tag message.HeaderTag, m *message.Message) {
	now := c.clock.Now()
	switch tag {
	case message.TagHeartbeat:
		c.conn.TouchHeartbeat(now)
		isEcho, pingID, _, err := decodeHeartbeat(m)
		if err != nil {
			return
		}
		if isEcho {
			c.conn.ReceivePingEcho(pingID, now)
			return
		}
		echo, err := encodeHeartbeat(c.pool, true, pingID, 0)
		if err != nil {
			return
		}
		c.transport.Send(echo.Bytes(), c.server)
		echo.Release()

	case message.TagDisconnect:
		reason, _, err := decodeDisconnect(m)
		if err != nil {
			reason = connection.Disconnected
		}
		c.conn.Disconnect(reason)

	case message.TagAck:
		last, bitfield, err := decodeAck(m)
		if err == nil {
			c.conn.Engine().HandleAck(last, bitfield)
		}

	case message.TagAckExtra:
		last, bitfield, extra, err := decodeAckExtra(m)
		if err == nil {
			c.conn.Engine().HandleAckExtra(last, bitfield, extra)
		}

	case message.TagReliable, message.TagReliableAutoRelay:
		c.conn.TouchHeartbeat(now)
		seq, err := decodeReliableSeq(m)
		if err != nil {
			return
		}
		deliver, ack := c.conn.Engine().HandleReliable(seq)
		c.sendAck(ack)
		if !deliver {
			return
		}
		id, err := m.HeaderID()
		if err != nil {
			return
		}
		c.handlers.Dispatch(id, m, c.conn)

	case message.TagUnreliable, message.TagUnreliableAutoRelay:
		c.conn.TouchHeartbeat(now)
		id, err := m.HeaderID()
		if err != nil {
			return
		}
		c.handlers.Dispatch(id, m, c.conn)

	case message.TagNotify:
		c.conn.TouchHeartbeat(now)
		seq, remoteLast, remoteBitfield, err := decodeNotifyHeader(m)
		if err != nil {
			return
		}
		if !c.conn.Engine().HandleNotify(seq, remoteLast, remoteBitfield) {
			return
		}
		id, err := m.HeaderID()
		if err != nil {
			return
		}
		c.handlers.Dispatch(id, m, c.conn)

	case message.TagClientConnected:
		id, err := decodePeerID(m)
		if err == nil {
			c.log.Debug("peer connected", "id", id)
		}

	case message.TagClientDisconnected:
		id, err := decodePeerID(m)
		if err == nil {
			c.log.Debug("peer disconnected", "id", id)
		}

	default:
		c.log.Debug("unexpected tag from server", "tag", tag)
	}
}

func (c *Client) sendAck(ack reliability.AckDecision) {
	if !ack.Send {
		return
	}
	var m *message.Message
	var err error
	if ack.Extra {
		m, err = encodeAckExtra(c.pool, ack.Last, ack.Bitfield, ack.ExtraSeq)
	} else {
		m, err = encodeAck(c.pool, ack.Last, ack.Bitfield)
	}
	if err != nil {
		return
	}
	c.transport.Send(m.Bytes(), c.server)
	m.Release()
}

func (c *Client) sendDisconnect(reason connection.DisconnectReason, msg string) {
	m, err := encodeDisconnect(c.pool, reason, msg)
	if err != nil {
		return
	}
	c.transport.Send(m.Bytes(), c.server)
	m.Release()
	c.conn.Disconnect(reason)
}

// Disconnect gracefully ends the current session, notifying the server.
func (c *Client) Disconnect() {
	if c.conn == nil || c.conn.IsTerminal() {
		return
	}
	c.sendDisconnect(connection.Disconnected, "")
}

// SendUnreliable/SendReliable/SendNotify build and transmit a user message
// to the server. Returns ErrNotStarted if Connect was never called.
func (c *Client) SendUnreliable(msgID uint16, fill func(*message.Message) error) error {
	if c.conn == nil {
		return ErrNotStarted
	}
	m, err := c.conn.Engine().PrepareUnreliable(msgID, fill)
	if err != nil {
		return err
	}
	defer m.Release()
	return c.transport.Send(m.Bytes(), c.server)
}

func (c *Client) SendReliable(msgID uint16, fill func(*message.Message) error) error {
	if c.conn == nil {
		return ErrNotStarted
	}
	_, wire, err := c.conn.Engine().PrepareReliable(msgID, fill)
	if err != nil {
		return err
	}
	return c.transport.Send(wire, c.server)
}

func (c *Client) SendNotify(msgID uint16, tag any, fill func(*message.Message) error) error {
	if c.conn == nil {
		return ErrNotStarted
	}
	_, wire, err := c.conn.Engine().PrepareNotify(msgID, fill, tag)
	if err != nil {
		return err
	}
	return c.transport.Send(wire, c.server)
}

// SendUnreliableRelay/SendReliableRelay behave like SendUnreliable/
// SendReliable but mark the datagram for the server's relay filter,
// asking the server to forward it to every other connected client
// instead of dispatching it to its own handler table. Whether it is
// actually relayed still depends on the server's ServerConfig.RelayFilter
// containing msgID.
func autoRelayFill(fill func(*message.Message) error) func(*message.Message) error {
	return func(m *message.Message) error {
		if err := m.MarkAutoRelay(); err != nil {
			return err
		}
		if fill != nil {
			return fill(m)
		}
		return nil
	}
}

func (c *Client) SendUnreliableRelay(msgID uint16, fill func(*message.Message) error) error {
	return c.SendUnreliable(msgID, autoRelayFill(fill))
}

func (c *Client) SendReliableRelay(msgID uint16, fill func(*message.Message) error) error {
	return c.SendReliable(msgID, autoRelayFill(fill))
}
