// Package peer is riptide's hub layer: Server demultiplexes inbound
// datagrams by endpoint into per-client Connections and drives their
// lifecycle; Client is the single-connection counterpart. Neither type
// owns the algorithms that give reliable/notify their guarantees — that's
// reliability.Engine — or the handshake/heartbeat state machine — that's
// connection.Connection. peer only wires transport bytes to those and
// back, with TCP's per-connection goroutines and UDP's synchronous Poll
// reconciled behind a single buffered event channel so Tick() always
// processes inbound data from one goroutine.
package peer

import (
	"log/slog"
	"net"

	"github.com/jonboulle/clockwork"

	"github.com/ventosilenzioso/riptide/connection"
	"github.com/ventosilenzioso/riptide/handler"
	"github.com/ventosilenzioso/riptide/message"
	"github.com/ventosilenzioso/riptide/metrics"
	"github.com/ventosilenzioso/riptide/reliability"
	"github.com/ventosilenzioso/riptide/transport"
)

// inboundQueueDepth bounds the buffered channel Server/Client drain once
// per Tick. A full queue logs and discards the newest event instead of
// blocking the transport's
// goroutine (TCP's readLoop) or Poll call (UDP) — a slow host application
// sheds load rather than stalling the network layer.
const inboundQueueDepth = 1024

// serverConn pairs a tracked Connection with the peer-layer bookkeeping
// the reliability/connection packages don't need to know about: whether
// this id has ever been announced to other clients (a Pending connection
// rejected before Accept never was).
type serverConn struct {
	conn      *connection.Connection
	announced bool
}

// Server is the server-side Peer Hub.
type Server struct {
	pool  *message.Pool
	cfg   ServerConfig
	clock clockwork.Clock
	log   *slog.Logger
	mx    *metrics.Metrics

	handlers handler.Registry
	relay    map[uint16]bool

	transport transport.Transport
	inbound   chan transport.Event

	ids        *idAllocator
	byEndpoint map[string]*serverConn
	byID       map[uint16]*serverConn
}

// NewServer builds a Server. The returned Server has no transport attached
// yet — construct one with a Handler of s.HandleTransportEvent and pass it
// to Start.
func NewServer(pool *message.Pool, clock clockwork.Clock, cfg ServerConfig) *Server {
	if cfg.MaxClientCount <= 0 {
		cfg.MaxClientCount = DefaultMaxClientCount
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	handlers := cfg.Handlers
	if handlers == nil {
		handlers = handler.NewTable(log)
	}
	relay := make(map[uint16]bool, len(cfg.RelayFilter))
	for _, id := range cfg.RelayFilter {
		relay[id] = true
	}
	return &Server{
		pool:       pool,
		cfg:        cfg,
		clock:      clock,
		log:        log,
		mx:         metrics.New(nil),
		handlers:   handlers,
		relay:      relay,
		inbound:    make(chan transport.Event, inboundQueueDepth),
		ids:        newIDAllocator(cfg.MaxClientCount),
		byEndpoint: make(map[string]*serverConn),
		byID:       make(map[uint16]*serverConn),
	}
}

// SetMetrics swaps in a real Metrics instance (peer.NewServer defaults to
// a disabled one so the core never requires a Prometheus registry).
func (s *Server) SetMetrics(m *metrics.Metrics) {
	if m != nil {
		s.mx = m
	}
}

// HandleTransportEvent is the transport.Handler the caller wires into
// whichever transport.Transport it constructs. It never blocks: a full
// queue drops the event and logs, rather than stalling the transport.
func (s *Server) HandleTransportEvent(ev transport.Event) {
	select {
	case s.inbound <- ev:
	default:
		s.log.Warn("inbound queue full, dropping transport event", "kind", ev.Kind)
	}
}

// Start attaches tr (already constructed with s.HandleTransportEvent as
// its Handler) and starts it, growing the process-wide message pool.
func (s *Server) Start(tr transport.Transport) error {
	s.transport = tr
	s.pool.Grow()
	return tr.Start()
}

// Stop shuts the transport down and disconnects every tracked connection
// with ServerStopped, shrinking the pool back down.
func (s *Server) Stop() error {
	for id := range s.byID {
		s.DisconnectClient(id, connection.ServerStopped, "")
	}
	s.pool.Shrink()
	return s.transport.Stop()
}

// Tick drains inbound transport events, runs the retry/timeout schedulers
// for every connection, and reaps any that became terminal. The server
// never initiates a heartbeat ping — that's client-driven — it only
// echoes one back in handleFromConnection.
func (s *Server) Tick() {
	s.transport.Poll()
	s.drainInbound()

	now := s.clock.Now()
	var terminal []uint16
	for id, sc := range s.byID {
		sc.conn.Tick(func(payload []byte) {
			s.mx.AddReliableRetry()
			s.transport.Send(payload, sc.conn.Endpoint)
		})
		sc.conn.CheckTimeout(now)
		if sc.conn.IsTerminal() {
			terminal = append(terminal, id)
		}
	}
	for _, id := range terminal {
		s.cleanup(id)
	}
	s.mx.SetConnectionsActive(len(s.byID))
}

func (s *Server) drainInbound() {
	n := len(s.inbound)
	for i := 0; i < n; i++ {
		ev := <-s.inbound
		switch ev.Kind {
		case transport.EventDataReceived:
			s.onDatagram(ev.From, ev.Data)
		case transport.EventDisconnected:
			s.onTransportDisconnected(ev)
		}
	}
}

// onTransportDisconnected handles a transport-level failure. UDP reports
// these with no From (the whole socket died); TCP reports them per
// connection. Either way every affected Connection is torn down with
// TransportError.
func (s *Server) onTransportDisconnected(ev transport.Event) {
	if ev.From == nil {
		s.log.Error("transport failed, disconnecting all connections", "error", ev.Err)
		for id := range s.byID {
			s.DisconnectClient(id, connection.TransportError, "")
		}
		return
	}
	sc, ok := s.byEndpoint[ev.From.String()]
	if !ok {
		return
	}
	s.DisconnectClient(sc.conn.ID, connection.TransportError, "")
}

func (s *Server) onDatagram(from net.Addr, data []byte) {
	m, err := s.pool.DecodeRaw(data)
	if err != nil {
		s.log.Warn("dropping oversized datagram", "from", from.String(), "error", err)
		return
	}
	defer m.Release()

	tag, err := m.ConsumeTag()
	if err != nil {
		return
	}

	if tag == message.TagConnect {
		s.handleConnect(from, m)
		return
	}

	sc, ok := s.byEndpoint[from.String()]
	if !ok {
		s.log.Debug("datagram from unknown endpoint, dropping", "from", from.String(), "tag", tag)
		return
	}
	s.handleFromConnection(sc, tag, m)
}

func (s *Server) handleConnect(from net.Addr, m *message.Message) {
	if sc, ok := s.byEndpoint[from.String()]; ok {
		// Client's handshake retry outran (or never saw) our Welcome;
		// resending is harmless since OnWelcome is idempotent at the
		// protocol level (the client ignores a Welcome once Connected).
		if sc.conn.State() == connection.Connected {
			welcome, err := encodeWelcome(s.pool, sc.conn.ID)
			if err == nil {
				s.transport.Send(welcome.Bytes(), from)
				welcome.Release()
			}
		}
		return
	}

	if s.cfg.AcceptLimiter != nil && !s.cfg.AcceptLimiter.Allow() {
		s.reject(from, "rate limited")
		return
	}

	payload, err := decodeConnect(m)
	if err != nil {
		s.reject(from, "malformed connect payload")
		return
	}
	if s.cfg.OnConnect != nil && !s.cfg.OnConnect(from, payload) {
		s.reject(from, "rejected by application")
		return
	}

	id, ok := s.ids.acquire()
	if !ok {
		s.reject(from, "server full")
		return
	}

	conn := connection.NewPending(id, from, s.clock, s.pool, s.cfg.Connection)
	if err := conn.Accept(); err != nil {
		s.ids.release(id)
		s.reject(from, "internal error")
		return
	}

	sc := &serverConn{conn: conn}
	s.byEndpoint[from.String()] = sc
	s.byID[id] = sc

	welcome, err := encodeWelcome(s.pool, id)
	if err == nil {
		s.transport.Send(welcome.Bytes(), from)
		welcome.Release()
	}

	s.broadcastClientConnected(id)
	sc.announced = true
	s.mx.SetConnectionsActive(len(s.byID))
}

func (s *Server) reject(from net.Addr, reason string) {
	m, err := encodeReject(s.pool, reason)
	if err != nil {
		return
	}
	s.transport.Send(m.Bytes(), from)
	m.Release()
}

func (s *Server) handleFromConnection(sc *serverConn, tag message.HeaderTag, m *message.Message) {
	now := s.clock.Now()
	switch tag {
	case message.TagHeartbeat:
		sc.conn.TouchHeartbeat(now)
		isEcho, pingID, _, err := decodeHeartbeat(m)
		if err != nil {
			return
		}
		if isEcho {
			sc.conn.ReceivePingEcho(pingID, now)
			return
		}
		echo, err := encodeHeartbeat(s.pool, true, pingID, 0)
		if err != nil {
			return
		}
		s.transport.Send(echo.Bytes(), sc.conn.Endpoint)
		echo.Release()

	case message.TagDisconnect:
		reason, _, err := decodeDisconnect(m)
		if err != nil {
			reason = connection.Disconnected
		}
		sc.conn.Disconnect(reason)
		s.cleanup(sc.conn.ID)

	case message.TagAck:
		last, bitfield, err := decodeAck(m)
		if err == nil {
			sc.conn.Engine().HandleAck(last, bitfield)
		}

	case message.TagAckExtra:
		last, bitfield, extra, err := decodeAckExtra(m)
		if err == nil {
			sc.conn.Engine().HandleAckExtra(last, bitfield, extra)
		}

	case message.TagReliable, message.TagReliableAutoRelay:
		sc.conn.TouchHeartbeat(now)
		seq, err := decodeReliableSeq(m)
		if err != nil {
			return
		}
		deliver, ack := sc.conn.Engine().HandleReliable(seq)
		s.sendAck(sc, ack)
		if !deliver {
			return
		}
		id, err := m.HeaderID()
		if err != nil {
			return
		}
		s.deliverOrRelay(sc, tag == message.TagReliableAutoRelay, id, m, message.Reliable)

	case message.TagUnreliable, message.TagUnreliableAutoRelay:
		sc.conn.TouchHeartbeat(now)
		id, err := m.HeaderID()
		if err != nil {
			return
		}
		s.deliverOrRelay(sc, tag == message.TagUnreliableAutoRelay, id, m, message.Unreliable)

	case message.TagNotify:
		sc.conn.TouchHeartbeat(now)
		seq, remoteLast, remoteBitfield, err := decodeNotifyHeader(m)
		if err != nil {
			return
		}
		deliver := sc.conn.Engine().HandleNotify(seq, remoteLast, remoteBitfield)
		if !deliver {
			return
		}
		id, err := m.HeaderID()
		if err != nil {
			return
		}
		s.handlers.Dispatch(id, m, sc.conn)

	default:
		s.log.Debug("unexpected tag from connected client", "id", sc.conn.ID, "tag", tag)
	}
}

func (s *Server) sendAck(sc *serverConn, ack reliability.AckDecision) {
	if !ack.Send {
		return
	}
	var m *message.Message
	var err error
	if ack.Extra {
		m, err = encodeAckExtra(s.pool, ack.Last, ack.Bitfield, ack.ExtraSeq)
	} else {
		m, err = encodeAck(s.pool, ack.Last, ack.Bitfield)
	}
	if err != nil {
		return
	}
	s.transport.Send(m.Bytes(), sc.conn.Endpoint)
	m.Release()
}

// deliverOrRelay dispatches id/payload to the local handler, or — if tag
// carried the auto-relay marker and id is in the relay filter — forwards
// the payload verbatim to every other connected client instead. Relaying
// never also dispatches locally on the sender's server: the filter is a
// pure pass-through for multiplayer fan-out.
func (s *Server) deliverOrRelay(sender *serverConn, autoRelay bool, id uint16, m *message.Message, mode message.SendMode) {
	if !autoRelay || !s.relay[id] {
		s.handlers.Dispatch(id, m, sender.conn)
		return
	}
	payload, err := m.RemainingBytes()
	if err != nil {
		return
	}
	for otherID, other := range s.byID {
		if otherID == sender.conn.ID || other.conn.State() != connection.Connected {
			continue
		}
		s.sendPrepared(other, mode, id, payload)
	}
}

func (s *Server) sendPrepared(sc *serverConn, mode message.SendMode, id uint16, payload []byte) {
	fill := func(mm *message.Message) error { return mm.AddRawBytes(payload) }
	switch mode {
	case message.Reliable:
		_, wire, err := sc.conn.Engine().PrepareReliable(id, fill)
		if err != nil {
			return
		}
		s.transport.Send(wire, sc.conn.Endpoint)
	default:
		mm, err := sc.conn.Engine().PrepareUnreliable(id, fill)
		if err != nil {
			return
		}
		s.transport.Send(mm.Bytes(), sc.conn.Endpoint)
		mm.Release()
	}
}

func (s *Server) broadcastClientConnected(id uint16) {
	m, err := encodeClientConnected(s.pool, id)
	if err != nil {
		return
	}
	defer m.Release()
	for otherID, sc := range s.byID {
		if otherID == id {
			continue
		}
		s.transport.Send(m.Bytes(), sc.conn.Endpoint)
	}
}

func (s *Server) broadcastClientDisconnected(id uint16) {
	m, err := encodeClientDisconnected(s.pool, id)
	if err != nil {
		return
	}
	defer m.Release()
	for _, sc := range s.byID {
		s.transport.Send(m.Bytes(), sc.conn.Endpoint)
	}
}

func (s *Server) cleanup(id uint16) {
	sc, ok := s.byID[id]
	if !ok {
		return
	}
	delete(s.byID, id)
	delete(s.byEndpoint, sc.conn.Endpoint.String())
	s.ids.release(id)
	s.mx.SetConnectionsActive(len(s.byID))
	if sc.announced {
		s.broadcastClientDisconnected(id)
	}
}

// SendReliable/SendUnreliable/SendNotify build and transmit a user message
// to the connection tracked under id. fill writes the payload after the
// header; see reliability.Engine's Prepare* methods for the contract.
func (s *Server) SendUnreliable(id uint16, msgID uint16, fill func(*message.Message) error) error {
	sc, ok := s.byID[id]
	if !ok {
		return ErrUnknownConnection
	}
	m, err := sc.conn.Engine().PrepareUnreliable(msgID, fill)
	if err != nil {
		return err
	}
	defer m.Release()
	return s.transport.Send(m.Bytes(), sc.conn.Endpoint)
}

func (s *Server) SendReliable(id uint16, msgID uint16, fill func(*message.Message) error) error {
	sc, ok := s.byID[id]
	if !ok {
		return ErrUnknownConnection
	}
	_, wire, err := sc.conn.Engine().PrepareReliable(msgID, fill)
	if err != nil {
		return err
	}
	return s.transport.Send(wire, sc.conn.Endpoint)
}

func (s *Server) SendNotify(id uint16, msgID uint16, tag any, fill func(*message.Message) error) error {
	sc, ok := s.byID[id]
	if !ok {
		return ErrUnknownConnection
	}
	_, wire, err := sc.conn.Engine().PrepareNotify(msgID, fill, tag)
	if err != nil {
		return err
	}
	return s.transport.Send(wire, sc.conn.Endpoint)
}

// SendToAll sends the same reliable/unreliable message to every connected
// client except exceptID (pass 0 to exclude no one — 0 is never a valid
// assigned id).
func (s *Server) SendToAll(mode message.SendMode, msgID uint16, exceptID uint16, fill func(*message.Message) error) {
	for id, sc := range s.byID {
		if id == exceptID || sc.conn.State() != connection.Connected {
			continue
		}
		switch mode {
		case message.Reliable:
			s.SendReliable(id, msgID, fill)
		default:
			s.SendUnreliable(id, msgID, fill)
		}
	}
}

// DisconnectClient tears down the connection tracked under id, notifying
// it with a Disconnect datagram before the local side forgets it.
func (s *Server) DisconnectClient(id uint16, reason connection.DisconnectReason, msg string) error {
	sc, ok := s.byID[id]
	if !ok {
		return ErrUnknownConnection
	}
	m, err := encodeDisconnect(s.pool, reason, msg)
	if err == nil {
		s.transport.Send(m.Bytes(), sc.conn.Endpoint)
		m.Release()
	}
	sc.conn.Disconnect(reason)
	s.cleanup(id)
	return nil
}

// ConnectionCount reports the number of tracked (Pending or Connected)
// connections.
func (s *Server) ConnectionCount() int { return len(s.byID) }

// Connection returns the tracked connection for id, if any.
func (s *Server) Connection(id uint16) (*connection.Connection, bool) {
	sc, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return sc.conn, true
}
