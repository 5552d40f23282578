package transport

import (
	"errors"
	"net"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
)

// SocketMode selects the IP family a UDPTransport binds to.
type SocketMode int

const (
	IPv4Only SocketMode = iota
	IPv6Only
	Dual
)

func (m SocketMode) network() string {
	switch m {
	case IPv4Only:
		return "udp4"
	case IPv6Only:
		return "udp6"
	default:
		return "udp"
	}
}

// ErrNotStarted is returned by Send before Start has succeeded; Poll is a
// no-op then.
var ErrNotStarted = errors.New("transport: not started")

// pollBudget is the total time a single Poll call may spend reading
// datagrams off the socket.
const pollBudget = 500 * time.Millisecond

// UDPTransport is riptide's default transport. It binds a single local UDP
// socket, for servers and clients alike, and reads datagrams in Poll,
// bounded by pollBudget.
type UDPTransport struct {
	mode    SocketMode
	addr    string
	clock   clockwork.Clock
	handler Handler

	conn    *net.UDPConn
	started bool

	recvBuf []byte
}

// NewUDPTransport builds a transport that Start binds to the local addr
// ("ip:port" or ":port"; a client typically passes ":0" for an ephemeral
// port). It never connects the socket: a client passes Send's destination per-call rather
// than dialing, since riptide connections are demultiplexed by endpoint at
// the peer layer, not by having one socket per remote.
func NewUDPTransport(addr string, mode SocketMode, clock clockwork.Clock, handler Handler) *UDPTransport {
	return &UDPTransport{
		addr:    addr,
		mode:    mode,
		clock:   clock,
		handler: handler,
		recvBuf: make([]byte, 65535),
	}
}

func (t *UDPTransport) Start() error {
	laddr, err := net.ResolveUDPAddr(t.mode.network(), t.addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP(t.mode.network(), laddr)
	if err != nil {
		return err
	}
	tuneSocket(conn)
	t.conn = conn
	t.started = true
	return nil
}

// LocalAddr reports the bound socket address, for tests and for a client
// that needs to know its ephemeral source port.
func (t *UDPTransport) LocalAddr() net.Addr {
	if !t.started {
		return nil
	}
	return t.conn.LocalAddr()
}

func (t *UDPTransport) Stop() error {
	if !t.started {
		return nil
	}
	t.started = false
	return t.conn.Close()
}

func (t *UDPTransport) Send(b []byte, to net.Addr) error {
	if !t.started {
		return ErrNotStarted
	}
	udpAddr, ok := to.(*net.UDPAddr)
	if !ok {
		return errors.New("transport: UDPTransport requires a *net.UDPAddr endpoint")
	}
	_, err := t.conn.WriteToUDP(b, udpAddr)
	return err
}

// Poll drains datagrams until the socket would block or pollBudget is
// spent, dispatching each as an EventDataReceived (the peer layer decides
// whether the sender is new, and so emits Connecting/Connected itself;
// UDP has no connection setup at the transport level). Connection-reset,
// message-size and timed-out socket errors are skipped; any other read
// error stops the transport and is reported as EventDisconnected.
func (t *UDPTransport) Poll() {
	if !t.started {
		return
	}
	deadline := t.clock.Now().Add(pollBudget)
	for {
		if t.clock.Now().After(deadline) {
			return
		}
		t.conn.SetReadDeadline(time.Now().Add(time.Millisecond))
		n, from, err := t.conn.ReadFromUDP(t.recvBuf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return
			}
			if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EMSGSIZE) || errors.Is(err, syscall.ETIMEDOUT) {
				continue
			}
			t.Stop()
			t.handler(Event{Kind: EventDisconnected, Err: err})
			return
		}
		data := make([]byte, n)
		copy(data, t.recvBuf[:n])
		t.handler(Event{Kind: EventDataReceived, From: from, Data: data})
	}
}
