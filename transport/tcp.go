package transport

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
)

// ErrFrameTooLarge caps the 2-byte length prefix's range.
var ErrFrameTooLarge = errors.New("transport: frame exceeds 65535 bytes")

// TCPTransport is an alternate Transport implementation: each message is
// framed with a 2-byte big-endian length prefix and Nagle is disabled.
// One TCPConn is kept per remote endpoint, keyed by its RemoteAddr string
// so Send can address a specific peer the way UDPTransport does.
type TCPTransport struct {
	addr    string
	handler Handler

	mu       sync.Mutex
	listener *net.TCPListener
	conns    map[string]*net.TCPConn
	started  bool
}

func NewTCPTransport(addr string, handler Handler) *TCPTransport {
	return &TCPTransport{addr: addr, handler: handler, conns: make(map[string]*net.TCPConn)}
}

func (t *TCPTransport) Start() error {
	laddr, err := net.ResolveTCPAddr("tcp", t.addr)
	if err != nil {
		return err
	}
	ln, err := net.ListenTCP("tcp", laddr)
	if err != nil {
		return err
	}
	t.listener = ln
	t.started = true
	go t.acceptLoop()
	return nil
}

// LocalAddr reports the bound listener address, for tests. It is not the
// source address of any outgoing connection.
func (t *TCPTransport) LocalAddr() net.Addr {
	if !t.started {
		return nil
	}
	return t.listener.Addr()
}

func (t *TCPTransport) Stop() error {
	if !t.started {
		return nil
	}
	t.started = false
	t.mu.Lock()
	for _, c := range t.conns {
		c.Close()
	}
	t.conns = make(map[string]*net.TCPConn)
	t.mu.Unlock()
	return t.listener.Close()
}

func (t *TCPTransport) acceptLoop() {
	for {
		conn, err := t.listener.AcceptTCP()
		if err != nil {
			return
		}
		conn.SetNoDelay(true)
		key := conn.RemoteAddr().String()
		t.mu.Lock()
		t.conns[key] = conn
		t.mu.Unlock()
		t.handler(Event{Kind: EventConnecting, From: conn.RemoteAddr()})
		go t.readLoop(conn)
	}
}

func (t *TCPTransport) readLoop(conn *net.TCPConn) {
	var lenBuf [2]byte
	for {
		if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
			t.dropConn(conn, err)
			return
		}
		n := binary.BigEndian.Uint16(lenBuf[:])
		body := make([]byte, n)
		if _, err := io.ReadFull(conn, body); err != nil {
			t.dropConn(conn, err)
			return
		}
		t.handler(Event{Kind: EventDataReceived, From: conn.RemoteAddr(), Data: body})
	}
}

func (t *TCPTransport) dropConn(conn *net.TCPConn, err error) {
	key := conn.RemoteAddr().String()
	t.mu.Lock()
	delete(t.conns, key)
	t.mu.Unlock()
	conn.Close()
	t.handler(Event{Kind: EventDisconnected, From: conn.RemoteAddr(), Err: err})
}

// Send writes one length-prefixed frame to the connection matching to's
// address string. Dial is lazy: a client calling Send before any inbound
// connection exists opens one on demand.
func (t *TCPTransport) Send(b []byte, to net.Addr) error {
	if len(b) > 0xFFFF {
		return ErrFrameTooLarge
	}
	conn, err := t.connFor(to)
	if err != nil {
		return err
	}
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(b)))
	if _, err := conn.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = conn.Write(b)
	return err
}

func (t *TCPTransport) connFor(to net.Addr) (*net.TCPConn, error) {
	key := to.String()
	t.mu.Lock()
	conn, ok := t.conns[key]
	t.mu.Unlock()
	if ok {
		return conn, nil
	}

	tcpAddr, ok := to.(*net.TCPAddr)
	if !ok {
		resolved, err := net.ResolveTCPAddr("tcp", to.String())
		if err != nil {
			return nil, err
		}
		tcpAddr = resolved
	}
	dialed, err := net.DialTCP("tcp", nil, tcpAddr)
	if err != nil {
		return nil, err
	}
	dialed.SetNoDelay(true)
	t.mu.Lock()
	t.conns[key] = dialed
	t.mu.Unlock()
	go t.readLoop(dialed)
	return dialed, nil
}

// Poll is a no-op for TCPTransport: frames arrive on a per-connection
// goroutine (readLoop) rather than a single polled socket, since
// net.TCPConn has no non-blocking read-many primitive the way a UDP socket
// does. Events are still delivered through the same Handler.
func (t *TCPTransport) Poll() {}
