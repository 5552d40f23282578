package peer

import (
	"net"
	"sync"

	"github.com/ventosilenzioso/riptide/transport"
)

// addrStub is a net.Addr with an identity distinct from any real socket
// address, keyed by name, for addressing fakeTransports in unit tests.
type addrStub struct{ name string }

func (a addrStub) Network() string { return "fake" }
func (a addrStub) String() string  { return a.name }

// fakeNetwork is a shared address->handler registry so a single
// fakeTransport (one per Server/Client, exactly like one UDP socket can
// talk to many remote addresses) can deliver to any other endpoint
// registered on it, not just a single hardcoded peer. This mirrors
// UDPTransport's one-socket-many-remotes shape instead of TCPTransport's
// one-conn-per-remote shape, since peer.Server is written against the
// former.
type fakeNetwork struct {
	mu       sync.Mutex
	handlers map[string]transport.Handler
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{handlers: make(map[string]transport.Handler)}
}

func (n *fakeNetwork) register(addr addrStub, h transport.Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[addr.name] = h
}

func (n *fakeNetwork) deliver(to net.Addr, ev transport.Event) bool {
	n.mu.Lock()
	h, ok := n.handlers[to.String()]
	n.mu.Unlock()
	if !ok {
		return false
	}
	h(ev)
	return true
}

// fakeTransport is a transport.Transport backed by a fakeNetwork, for
// deterministic peer package tests. It is not a candidate production
// transport (no real socket, no Poll budget, no relay framing).
type fakeTransport struct {
	self addrStub
	net  *fakeNetwork

	// drop, when non-nil, is consulted per outbound Send; returning true
	// discards the datagram instead of delivering it, simulating loss.
	drop func(b []byte) bool
}

func newFakeTransport(net *fakeNetwork, name string, handler transport.Handler) *fakeTransport {
	self := addrStub{name: name}
	net.register(self, handler)
	return &fakeTransport{self: self, net: net}
}

func (f *fakeTransport) Start() error { return nil }
func (f *fakeTransport) Stop() error  { return nil }

func (f *fakeTransport) Send(b []byte, to net.Addr) error {
	if f.drop != nil && f.drop(b) {
		return nil
	}
	cp := append([]byte(nil), b...)
	f.net.deliver(to, transport.Event{Kind: transport.EventDataReceived, From: f.self, Data: cp})
	return nil
}

func (f *fakeTransport) Poll() {}
