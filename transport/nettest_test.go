package transport

import (
	"net"
	"testing"

	"golang.org/x/net/nettest"
)

// TestUDPConnConformance runs the standard library conformance suite
// against a connected UDP pipe, the same primitive UDPTransport builds on
// top of. It exists to catch any Go runtime/platform UDP regression that
// would otherwise surface as a confusing failure deep in the reliability
// engine's tests instead of here.
func TestUDPConnConformance(t *testing.T) {
	nettest.TestConn(t, func() (c1, c2 net.Conn, stop func(), err error) {
		a, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
		if err != nil {
			return nil, nil, nil, err
		}
		b, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
		if err != nil {
			a.Close()
			return nil, nil, nil, err
		}
		ca, err := net.DialUDP("udp4", nil, b.LocalAddr().(*net.UDPAddr))
		if err != nil {
			a.Close()
			b.Close()
			return nil, nil, nil, err
		}
		cb, err := net.DialUDP("udp4", nil, a.LocalAddr().(*net.UDPAddr))
		if err != nil {
			a.Close()
			b.Close()
			ca.Close()
			return nil, nil, nil, err
		}
		a.Close()
		b.Close()
		stop = func() {
			ca.Close()
			cb.Close()
		}
		return ca, cb, stop, nil
	})
}
