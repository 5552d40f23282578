package transport

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUDPTransportRoundTrip(t *testing.T) {
	received := make(chan Event, 1)
	serverClock := clockwork.NewFakeClockAt(time.Now())
	server := NewUDPTransport("127.0.0.1:0", IPv4Only, serverClock, func(ev Event) {
		received <- ev
	})
	require.NoError(t, server.Start())
	defer server.Stop()

	clientClock := clockwork.NewFakeClockAt(time.Now())
	client := NewUDPTransport("127.0.0.1:0", IPv4Only, clientClock, func(Event) {})
	require.NoError(t, client.Start())
	defer client.Stop()

	require.NoError(t, client.Send([]byte("hello"), server.LocalAddr()))

	// Poll walks its own budget against serverClock; advance it enough to
	// cover the short real-time read-deadline loop inside Poll.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		serverClock.Advance(time.Millisecond)
		server.Poll()
		select {
		case ev := <-received:
			assert.Equal(t, EventDataReceived, ev.Kind)
			assert.Equal(t, "hello", string(ev.Data))
			return
		default:
		}
	}
	t.Fatal("timed out waiting for datagram")
}

func TestUDPTransportSendBeforeStartFails(t *testing.T) {
	transport := NewUDPTransport("127.0.0.1:0", IPv4Only, clockwork.NewFakeClock(), func(Event) {})
	err := transport.Send([]byte("x"), &transportAddrStub{})
	assert.ErrorIs(t, err, ErrNotStarted)
}

type transportAddrStub struct{}

func (transportAddrStub) Network() string { return "udp" }
func (transportAddrStub) String() string  { return "stub" }
