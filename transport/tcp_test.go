package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPTransportRoundTrip(t *testing.T) {
	received := make(chan Event, 1)
	server := NewTCPTransport("127.0.0.1:0", func(ev Event) {
		if ev.Kind == EventDataReceived {
			received <- ev
		}
	})
	require.NoError(t, server.Start())
	defer server.Stop()

	client := NewTCPTransport("127.0.0.1:0", func(Event) {})
	require.NoError(t, client.Start())
	defer client.Stop()

	require.NoError(t, client.Send([]byte("framed payload"), server.LocalAddr()))

	select {
	case ev := <-received:
		assert.Equal(t, "framed payload", string(ev.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for framed payload")
	}
}

func TestTCPTransportRejectsOversizedFrame(t *testing.T) {
	client := NewTCPTransport("127.0.0.1:0", func(Event) {})
	big := make([]byte, 0x10000)
	err := client.Send(big, &transportAddrStub{})
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}
