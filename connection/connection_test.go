package connection

import (
	"net"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ventosilenzioso/riptide/message"
	"github.com/ventosilenzioso/riptide/reliability"
)

func testAddr() net.Addr {
	return &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9001}
}

func TestClientHandshakeHappyPath(t *testing.T) {
	clk := clockwork.NewFakeClock()
	pool := message.NewPool(message.DefaultCapacityBytes)
	c := NewClient(testAddr(), clk, pool, DefaultConfig())

	assert.Equal(t, NotConnected, c.State())
	_, err := c.BeginConnect()
	require.NoError(t, err)
	assert.Equal(t, Connecting, c.State())

	require.NoError(t, c.OnWelcome(7))
	assert.Equal(t, Connected, c.State())
	assert.Equal(t, uint16(7), c.ID)
}

func TestClientHandshakeExhaustsRetries(t *testing.T) {
	clk := clockwork.NewFakeClock()
	pool := message.NewPool(message.DefaultCapacityBytes)
	cfg := DefaultConfig()
	cfg.MaxConnectionAttempts = 3
	c := NewClient(testAddr(), clk, pool, cfg)

	_, err := c.BeginConnect()
	require.NoError(t, err)

	for i := 0; i < 10 && c.State() == Connecting; i++ {
		clk.Advance(cfg.HeartbeatInterval * 2)
		c.PollConnectRetry(clk.Now())
	}
	assert.Equal(t, NotConnected, c.State())
	assert.Equal(t, ConnectionFailed, c.Reason())
}

func TestServerAcceptAndReject(t *testing.T) {
	clk := clockwork.NewFakeClock()
	pool := message.NewPool(message.DefaultCapacityBytes)

	c := NewPending(1, testAddr(), clk, pool, DefaultConfig())
	assert.Equal(t, Pending, c.State())
	require.NoError(t, c.Accept())
	assert.Equal(t, Connected, c.State())

	c2 := NewPending(2, testAddr(), clk, pool, DefaultConfig())
	require.NoError(t, c2.Reject())
	assert.Equal(t, NotConnected, c2.State())
	assert.Equal(t, ConnectionRejected, c2.Reason())
}

func TestHeartbeatRTTSmoothing(t *testing.T) {
	clk := clockwork.NewFakeClock()
	pool := message.NewPool(message.DefaultCapacityBytes)
	c := NewPending(1, testAddr(), clk, pool, DefaultConfig())
	require.NoError(t, c.Accept())

	id := c.SendPing(clk.Now())
	clk.Advance(100 * time.Millisecond)
	sample, err := c.ReceivePingEcho(id, clk.Now())
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, sample)
	assert.Equal(t, 100*time.Millisecond, c.SmoothedRTT())

	id2 := c.SendPing(clk.Now())
	clk.Advance(200 * time.Millisecond)
	_, err = c.ReceivePingEcho(id2, clk.Now())
	require.NoError(t, err)
	want := time.Duration(float64(100*time.Millisecond)*0.7 + float64(200*time.Millisecond)*0.3)
	assert.Equal(t, want, c.SmoothedRTT())
}

func TestReceivePingEchoUnknownID(t *testing.T) {
	clk := clockwork.NewFakeClock()
	pool := message.NewPool(message.DefaultCapacityBytes)
	c := NewPending(1, testAddr(), clk, pool, DefaultConfig())
	require.NoError(t, c.Accept())

	_, err := c.ReceivePingEcho(99, clk.Now())
	assert.ErrorIs(t, err, ErrUnknownPing)
}

func TestCheckTimeoutRespectsCanTimeoutOverride(t *testing.T) {
	clk := clockwork.NewFakeClock()
	pool := message.NewPool(message.DefaultCapacityBytes)
	cfg := DefaultConfig()
	cfg.TimeoutTime = 50 * time.Millisecond
	c := NewPending(1, testAddr(), clk, pool, cfg)
	require.NoError(t, c.Accept())
	c.SetCanTimeout(false)

	clk.Advance(time.Second)
	assert.False(t, c.CheckTimeout(clk.Now()))
	assert.Equal(t, Connected, c.State())

	c.SetCanTimeout(true)
	c.TouchHeartbeat(clk.Now())
	clk.Advance(time.Second)
	assert.True(t, c.CheckTimeout(clk.Now()))
	assert.Equal(t, NotConnected, c.State())
	assert.Equal(t, TimedOut, c.Reason())
}

func TestTickSurfacesDeliveryEventsAndAutoDisconnectsOnPoorConnection(t *testing.T) {
	clk := clockwork.NewFakeClock()
	pool := message.NewPool(message.DefaultCapacityBytes)
	cfg := DefaultConfig()
	cfg.Reliability.MaxSendAttempts = 1
	cfg.Reliability.Quality.MaxAvgAttempts = 0.5
	cfg.Reliability.Quality.ResilienceWindow = 1
	cfg.Reliability.Quality.Alpha = 1
	c := NewPending(1, testAddr(), clk, pool, cfg)
	require.NoError(t, c.Accept())

	_, _, err := c.Engine().PrepareReliable(1, func(m *message.Message) error { return m.AddU8(1) })
	require.NoError(t, err)

	clk.Advance(cfg.Reliability.DefaultRetryInterval + time.Millisecond)
	events := c.Tick(func(payload []byte) {})
	require.Len(t, events, 1)
	assert.Equal(t, reliability.EventReliableDropped, events[0].Kind)

	assert.Equal(t, NotConnected, c.State())
	assert.Equal(t, PoorConnection, c.Reason())
}
