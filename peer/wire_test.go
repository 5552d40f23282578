package peer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/ventosilenzioso/riptide/connection"
	"github.com/ventosilenzioso/riptide/message"
	"github.com/ventosilenzioso/riptide/reliability"
)

// ackWire/notifyHeaderWire/heartbeatWire bundle a control message's decoded
// fields into a plain struct so round-trip tests can compare the whole
// shape in one cmp.Diff rather than field by field.
type ackWire struct {
	Last     reliability.SequenceID
	Bitfield uint16
}

type ackExtraWire struct {
	Last     reliability.SequenceID
	Bitfield uint16
	Extra    reliability.SequenceID
}

type heartbeatWire struct {
	IsEcho            bool
	PingID            uint16
	ReportedRTTMillis uint32
}

type disconnectWire struct {
	Reason connection.DisconnectReason
	Msg    string
}

type notifyHeaderWire struct {
	Seq            reliability.SequenceID
	RemoteLast     reliability.SequenceID
	RemoteBitfield uint16
}

func TestConnectRoundTripsPayload(t *testing.T) {
	pool := message.NewPool(message.DefaultCapacityBytes)
	want := []byte{1, 2, 3, 4}

	m, err := encodeConnect(pool, want)
	require.NoError(t, err)
	wire := append([]byte(nil), m.Bytes()...)
	m.Release()

	m2, err := pool.DecodeRaw(wire)
	require.NoError(t, err)
	defer m2.Release()
	_, err = m2.ConsumeTag()
	require.NoError(t, err)
	got, err := decodeConnect(m2)
	require.NoError(t, err)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("connect payload mismatch (-want +got):\n%s", diff)
	}
}

func TestAckRoundTrip(t *testing.T) {
	pool := message.NewPool(message.DefaultCapacityBytes)
	want := ackWire{Last: 42, Bitfield: 0xBEEF}

	m, err := encodeAck(pool, want.Last, want.Bitfield)
	require.NoError(t, err)
	wire := append([]byte(nil), m.Bytes()...)
	m.Release()

	m2, err := pool.DecodeRaw(wire)
	require.NoError(t, err)
	defer m2.Release()
	_, err = m2.ConsumeTag()
	require.NoError(t, err)
	last, bitfield, err := decodeAck(m2)
	require.NoError(t, err)
	got := ackWire{Last: last, Bitfield: bitfield}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ack mismatch (-want +got):\n%s", diff)
	}
}

func TestAckExtraRoundTrip(t *testing.T) {
	pool := message.NewPool(message.DefaultCapacityBytes)
	want := ackExtraWire{Last: 100, Bitfield: 0x0F0F, Extra: 7}

	m, err := encodeAckExtra(pool, want.Last, want.Bitfield, want.Extra)
	require.NoError(t, err)
	wire := append([]byte(nil), m.Bytes()...)
	m.Release()

	m2, err := pool.DecodeRaw(wire)
	require.NoError(t, err)
	defer m2.Release()
	_, err = m2.ConsumeTag()
	require.NoError(t, err)
	last, bitfield, extra, err := decodeAckExtra(m2)
	require.NoError(t, err)
	got := ackExtraWire{Last: last, Bitfield: bitfield, Extra: extra}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ack-extra mismatch (-want +got):\n%s", diff)
	}
}

func TestHeartbeatRoundTrip(t *testing.T) {
	pool := message.NewPool(message.DefaultCapacityBytes)
	cases := []heartbeatWire{
		{IsEcho: false, PingID: 1, ReportedRTTMillis: 0},
		{IsEcho: true, PingID: 65535, ReportedRTTMillis: 12345},
	}
	for _, want := range cases {
		m, err := encodeHeartbeat(pool, want.IsEcho, want.PingID, want.ReportedRTTMillis)
		require.NoError(t, err)
		wire := append([]byte(nil), m.Bytes()...)
		m.Release()

		m2, err := pool.DecodeRaw(wire)
		require.NoError(t, err)
		_, err = m2.ConsumeTag()
		require.NoError(t, err)
		isEcho, pingID, rtt, err := decodeHeartbeat(m2)
		require.NoError(t, err)
		m2.Release()
		got := heartbeatWire{IsEcho: isEcho, PingID: pingID, ReportedRTTMillis: rtt}

		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("heartbeat mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestDisconnectRoundTrip(t *testing.T) {
	pool := message.NewPool(message.DefaultCapacityBytes)
	want := disconnectWire{Reason: connection.Kicked, Msg: "rule violation"}

	m, err := encodeDisconnect(pool, want.Reason, want.Msg)
	require.NoError(t, err)
	wire := append([]byte(nil), m.Bytes()...)
	m.Release()

	m2, err := pool.DecodeRaw(wire)
	require.NoError(t, err)
	defer m2.Release()
	_, err = m2.ConsumeTag()
	require.NoError(t, err)
	reason, msg, err := decodeDisconnect(m2)
	require.NoError(t, err)
	got := disconnectWire{Reason: reason, Msg: msg}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("disconnect mismatch (-want +got):\n%s", diff)
	}
}

func TestNotifyHeaderRoundTrip(t *testing.T) {
	pool := message.NewPool(message.DefaultCapacityBytes)
	want := notifyHeaderWire{Seq: 9, RemoteLast: 8, RemoteBitfield: 0xAAAA}

	m, err := pool.Acquire(message.Notify, 7)
	require.NoError(t, err)
	require.NoError(t, m.SetBitsAt(message.SequenceIDOffset(message.Notify), uint64(want.Seq), 16))
	require.NoError(t, m.SetBitsAt(message.NotifyLastReceivedOffset(), uint64(want.RemoteLast), 16))
	require.NoError(t, m.SetBitsAt(message.NotifyAckBitfieldOffset(), uint64(want.RemoteBitfield), 16))
	wire := append([]byte(nil), m.Bytes()...)
	m.Release()

	m2, err := pool.DecodeRaw(wire)
	require.NoError(t, err)
	defer m2.Release()
	_, err = m2.ConsumeTag()
	require.NoError(t, err)
	seq, remoteLast, remoteBitfield, err := decodeNotifyHeader(m2)
	require.NoError(t, err)
	got := notifyHeaderWire{Seq: seq, RemoteLast: remoteLast, RemoteBitfield: remoteBitfield}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("notify header mismatch (-want +got):\n%s", diff)
	}
}
