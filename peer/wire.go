package peer

import (
	"github.com/ventosilenzioso/riptide/connection"
	"github.com/ventosilenzioso/riptide/message"
	"github.com/ventosilenzioso/riptide/reliability"
)

// Control datagram encoders/decoders. Every encode* function returns a
// Message the caller must Bytes()-copy and Release(); every decode*
// function assumes ConsumeTag has already been called on m.

func encodeConnect(pool *message.Pool, payload []byte) (*message.Message, error) {
	m, err := pool.AcquireControl(message.TagConnect)
	if err != nil {
		return nil, err
	}
	if err := m.AddU8Array(payload); err != nil {
		m.Release()
		return nil, err
	}
	return m, nil
}

func decodeConnect(m *message.Message) ([]byte, error) {
	return m.GetU8Array()
}

func encodeWelcome(pool *message.Pool, id uint16) (*message.Message, error) {
	m, err := pool.AcquireControl(message.TagWelcome)
	if err != nil {
		return nil, err
	}
	if err := m.AddU16(id); err != nil {
		m.Release()
		return nil, err
	}
	return m, nil
}

func decodeWelcome(m *message.Message) (uint16, error) {
	return m.GetU16()
}

func encodeReject(pool *message.Pool, reason string) (*message.Message, error) {
	m, err := pool.AcquireControl(message.TagReject)
	if err != nil {
		return nil, err
	}
	if err := m.AddString(reason); err != nil {
		m.Release()
		return nil, err
	}
	return m, nil
}

func decodeReject(m *message.Message) (string, error) {
	return m.GetString()
}

func encodeHeartbeat(pool *message.Pool, isEcho bool, pingID uint16, reportedRTTMillis uint32) (*message.Message, error) {
	m, err := pool.AcquireControl(message.TagHeartbeat)
	if err != nil {
		return nil, err
	}
	if err := m.AddBool(isEcho); err != nil {
		m.Release()
		return nil, err
	}
	if err := m.AddU16(pingID); err != nil {
		m.Release()
		return nil, err
	}
	if err := m.AddU32(reportedRTTMillis); err != nil {
		m.Release()
		return nil, err
	}
	return m, nil
}

func decodeHeartbeat(m *message.Message) (isEcho bool, pingID uint16, reportedRTTMillis uint32, err error) {
	if isEcho, err = m.GetBool(); err != nil {
		return
	}
	if pingID, err = m.GetU16(); err != nil {
		return
	}
	reportedRTTMillis, err = m.GetU32()
	return
}

func encodeDisconnect(pool *message.Pool, reason connection.DisconnectReason, msg string) (*message.Message, error) {
	m, err := pool.AcquireControl(message.TagDisconnect)
	if err != nil {
		return nil, err
	}
	if err := m.AddU8(uint8(reason)); err != nil {
		m.Release()
		return nil, err
	}
	if err := m.AddString(msg); err != nil {
		m.Release()
		return nil, err
	}
	return m, nil
}

func decodeDisconnect(m *message.Message) (connection.DisconnectReason, string, error) {
	reasonByte, err := m.GetU8()
	if err != nil {
		return connection.ReasonNone, "", err
	}
	msg, err := m.GetString()
	if err != nil {
		return connection.ReasonNone, "", err
	}
	return connection.DisconnectReason(reasonByte), msg, nil
}

func encodeClientConnected(pool *message.Pool, id uint16) (*message.Message, error) {
	m, err := pool.AcquireControl(message.TagClientConnected)
	if err != nil {
		return nil, err
	}
	if err := m.AddU16(id); err != nil {
		m.Release()
		return nil, err
	}
	return m, nil
}

func encodeClientDisconnected(pool *message.Pool, id uint16) (*message.Message, error) {
	m, err := pool.AcquireControl(message.TagClientDisconnected)
	if err != nil {
		return nil, err
	}
	if err := m.AddU16(id); err != nil {
		m.Release()
		return nil, err
	}
	return m, nil
}

func decodePeerID(m *message.Message) (uint16, error) {
	return m.GetU16()
}

func encodeAck(pool *message.Pool, last reliability.SequenceID, bitfield uint16) (*message.Message, error) {
	m, err := pool.AcquireControl(message.TagAck)
	if err != nil {
		return nil, err
	}
	if err := m.AddU16(uint16(last)); err != nil {
		m.Release()
		return nil, err
	}
	if err := m.AddU16(bitfield); err != nil {
		m.Release()
		return nil, err
	}
	return m, nil
}

func encodeAckExtra(pool *message.Pool, last reliability.SequenceID, bitfield uint16, extra reliability.SequenceID) (*message.Message, error) {
	m, err := pool.AcquireControl(message.TagAckExtra)
	if err != nil {
		return nil, err
	}
	if err := m.AddU16(uint16(last)); err != nil {
		m.Release()
		return nil, err
	}
	if err := m.AddU16(bitfield); err != nil {
		m.Release()
		return nil, err
	}
	if err := m.AddU16(uint16(extra)); err != nil {
		m.Release()
		return nil, err
	}
	return m, nil
}

func decodeAck(m *message.Message) (last reliability.SequenceID, bitfield uint16, err error) {
	var v uint16
	if v, err = m.GetU16(); err != nil {
		return
	}
	last = reliability.SequenceID(v)
	bitfield, err = m.GetU16()
	return
}

func decodeAckExtra(m *message.Message) (last reliability.SequenceID, bitfield uint16, extra reliability.SequenceID, err error) {
	last, bitfield, err = decodeAck(m)
	if err != nil {
		return
	}
	var v uint16
	v, err = m.GetU16()
	extra = reliability.SequenceID(v)
	return
}

// decodeReliableSeq/decodeNotifyHeader read the sequence-framing fields
// that immediately follow the tag for Reliable and Notify datagrams; the
// application message id and payload follow after.
func decodeReliableSeq(m *message.Message) (reliability.SequenceID, error) {
	v, err := m.GetU16()
	return reliability.SequenceID(v), err
}

func decodeNotifyHeader(m *message.Message) (seq, remoteLast reliability.SequenceID, remoteBitfield uint16, err error) {
	var v uint16
	if v, err = m.GetU16(); err != nil {
		return
	}
	seq = reliability.SequenceID(v)
	if v, err = m.GetU16(); err != nil {
		return
	}
	remoteLast = reliability.SequenceID(v)
	remoteBitfield, err = m.GetU16()
	return
}
