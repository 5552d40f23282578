package message

// Bit offsets of the reserved framing fields written by writeUserHeader, filled in
// later by the reliability engine via SetBitsAt. All offsets are relative
// to the start of the buffer, in bits.
const (
	tagBits = 8

	// Reliable framing: [tag:8][seq:16][payload...]
	reliableSeqOffset = tagBits

	// Notify framing: [tag:8][seq:16][last_received:16][ack_bitfield:16][payload...]
	notifySeqOffset         = tagBits
	notifyLastReceivedOffset = tagBits + 16
	notifyAckBitfieldOffset  = tagBits + 32
)

// idBits is the width of the application message id written immediately
// after a user-mode message's framing, used by the handler registry to
// dispatch without having to sniff the payload.
const idBits = 16

// writeUserHeader writes the header tag for mode, reserves bits for any
// sequencing framing the mode needs, and writes the application message id
// right after, leaving the Message ready for the caller to Add* the rest
// of the payload. Pool.Acquire calls it on every user-mode Message it
// hands out.
func (m *Message) writeUserHeader(mode SendMode, id uint16) error {
	m.mode = mode
	if err := m.AddBits(uint64(mode.Tag()), tagBits); err != nil {
		return err
	}
	switch mode {
	case Reliable:
		if err := m.ReserveBits(16); err != nil {
			return err
		}
	case Notify:
		if err := m.ReserveBits(notifyFramingBits); err != nil {
			return err
		}
	}
	return m.AddU16(id)
}

// SequenceIDOffset returns the bit offset of the sequence-id field for a
// reliable or notify message, or -1 if mode carries no sequence id.
func SequenceIDOffset(mode SendMode) int {
	switch mode {
	case Reliable:
		return reliableSeqOffset
	case Notify:
		return notifySeqOffset
	default:
		return -1
	}
}

// NotifyLastReceivedOffset is the bit offset of the last-received field in
// a notify message's framing.
func NotifyLastReceivedOffset() int { return notifyLastReceivedOffset }

// NotifyAckBitfieldOffset is the bit offset of the 16-bit ack bitfield in
// a notify message's framing.
func NotifyAckBitfieldOffset() int { return notifyAckBitfieldOffset }

// HeaderID reads the application message id that follows a user-mode
// message's framing at the read cursor and advances the cursor past it
// (the reliability engine has already consumed the framing fields by the
// time the handler registry wants the id, so this is a plain Get, not a
// Peek).
func (m *Message) HeaderID() (uint16, error) {
	return m.GetU16()
}

// ReadTag peeks the header tag without moving the read cursor.
func (m *Message) ReadTag() (HeaderTag, error) {
	v, err := m.PeekBitsAt(0, tagBits)
	return HeaderTag(v), err
}

// ConsumeTag reads and returns the header tag, advancing the read cursor
// past it. Used by the transport inbound path on a freshly decoded
// Message before dispatching to connection/reliability logic.
func (m *Message) ConsumeTag() (HeaderTag, error) {
	v, err := m.GetBits(tagBits)
	return HeaderTag(v), err
}

// MarkAutoRelay rewrites a just-acquired user message's header tag to its
// *AutoRelay variant, instructing the receiving peer.Server to forward the
// payload verbatim to every other connected client instead of dispatching
// it locally. Must be called on a Message from Pool.Acquire, for example
// from the fill callback passed to Engine.PrepareUnreliable/PrepareReliable, before any
// sequencing field is written over it — it rewrites bit position 0, the
// tag field, and nothing else, so call order relative to the payload
// itself does not matter.
func (m *Message) MarkAutoRelay() error {
	switch m.mode {
	case Unreliable:
		return m.SetBitsAt(0, uint64(TagUnreliableAutoRelay), tagBits)
	case Reliable:
		return m.SetBitsAt(0, uint64(TagReliableAutoRelay), tagBits)
	default:
		return ErrInvalidAutoRelay
	}
}

// writeControlTag writes only the header tag, for control datagrams (Ack,
// Connect, Heartbeat, Disconnect, Welcome, ClientConnected,
// ClientDisconnected, Reject) that carry no application message id.
func (m *Message) writeControlTag(tag HeaderTag) error {
	return m.AddBits(uint64(tag), tagBits)
}
