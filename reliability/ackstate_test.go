package reliability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReceiveAckStateTracksPredecessors(t *testing.T) {
	var r ReceiveAckState
	r.Update(10)
	assert.Equal(t, SequenceID(10), r.LastReceived())
	assert.Equal(t, uint16(0), r.Bitfield())

	r.Update(11)
	assert.Equal(t, SequenceID(11), r.LastReceived())
	assert.Equal(t, uint16(0b1), r.Bitfield(), "seq 10 is now predecessor 1")

	r.Update(13) // 12 missing
	assert.Equal(t, SequenceID(13), r.LastReceived())
	assert.Equal(t, uint16(0b110), r.Bitfield(), "11 and 10 received (predecessors 2,3), 12 missing (predecessor 1)")

	r.Update(12) // arrives late
	assert.Equal(t, uint16(0b111), r.Bitfield())
	assert.True(t, r.IsLatest(13))
	assert.False(t, r.IsLatest(12))
}

func TestReceiveAckStateLargeGapClearsBitfield(t *testing.T) {
	var r ReceiveAckState
	r.Update(0)
	r.Update(1)
	r.Update(1000)
	assert.Equal(t, uint16(0), r.Bitfield())
}

func TestSendAckStateAcksLatestAndPredecessors(t *testing.T) {
	var s SendAckState

	acked, fallenOff := s.ProcessAck(10, 0b1) // acks 10 and predecessor 9
	assert.ElementsMatch(t, []SequenceID{10, 9}, acked)
	assert.Empty(t, fallenOff)

	// fallenOff may list candidate ids that age out of the window even
	// when nothing was actually pending at that id; the caller (Engine)
	// filters against its own pending map before treating any of them as
	// a real loss.
	acked, _ = s.ProcessAck(11, 0)
	assert.ElementsMatch(t, []SequenceID{11}, acked)
}

func TestSendAckStateReportsFallenOff(t *testing.T) {
	var s SendAckState
	s.ProcessAck(100, 0) // nothing acked beyond 100 itself

	// Jump far enough that anything between old last and new last, never
	// acked, ages out of the 16-bit window.
	acked, fallenOff := s.ProcessAck(200, 0)
	assert.Contains(t, acked, SequenceID(200))
	assert.NotEmpty(t, fallenOff)
}
