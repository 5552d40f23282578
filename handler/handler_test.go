package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ventosilenzioso/riptide/connection"
	"github.com/ventosilenzioso/riptide/message"
)

// buildDispatchableMessage acquires a message, writes a payload after the
// header, then advances the read cursor past the tag and id exactly as
// the transport inbound path would before calling Dispatch.
func buildDispatchableMessage(t *testing.T, pool *message.Pool, id uint16, payload uint32) *message.Message {
	t.Helper()
	m, err := pool.Acquire(message.Unreliable, id)
	require.NoError(t, err)
	require.NoError(t, m.AddU32(payload))

	_, err = m.ConsumeTag()
	require.NoError(t, err)
	_, err = m.HeaderID()
	require.NoError(t, err)
	return m
}

func TestTableDispatchesRegisteredHandler(t *testing.T) {
	table := NewTable(nil)
	var got uint32
	table.Register(42, func(msg *message.Message, from *connection.Connection) {
		v, err := msg.GetU32()
		assert.NoError(t, err)
		got = v
	})

	pool := message.NewPool(message.DefaultCapacityBytes)
	msg := buildDispatchableMessage(t, pool, 42, 99)

	table.Dispatch(42, msg, nil)
	assert.Equal(t, uint32(99), got)
}

func TestTableDropsUnregisteredID(t *testing.T) {
	table := NewTable(nil)
	pool := message.NewPool(message.DefaultCapacityBytes)
	msg := buildDispatchableMessage(t, pool, 7, 1)

	assert.NotPanics(t, func() {
		table.Dispatch(7, msg, nil)
	})
}

func TestTableRecoversPanickingHandler(t *testing.T) {
	table := NewTable(nil)
	table.Register(1, func(msg *message.Message, from *connection.Connection) {
		panic("boom")
	})

	pool := message.NewPool(message.DefaultCapacityBytes)
	msg := buildDispatchableMessage(t, pool, 1, 0)

	assert.NotPanics(t, func() {
		table.Dispatch(1, msg, nil)
	})
}
