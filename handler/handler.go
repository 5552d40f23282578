// Package handler is riptide's external collaborator for dispatching
// decoded user messages to application callbacks. The core depends only
// on the Registry interface; Table is the default in-process
// implementation, keyed by an arbitrary uint16 message id rather than a
// fixed list of built-in event types.
package handler

import (
	"log/slog"

	"github.com/ventosilenzioso/riptide/connection"
	"github.com/ventosilenzioso/riptide/message"
)

// Func is invoked with a decoded user message and the connection it
// arrived on. msg's read cursor is positioned immediately after the
// application message id; the callback reads its own payload from there.
// The callback must not retain msg past its return — the caller releases
// it back to the pool afterward.
type Func func(msg *message.Message, from *connection.Connection)

// Registry is the interface the core's dispatch path depends on. A host
// application supplies its own implementation, or uses Table.
type Registry interface {
	Register(id uint16, fn Func)
	Dispatch(id uint16, msg *message.Message, from *connection.Connection)
}

// Table is the default Registry: a plain map from message id to callback.
// Unregistered ids are logged and dropped; a panicking callback is
// recovered and logged so one bad handler can't take down the transport
// loop.
type Table struct {
	log      *slog.Logger
	handlers map[uint16]Func
}

// NewTable builds an empty Table. log may be nil, in which case
// slog.Default() is used.
func NewTable(log *slog.Logger) *Table {
	if log == nil {
		log = slog.Default()
	}
	return &Table{log: log, handlers: make(map[uint16]Func)}
}

// Register binds fn to id, replacing any previous registration.
func (t *Table) Register(id uint16, fn Func) {
	t.handlers[id] = fn
}

// Dispatch invokes the handler registered for id, if any. An unregistered
// id is logged as a warning and the message is dropped.
func (t *Table) Dispatch(id uint16, msg *message.Message, from *connection.Connection) {
	fn, ok := t.handlers[id]
	if !ok {
		t.log.Warn("no handler registered for message id, dropping", "id", id)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("handler panicked, recovered", "id", id, "panic", r)
		}
	}()
	fn(msg, from)
}
