package message

import (
	"sync"
	"sync/atomic"
)

// poolGrowIncrement is the fixed increment a Pool's logical capacity
// grows/shrinks by each time a peer starts/stops.
const poolGrowIncrement = 64

// Pool is a process-wide, mutex-guarded free list of Messages. The
// critical section of Acquire/Release is O(1): a slice pop/push under a
// single mutex. Pool is safe for concurrent use; if a host application
// never shares a Pool across goroutines it degrades to an uncontended
// mutex with no behavioural difference.
type Pool struct {
	mu            sync.Mutex
	free          []*Message
	bufferBytes   int
	logicalCap    int64
	inUse         int64
}

// NewPool creates a Pool whose Messages each have the given byte capacity.
// bufferBytes should be at least DefaultCapacityBytes for a pool that will
// carry user payloads up to MaxPayloadSize.
func NewPool(bufferBytes int) *Pool {
	return &Pool{bufferBytes: bufferBytes}
}

// Grow increases the pool's logical capacity counter by one increment.
// Called by peer.Server/peer.Client on Start.
func (p *Pool) Grow() {
	atomic.AddInt64(&p.logicalCap, poolGrowIncrement)
}

// Shrink decreases the pool's logical capacity counter by one increment,
// floored at zero. Called by peer.Server/peer.Client on Stop.
func (p *Pool) Shrink() {
	for {
		old := atomic.LoadInt64(&p.logicalCap)
		next := old - poolGrowIncrement
		if next < 0 {
			next = 0
		}
		if atomic.CompareAndSwapInt64(&p.logicalCap, old, next) {
			return
		}
	}
}

// Capacity reports the pool's current logical capacity (for metrics/tests;
// it does not bound how many Messages may actually be in flight — Go's GC
// reclaims anything the free list doesn't recycle).
func (p *Pool) Capacity() int64 { return atomic.LoadInt64(&p.logicalCap) }

// InUse reports how many Messages are currently acquired and not yet
// released.
func (p *Pool) InUse() int64 { return atomic.LoadInt64(&p.inUse) }

func (p *Pool) acquireRaw() *Message {
	p.mu.Lock()
	var m *Message
	if n := len(p.free); n > 0 {
		m = p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
	}
	p.mu.Unlock()

	if m == nil {
		m = newMessage(p.bufferBytes)
	}
	m.reset()
	m.pool = p
	atomic.AddInt64(&p.inUse, 1)
	return m
}

// AcquireRaw returns an empty Message with no header written, for decoding
// an inbound datagram off the transport.
func (p *Pool) AcquireRaw() *Message {
	return p.acquireRaw()
}

// DecodeRaw returns a Message whose buffer holds a copy of b, write cursor
// at len(b)*8 and read cursor at 0, ready for ConsumeTag/Get* to walk an
// inbound datagram. Errors if b is larger than the pool's buffer capacity.
func (p *Pool) DecodeRaw(b []byte) (*Message, error) {
	m := p.acquireRaw()
	if len(b) > len(m.data) {
		m.Release()
		return nil, ErrInsufficientCapacity
	}
	copy(m.data, b)
	m.writeBit = len(b) * 8
	return m, nil
}

// Acquire returns a Message with the header tag for mode, any reserved
// sequencing framing, and the application message id already written.
func (p *Pool) Acquire(mode SendMode, id uint16) (*Message, error) {
	m := p.acquireRaw()
	if err := m.writeUserHeader(mode, id); err != nil {
		m.Release()
		return nil, err
	}
	return m, nil
}

// AcquireControl returns a Message with only a protocol control tag
// written (Ack, AckExtra, Connect, Heartbeat, Disconnect, Welcome,
// ClientConnected, ClientDisconnected, Reject) — no application message
// id, since control messages are interpreted by the connection state
// machine, not the handler registry.
func (p *Pool) AcquireControl(tag HeaderTag) (*Message, error) {
	m := p.acquireRaw()
	if err := m.writeControlTag(tag); err != nil {
		m.Release()
		return nil, err
	}
	return m, nil
}

// Release returns m to its pool. Double-release is a documented no-op.
func (m *Message) Release() {
	if m == nil || m.released || m.pool == nil {
		return
	}
	m.released = true
	p := m.pool
	p.mu.Lock()
	p.free = append(p.free, m)
	p.mu.Unlock()
	atomic.AddInt64(&p.inUse, -1)
}

// Released reports whether m has already been returned to its pool.
func (m *Message) Released() bool { return m.released }
