package reliability

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ventosilenzioso/riptide/message"
)

// rttAlpha is the exponential smoothing factor for heartbeat RTT:
// smoothed = smoothed*0.7 + sample*0.3.
const rttAlpha = 0.3

// Engine is the per-connection reliability state: sequence counters, the
// reliable and notify ack bookkeeping, in-flight PendingOutbound entries,
// and the quality tracker that feeds poor-connection detection. One Engine
// belongs to exactly one connection; Engine itself never touches a socket
// or an endpoint — callers move bytes, Engine only manages guarantees.
type Engine struct {
	clock clockwork.Clock
	pool  *message.Pool
	cfg   Config

	nextReliableSeq SequenceID
	nextNotifySeq   SequenceID

	recvDup  *DuplicateFilter
	recvAck  ReceiveAckState
	sendAck  SendAckState
	notifyRecv ReceiveAckState
	notifySend SendAckState

	pendingReliable map[SequenceID]*PendingOutbound
	pendingNotify   map[SequenceID]*PendingOutbound

	smoothedRTT time.Duration
	quality     *quality

	events []Event
}

// NewEngine builds an Engine for one connection.
func NewEngine(clock clockwork.Clock, pool *message.Pool, cfg Config) *Engine {
	if cfg.DuplicateFilterWindow < MinDuplicateFilterWindow {
		cfg.DuplicateFilterWindow = DefaultDuplicateFilterWindow
	}
	return &Engine{
		clock:           clock,
		pool:            pool,
		cfg:             cfg,
		recvDup:         NewDuplicateFilter(cfg.DuplicateFilterWindow),
		pendingReliable: make(map[SequenceID]*PendingOutbound),
		pendingNotify:   make(map[SequenceID]*PendingOutbound),
		quality:         newQuality(cfg.Quality),
	}
}

// RecordRTT folds a fresh round-trip sample into the smoothed RTT estimate
// that drives the reliable resend timer.
func (e *Engine) RecordRTT(sample time.Duration) {
	if e.smoothedRTT <= 0 {
		e.smoothedRTT = sample
		return
	}
	e.smoothedRTT = time.Duration(float64(e.smoothedRTT)*(1-rttAlpha) + float64(sample)*rttAlpha)
}

// SmoothedRTT returns the current RTT estimate.
func (e *Engine) SmoothedRTT() time.Duration { return e.smoothedRTT }

// DrainEvents returns and clears every Event accumulated since the last
// call, for the caller to dispatch during its own tick().
func (e *Engine) DrainEvents() []Event {
	if len(e.events) == 0 {
		return nil
	}
	out := e.events
	e.events = nil
	return out
}

func (e *Engine) emit(kind EventKind, seq SequenceID, tag any) {
	e.events = append(e.events, Event{Kind: kind, Seq: seq, Tag: tag})
}

// PrepareUnreliable serializes a fire-and-forget message. The caller owns
// transmitting and releasing the returned Message.
func (e *Engine) PrepareUnreliable(id uint16, fill func(*message.Message) error) (*message.Message, error) {
	m, err := e.pool.Acquire(message.Unreliable, id)
	if err != nil {
		return nil, err
	}
	if fill != nil {
		if err := fill(m); err != nil {
			m.Release()
			return nil, err
		}
	}
	return m, nil
}

// PrepareReliable serializes a guaranteed-delivery message, records a
// PendingOutbound for retry, and returns a copy of the wire bytes ready to
// transmit. The Message used to build the payload is released before
// PrepareReliable returns.
func (e *Engine) PrepareReliable(id uint16, fill func(*message.Message) error) (SequenceID, []byte, error) {
	m, err := e.pool.Acquire(message.Reliable, id)
	if err != nil {
		return 0, nil, err
	}
	defer m.Release()

	if fill != nil {
		if err := fill(m); err != nil {
			return 0, nil, err
		}
	}

	seq := e.nextReliableSeq
	e.nextReliableSeq = e.nextReliableSeq.Next()
	if err := m.SetBitsAt(message.SequenceIDOffset(message.Reliable), uint64(seq), 16); err != nil {
		return 0, nil, err
	}

	payload := append([]byte(nil), m.Bytes()...)
	now := e.clock.Now()
	e.pendingReliable[seq] = &PendingOutbound{
		Seq:      seq,
		Payload:  payload,
		Attempts: 1,
		LastSend: now,
		Deadline: now.Add(e.cfg.retryInterval(e.smoothedRTT)),
	}
	return seq, payload, nil
}

// PrepareNotify serializes a notify-mode message, piggybacking this side's
// current receive ack state. tag is propagated to the eventual
// EventNotifyDelivered/EventNotifyLost.
func (e *Engine) PrepareNotify(id uint16, fill func(*message.Message) error, tag any) (SequenceID, []byte, error) {
	m, err := e.pool.Acquire(message.Notify, id)
	if err != nil {
		return 0, nil, err
	}
	defer m.Release()

	if fill != nil {
		if err := fill(m); err != nil {
			return 0, nil, err
		}
	}

	seq := e.nextNotifySeq
	e.nextNotifySeq = e.nextNotifySeq.Next()
	if err := m.SetBitsAt(message.SequenceIDOffset(message.Notify), uint64(seq), 16); err != nil {
		return 0, nil, err
	}
	if err := m.SetBitsAt(message.NotifyLastReceivedOffset(), uint64(e.notifyRecv.LastReceived()), 16); err != nil {
		return 0, nil, err
	}
	if err := m.SetBitsAt(message.NotifyAckBitfieldOffset(), uint64(e.notifyRecv.Bitfield()), 16); err != nil {
		return 0, nil, err
	}

	payload := append([]byte(nil), m.Bytes()...)
	e.pendingNotify[seq] = &PendingOutbound{
		Seq:      seq,
		Payload:  payload,
		Attempts: 1,
		LastSend: e.clock.Now(),
		Tag:      tag,
	}
	return seq, payload, nil
}

// AckDecision tells the caller which control message, if any, must be sent
// back in response to an inbound reliable message.
type AckDecision struct {
	Send  bool
	Extra bool
	Last  SequenceID
	Bitfield uint16
	ExtraSeq SequenceID
}

// HandleReliable folds an inbound reliable message's sequence id into the
// duplicate filter and receive ack state. deliver is false if the message
// is a retransmission that has already been handled. ack describes the Ack
// or AckExtra control message the caller should build and send back.
func (e *Engine) HandleReliable(seq SequenceID) (deliver bool, ack AckDecision) {
	if e.recvDup.CheckAndMark(seq) {
		return false, AckDecision{}
	}

	e.recvAck.Update(seq)

	ack.Send = true
	ack.Last = e.recvAck.LastReceived()
	ack.Bitfield = e.recvAck.Bitfield()
	if !e.recvAck.IsLatest(seq) {
		ack.Extra = true
		ack.ExtraSeq = seq
	}
	return true, ack
}

// HandleAck folds a plain Ack control message into the send-side ack
// state, resolving pending reliable sends.
func (e *Engine) HandleAck(last SequenceID, bitfield uint16) {
	acked, fallenOff := e.sendAck.ProcessAck(last, bitfield)
	e.resolveReliable(acked, fallenOff)
}

// HandleAckExtra folds an AckExtra control message (a plain Ack plus one
// explicitly acknowledged older sequence id) into the send-side state.
func (e *Engine) HandleAckExtra(last SequenceID, bitfield uint16, extra SequenceID) {
	acked, fallenOff := e.sendAck.ProcessAck(last, bitfield)
	acked = append(acked, extra)
	e.resolveReliable(acked, fallenOff)
}

// resolveReliable applies an ack decision to in-flight reliable sends.
// Only an explicit ack bit retires a pending entry. A sequence id that
// fell off the left edge of the ack window unacknowledged is not lost —
// it is merely nudged to resend sooner, since the resend timer (not the
// ack window) is what actually retires or drops a reliable send.
func (e *Engine) resolveReliable(acked, fallenOff []SequenceID) {
	for _, seq := range acked {
		if p, ok := e.pendingReliable[seq]; ok {
			delete(e.pendingReliable, seq)
			e.noteAttempts(p.Attempts)
			e.emit(EventReliableDelivered, seq, nil)
		}
	}
	now := e.clock.Now()
	for _, seq := range fallenOff {
		if p, ok := e.pendingReliable[seq]; ok && p.Deadline.After(now) {
			p.Deadline = now
		}
	}
}

// HandleNotify folds an inbound notify message's framing into state.
// deliver is false if the message is older than one already accepted
// (notify's strict-order-by-discard rule — it is never treated as a
// duplicate-to-retransmit, just dropped).
func (e *Engine) HandleNotify(seq, remoteLast SequenceID, remoteBitfield uint16) (deliver bool) {
	if e.notifyRecv.initialized && !Precedes(e.notifyRecv.LastReceived(), seq) {
		deliver = false
	} else {
		e.notifyRecv.Update(seq)
		deliver = true
	}

	acked, fallenOff := e.notifySend.ProcessAck(remoteLast, remoteBitfield)
	for _, s := range acked {
		if p, ok := e.pendingNotify[s]; ok {
			delete(e.pendingNotify, s)
			bad := e.quality.sampleNotify(false)
			e.emit(EventNotifyDelivered, s, p.Tag)
			e.checkQuality(bad)
		}
	}
	for _, s := range fallenOff {
		if p, ok := e.pendingNotify[s]; ok {
			delete(e.pendingNotify, s)
			bad := e.quality.sampleNotify(true)
			e.emit(EventNotifyLost, s, p.Tag)
			e.checkQuality(bad)
		}
	}
	return deliver
}

func (e *Engine) noteAttempts(attempts int) {
	bad := e.quality.sampleAttempts(attempts)
	e.checkQuality(bad)
}

func (e *Engine) checkQuality(bad bool) {
	if e.quality.record(bad) {
		e.emit(EventPoorConnection, 0, nil)
	}
}

// Tick scans pending reliable sends for expired retry deadlines and calls
// resend for each, in sequence id order is not guaranteed. Messages that
// exhaust MaxSendAttempts are dropped and charged against the quality
// tracker instead of being resent again.
func (e *Engine) Tick(resend func(payload []byte)) {
	now := e.clock.Now()
	for seq, p := range e.pendingReliable {
		if now.Before(p.Deadline) {
			continue
		}
		if p.Attempts >= e.cfg.MaxSendAttempts {
			delete(e.pendingReliable, seq)
			e.noteAttempts(p.Attempts)
			e.emit(EventReliableDropped, seq, nil)
			continue
		}
		p.Attempts++
		p.LastSend = now
		p.Deadline = now.Add(e.cfg.retryInterval(e.smoothedRTT))
		resend(p.Payload)
	}
}

// Quality exposes the current EMA-based delivery averages, for metrics.
func (e *Engine) Quality() (avgAttempts, notifyLossRate float64) {
	return e.quality.AvgAttempts(), e.quality.NotifyLossRate()
}

// PendingReliableCount and PendingNotifyCount report in-flight counts, for
// metrics and tests.
func (e *Engine) PendingReliableCount() int { return len(e.pendingReliable) }
func (e *Engine) PendingNotifyCount() int   { return len(e.pendingNotify) }
