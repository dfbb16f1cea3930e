package events

import "sync"

// Mux is the per-turn event multiplexer. Producers (the stream parser, the
// dispatcher) publish events concurrently; the Mux assigns each a strictly
// monotonic sequence number at enqueue time and delivers them in that order on
// a single output channel.
//
// Ordering rules:
//   - Sequence numbers within a turn are strictly monotonic.
//   - Events from one producer are delivered in publish order. Interleaving
//     between producers follows enqueue order, which is all the protocol
//     requires.
//   - Abort drains undelivered events, emits a single abort event, and closes
//     the output. Publishes after Abort are dropped, so no stream, command, or
//     completed event ever follows the abort event.
//
// A Mux is used for exactly one turn and must not be reused.
type Mux struct {
	mu     sync.Mutex
	wake   *sync.Cond
	queue  []Event
	seq    uint64
	closed bool

	out chan Event
}

// NewMux constructs a Mux and starts its delivery loop.
func NewMux() *Mux {
	m := &Mux{out: make(chan Event)}
	m.wake = sync.NewCond(&m.mu)
	go m.run()
	return m
}

// Events returns the ordered output channel. It is closed after Close or
// Abort once all pending events have been delivered. Consumers must drain the
// channel until it is closed, even after calling Abort, or the delivery
// goroutine leaks.
func (m *Mux) Events() <-chan Event {
	return m.out
}

// Publish enqueues ev, assigning its sequence number. It reports false when
// the turn has already been closed or aborted, in which case the event is
// dropped.
func (m *Mux) Publish(ev Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.seq++
	ev.seq = m.seq
	m.queue = append(m.queue, ev)
	m.wake.Signal()
	return true
}

// Close marks the turn as finished. Already-enqueued events are still
// delivered, then the output channel is closed. Close is idempotent.
func (m *Mux) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.wake.Signal()
}

// Abort cancels the turn: all undelivered events are discarded, one abort
// event is emitted, and the output channel is closed. Calling Abort after
// Close or a previous Abort is a no-op.
func (m *Mux) Abort() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.queue = m.queue[:0]
	m.seq++
	ev := newAbort()
	ev.seq = m.seq
	m.queue = append(m.queue, ev)
	m.closed = true
	m.wake.Signal()
}

// run is the single delivery goroutine. It moves events from the queue to the
// output channel in sequence order and closes the channel once the Mux is
// closed and drained.
func (m *Mux) run() {
	for {
		m.mu.Lock()
		for len(m.queue) == 0 && !m.closed {
			m.wake.Wait()
		}
		batch := m.queue
		m.queue = nil
		closed := m.closed
		m.mu.Unlock()

		for _, ev := range batch {
			m.out <- ev
		}

		if closed {
			// New events cannot arrive once closed is set; one final queue
			// check covers the Abort event enqueued together with the close.
			m.mu.Lock()
			remaining := m.queue
			m.queue = nil
			m.mu.Unlock()
			for _, ev := range remaining {
				m.out <- ev
			}
			close(m.out)
			return
		}
	}
}
