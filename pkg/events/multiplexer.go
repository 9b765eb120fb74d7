package events

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// DefaultRetention is the number of committed events kept for afterCursor
// replay when no override is configured.
const DefaultRetention = 1024

// DefaultQueueDepth bounds each subscription's delivery queue. A subscriber
// that falls this far behind is dropped rather than silently skipping events.
const DefaultQueueDepth = 256

// ErrShuttingDown is returned by Subscribe and Publish after Shutdown.
var ErrShuttingDown = errors.New("event multiplexer is shutting down")

// Delivery is one cursored event bound for one subscription.
type Delivery struct {
	SubscriptionID string
	Cursor         int64
	Event          Observed
}

// Sink receives ordered deliveries for one subscription. Deliver errors and
// queue overflow both end the subscription; Dropped is then called exactly
// once with a human-readable reason.
type Sink interface {
	Deliver(d Delivery) error
	Dropped(subscriptionID, reason string)
}

// SubscribeResult is returned by Subscribe.
type SubscribeResult struct {
	SubscriptionID string `json:"subscriptionId"`
	// Cursor is the highwater from which future events start.
	Cursor int64 `json:"cursor"`
	// Truncated is set when afterCursor predates the retention window; replay
	// then starts at the oldest retained event.
	Truncated bool `json:"truncated,omitempty"`
}

type retained struct {
	seq   int64
	event Observed
}

type subscription struct {
	id     string
	filter Filter
	sink   Sink
	queue  chan Delivery
	// done and dropReason are written under Multiplexer.mu. dropReason is
	// read by the pump only after the queue closes, which orders the write
	// before the read.
	done       bool
	dropReason string
}

// Multiplexer fans observed events out to subscriptions.
//
// Cursor model: cursors are drawn from a single commit sequence shared by all
// subscriptions. Each subscription sees a strictly increasing (not
// necessarily dense) cursor series, and for any two mutations M1 < M2 the
// cursors obey M1 < M2 on every subscription that matches both. Because
// cursors are comparable across subscription generations, a reconnecting
// client can resume with stream.subscribe{afterCursor} and replay is served
// from the shared retention ring.
type Multiplexer struct {
	mu         sync.Mutex
	subs       map[string]*subscription
	seq        int64
	ring       []retained
	ringCap    int
	queueDepth int
	closed     bool
	wg         sync.WaitGroup
}

// Option configures a Multiplexer.
type Option func(*Multiplexer)

// WithRetention overrides the replay retention ring size.
func WithRetention(n int) Option {
	return func(m *Multiplexer) {
		if n > 0 {
			m.ringCap = n
		}
	}
}

// WithQueueDepth overrides the per-subscription queue bound.
func WithQueueDepth(n int) Option {
	return func(m *Multiplexer) {
		if n > 0 {
			m.queueDepth = n
		}
	}
}

// NewMultiplexer creates an empty multiplexer.
func NewMultiplexer(opts ...Option) *Multiplexer {
	m := &Multiplexer{
		subs:       make(map[string]*subscription),
		ringCap:    DefaultRetention,
		queueDepth: DefaultQueueDepth,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe registers a new subscription and starts its delivery pump. When
// afterCursor is non-nil, retained events with strictly greater cursors that
// match the filter are queued before any new event.
func (m *Multiplexer) Subscribe(filter Filter, afterCursor *int64, sink Sink) (SubscribeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return SubscribeResult{}, ErrShuttingDown
	}

	sub := &subscription{
		id:     uuid.New().String(),
		filter: filter,
		sink:   sink,
		queue:  make(chan Delivery, m.queueDepth),
	}
	m.subs[sub.id] = sub

	result := SubscribeResult{SubscriptionID: sub.id, Cursor: m.seq}

	if afterCursor != nil {
		if len(m.ring) > 0 && m.ring[0].seq > *afterCursor+1 {
			result.Truncated = true
		} else if len(m.ring) == 0 && *afterCursor < m.seq {
			result.Truncated = true
		}
		// Replay happens under the lock before any Publish can enqueue, so
		// ordering relative to new events is preserved. Overflow during
		// replay is handled like live overflow.
		for _, r := range m.ring {
			if r.seq <= *afterCursor || !filter.Matches(r.event) {
				continue
			}
			if !m.enqueueLocked(sub, Delivery{SubscriptionID: sub.id, Cursor: r.seq, Event: r.event}) {
				break
			}
		}
	}

	m.wg.Add(1)
	go m.pump(sub)

	return result, nil
}

// Unsubscribe ends a subscription. Unknown ids return false without error.
func (m *Multiplexer) Unsubscribe(subscriptionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[subscriptionID]
	if !ok {
		return false
	}
	m.removeLocked(sub)
	return true
}

// Publish commits a batch of events produced inside one store lock region.
// Cursor assignment and fan-out happen atomically with respect to other
// Publish calls, which yields the cross-subscription ordering guarantee.
func (m *Multiplexer) Publish(batch ...Observed) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	for _, e := range batch {
		m.seq++
		seq := m.seq

		m.ring = append(m.ring, retained{seq: seq, event: e})
		if len(m.ring) > m.ringCap {
			m.ring = m.ring[len(m.ring)-m.ringCap:]
		}

		for _, sub := range m.subs {
			if sub.done || !sub.filter.Matches(e) {
				continue
			}
			m.enqueueLocked(sub, Delivery{SubscriptionID: sub.id, Cursor: seq, Event: e})
		}
	}
}

// Highwater returns the current commit sequence.
func (m *Multiplexer) Highwater() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seq
}

// ActiveSubscriptions returns the number of live subscriptions.
func (m *Multiplexer) ActiveSubscriptions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Shutdown stops accepting events and subscriptions, closes every queue, and
// waits for the pumps to drain what was already enqueued.
func (m *Multiplexer) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for _, sub := range m.subs {
		if !sub.done {
			sub.done = true
			close(sub.queue)
		}
	}
	m.subs = make(map[string]*subscription)
	m.mu.Unlock()

	m.wg.Wait()
}

// enqueueLocked appends to the subscription queue, dropping the subscription
// on overflow. Returns false when the subscription was dropped. Caller holds
// m.mu.
func (m *Multiplexer) enqueueLocked(sub *subscription, d Delivery) bool {
	select {
	case sub.queue <- d:
		return true
	default:
		slog.Warn("Subscription queue overflow, dropping subscription",
			"subscription_id", sub.id, "cursor", d.Cursor)
		sub.dropReason = "delivery queue overflow"
		m.removeLocked(sub)
		return false
	}
}

// removeLocked detaches a subscription and closes its queue. Caller holds m.mu.
func (m *Multiplexer) removeLocked(sub *subscription) {
	if sub.done {
		return
	}
	sub.done = true
	delete(m.subs, sub.id)
	close(sub.queue)
}

// pump delivers queued events in order. A closed queue is drained before the
// subscription ends; a Deliver failure ends it immediately since the peer is
// gone.
func (m *Multiplexer) pump(sub *subscription) {
	defer m.wg.Done()
	for d := range sub.queue {
		if err := sub.sink.Deliver(d); err != nil {
			slog.Warn("Subscription delivery failed, dropping subscription",
				"subscription_id", sub.id, "error", err)
			m.mu.Lock()
			m.removeLocked(sub)
			m.mu.Unlock()
			sub.sink.Dropped(sub.id, "delivery failed: "+err.Error())
			return
		}
	}
	if sub.dropReason != "" {
		sub.sink.Dropped(sub.id, sub.dropReason)
	}
}
