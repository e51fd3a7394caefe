package stream

import (
	"errors"
	"sync"
)

// ErrUnknownInvestigation is returned by Subscribe/Publish/Close for an
// investigation that was never Open'd (or was already closed).
var ErrUnknownInvestigation = errors.New("stream: unknown investigation")

// Bus fans out one investigation's ordered event stream to any number of
// subscribers (§4.8). Adapted from the teacher's ConnectionManager:
// per-subscriber bounded queue, slow-subscriber disconnect instead of
// stalling the publisher, and a late-subscriber catchup path — simplified
// to an in-process ring buffer since persistence is optional and handled
// separately (eventlog), not a transport concern.
//
// Heartbeats are not generated here: the investigation supervisor ticks its
// own clock and Publishes heartbeat events like any other, since only it
// knows progress/current-activity. Bus just delivers whatever it's given,
// in the order it's given.
type Bus struct {
	mu             sync.RWMutex
	investigations map[string]*invState

	queueSize   int
	bufferLimit int
}

type invState struct {
	mu         sync.Mutex
	subs       map[string]*Subscriber
	buffer     []Event
	overflowed bool

	// lastSnapshot is rebuilt by the investigation layer via UpdateSnapshot
	// whenever a publish may have evicted history a late subscriber would
	// otherwise have missed.
	lastSnapshot Event
	haveSnapshot bool
}

// Subscriber is one live reader of an investigation's stream.
type Subscriber struct {
	id string
	ch chan Event
}

// ID identifies the subscriber for Unsubscribe.
func (s *Subscriber) ID() string { return s.id }

// Events returns the channel of events for this subscriber. It is closed
// when the subscriber is disconnected (by Unsubscribe or by backpressure).
func (s *Subscriber) Events() <-chan Event { return s.ch }

// NewBus builds a Bus. queueSize bounds each subscriber's channel;
// bufferLimit bounds the per-investigation catchup ring buffer. Both must
// be positive; non-positive values fall back to sane defaults.
func NewBus(queueSize, bufferLimit int) *Bus {
	if queueSize <= 0 {
		queueSize = 64
	}
	if bufferLimit <= 0 {
		bufferLimit = 500
	}
	return &Bus{
		investigations: make(map[string]*invState),
		queueSize:      queueSize,
		bufferLimit:    bufferLimit,
	}
}

// Open registers an investigation so it can accept subscribers and
// publishes. Calling Open twice for the same ID is a no-op.
func (b *Bus) Open(investigationID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.investigations[investigationID]; exists {
		return
	}
	b.investigations[investigationID] = &invState{subs: make(map[string]*Subscriber)}
}

// Close tears down an investigation: every subscriber's channel is closed
// and the investigation is forgotten. Call once the investigation reaches
// a terminal phase and all trailing events have been published.
func (b *Bus) Close(investigationID string) {
	b.mu.Lock()
	st, ok := b.investigations[investigationID]
	if ok {
		delete(b.investigations, investigationID)
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, sub := range st.subs {
		close(sub.ch)
	}
	st.subs = nil
}

// UpdateSnapshot records the event the bus should hand a late subscriber
// in place of history already evicted from the ring buffer. The
// investigation layer calls this after any state change worth
// summarizing (typically alongside hypothesis_updated/evidence_added).
func (b *Bus) UpdateSnapshot(investigationID string, snapshot Event) {
	b.mu.RLock()
	st, ok := b.investigations[investigationID]
	b.mu.RUnlock()
	if !ok {
		return
	}
	st.mu.Lock()
	st.lastSnapshot = snapshot
	st.haveSnapshot = true
	st.mu.Unlock()
}

// Subscribe registers a new subscriber for investigationID and returns it
// already caught up: if the ring buffer has overflowed since the
// investigation opened, the subscriber first receives the last recorded
// snapshot event, then every buffered event, then live events as they're
// published. No event published after Subscribe returns can be missed;
// none published before it can arrive out of order relative to catchup.
func (b *Bus) Subscribe(investigationID, subscriberID string) (*Subscriber, error) {
	b.mu.RLock()
	st, ok := b.investigations[investigationID]
	b.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownInvestigation
	}

	sub := &Subscriber{id: subscriberID, ch: make(chan Event, b.queueSize)}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.subs[subscriberID] = sub

	if st.overflowed && st.haveSnapshot {
		sub.ch <- st.lastSnapshot
	}
	for _, e := range st.buffer {
		sub.ch <- e
	}
	return sub, nil
}

// Unsubscribe disconnects a subscriber and closes its channel. Safe to
// call more than once or after the investigation has already closed.
func (b *Bus) Unsubscribe(investigationID, subscriberID string) {
	b.mu.RLock()
	st, ok := b.investigations[investigationID]
	b.mu.RUnlock()
	if !ok {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	sub, ok := st.subs[subscriberID]
	if !ok {
		return
	}
	delete(st.subs, subscriberID)
	close(sub.ch)
}

// Publish appends e to investigationID's buffer and delivers it to every
// current subscriber. A subscriber whose queue is full is disconnected
// rather than allowed to stall the publisher — its channel is closed and
// it is dropped from the investigation; the caller gets no error, matching
// the teacher's "log and move on" Broadcast semantics.
func (b *Bus) Publish(investigationID string, e Event) error {
	b.mu.RLock()
	st, ok := b.investigations[investigationID]
	b.mu.RUnlock()
	if !ok {
		return ErrUnknownInvestigation
	}

	st.mu.Lock()
	st.buffer = append(st.buffer, e)
	if len(st.buffer) > b.bufferLimit {
		drop := len(st.buffer) - b.bufferLimit
		st.buffer = st.buffer[drop:]
		st.overflowed = true
	}
	subs := make([]*Subscriber, 0, len(st.subs))
	for _, s := range st.subs {
		subs = append(subs, s)
	}
	st.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- e:
		default:
			b.disconnectSlow(investigationID, s.id)
		}
	}
	return nil
}

func (b *Bus) disconnectSlow(investigationID, subscriberID string) {
	b.mu.RLock()
	st, ok := b.investigations[investigationID]
	b.mu.RUnlock()
	if !ok {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	sub, ok := st.subs[subscriberID]
	if !ok {
		return
	}
	delete(st.subs, subscriberID)
	close(sub.ch)
}

// SubscriberCount reports how many subscribers an investigation currently
// has. Used by tests instead of sleeping.
func (b *Bus) SubscriberCount(investigationID string) int {
	b.mu.RLock()
	st, ok := b.investigations[investigationID]
	b.mu.RUnlock()
	if !ok {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.subs)
}
