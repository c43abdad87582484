package engine

import (
	"sync"

	"github.com/seantiz/gradbridge/internal/model"
)

// subscriberBufferSize is the channel buffer for each event subscriber.
// Events are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 16

// EventBroker fans lifecycle events out to per-session subscribers.
// It is safe for concurrent use.
//
// Closed topics are retained as markers so that subscribers arriving after a
// session unloads receive a closed channel instead of blocking forever.
type EventBroker struct {
	mu     sync.Mutex
	topics map[string]*eventTopic
}

type eventTopic struct {
	subs   map[int]chan model.LifecycleEvent
	nextID int
	closed bool
}

// NewEventBroker creates an empty broker.
func NewEventBroker() *EventBroker {
	return &EventBroker{
		topics: make(map[string]*eventTopic),
	}
}

// Subscribe returns a channel receiving events for sessionID and an
// unsubscribe function. If the session already unloaded, the channel is
// closed.
func (b *EventBroker) Subscribe(sessionID string) (<-chan model.LifecycleEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[sessionID]
	if !ok {
		t = &eventTopic{subs: make(map[int]chan model.LifecycleEvent)}
		b.topics[sessionID] = t
	}

	ch := make(chan model.LifecycleEvent, subscriberBufferSize)
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
	}
}

// Publish sends e to every subscriber of sessionID, dropping it for
// subscribers whose buffers are full.
func (b *EventBroker) Publish(sessionID string, e model.LifecycleEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[sessionID]
	if !ok || t.closed {
		return
	}

	for _, ch := range t.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Close ends the stream for sessionID. Subscriber channels are closed and
// later subscriptions get a closed channel.
func (b *EventBroker) Close(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[sessionID]
	if !ok {
		b.topics[sessionID] = &eventTopic{subs: make(map[int]chan model.LifecycleEvent), closed: true}
		return
	}

	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}
