// Package events is the named event channel between the native module and
// the bridge. Listeners are held through scoped subscriptions that are
// released exactly once.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event names emitted by the native module.
const (
	AuthSuccess  = "onAuthSuccess"  // payload: JSON result
	AuthError    = "onAuthError"    // payload: human-readable message
	AuthProgress = "onAuthProgress" // payload: free-text status
)

const defaultChannelBuffer = 64

// Listener receives the string payload of one event.
type Listener func(payload string)

// Event is one emitted event, as seen by stream watchers.
type Event struct {
	Name    string    `json:"name"`
	Payload string    `json:"payload"`
	At      time.Time `json:"at"`
}

// Subscription is a registered listener. Remove is idempotent.
type Subscription struct {
	once   sync.Once
	remove func()
}

// NewSubscription wraps remove so that it runs at most once.
func NewSubscription(remove func()) *Subscription {
	return &Subscription{remove: remove}
}

// Remove unregisters the listener. Later calls do nothing.
func (s *Subscription) Remove() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.remove != nil {
			s.remove()
		}
	})
}

type listener struct {
	event string
	fn    Listener
}

// Emitter delivers named events to listeners and stream watchers.
type Emitter struct {
	mu        sync.RWMutex
	listeners map[uint64]listener
	watchers  map[uint64]chan Event
	seq       atomic.Uint64
}

// NewEmitter creates an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{
		listeners: make(map[uint64]listener),
		watchers:  make(map[uint64]chan Event),
	}
}

// AddListener registers fn for event.
func (e *Emitter) AddListener(event string, fn Listener) *Subscription {
	id := e.seq.Add(1)

	e.mu.Lock()
	e.listeners[id] = listener{event: event, fn: fn}
	e.mu.Unlock()

	return NewSubscription(func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	})
}

// Emit delivers payload to every listener registered for event, in the
// caller's goroutine, then to watchers. Listeners may add or remove
// subscriptions while being called.
func (e *Emitter) Emit(event, payload string) {
	e.mu.RLock()
	var fns []Listener
	for _, l := range e.listeners {
		if l.event == event {
			fns = append(fns, l.fn)
		}
	}
	ev := Event{Name: event, Payload: payload, At: time.Now().UTC()}
	for _, ch := range e.watchers {
		select {
		case ch <- ev:
		default:
			// slow watcher: drop
		}
	}
	e.mu.RUnlock()

	for _, fn := range fns {
		fn(payload)
	}
}

// Watch returns a channel receiving every emitted event and a cancel
// function. Events are dropped for a watcher whose buffer is full.
func (e *Emitter) Watch() (<-chan Event, func()) {
	id := e.seq.Add(1)
	ch := make(chan Event, defaultChannelBuffer)

	e.mu.Lock()
	e.watchers[id] = ch
	e.mu.Unlock()

	sub := NewSubscription(func() {
		e.mu.Lock()
		delete(e.watchers, id)
		e.mu.Unlock()
	})
	return ch, sub.Remove
}

// ListenerCount returns the number of listeners registered for event, or
// for all events when event is empty.
func (e *Emitter) ListenerCount(event string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if event == "" {
		return len(e.listeners)
	}
	n := 0
	for _, l := range e.listeners {
		if l.event == event {
			n++
		}
	}
	return n
}
