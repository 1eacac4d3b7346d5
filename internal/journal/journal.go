// Package journal keeps the most recent bridge events in memory for
// diagnostics.
package journal

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/benaskins/voiceauth/internal/events"
)

// DefaultSize is the number of entries kept when New is given n <= 0.
const DefaultSize = 200

// Entry is one journaled event. Success payloads carry user data and a
// token, so only their field names are kept.
type Entry struct {
	At      time.Time `json:"at"`
	Event   string    `json:"event"`
	Payload string    `json:"payload,omitempty"`
	Fields  []string  `json:"fields,omitempty"`
}

// Ring is a thread-safe ring buffer of the last N entries.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	size    int
	pos     int
	full    bool
}

// New creates a ring that stores the last n entries.
func New(n int) *Ring {
	if n <= 0 {
		n = DefaultSize
	}
	return &Ring{
		entries: make([]Entry, n),
		size:    n,
	}
}

// Record adds ev to the ring.
func (r *Ring) Record(ev events.Event) {
	e := Entry{At: ev.At, Event: ev.Name}
	if ev.Name == events.AuthSuccess {
		e.Fields = fieldNames(ev.Payload)
	} else {
		e.Payload = ev.Payload
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.pos] = e
	r.pos = (r.pos + 1) % r.size
	if r.pos == 0 {
		r.full = true
	}
}

// Entries returns all stored entries in order, oldest first.
func (r *Ring) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		out := make([]Entry, r.pos)
		copy(out, r.entries[:r.pos])
		return out
	}

	out := make([]Entry, r.size)
	copy(out, r.entries[r.pos:])
	copy(out[r.size-r.pos:], r.entries[:r.pos])
	return out
}

// Last returns the last n entries. If fewer exist, returns all of them.
func (r *Ring) Last(n int) []Entry {
	all := r.Entries()
	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// Follow records every event emitted by e until ctx is done.
func (r *Ring) Follow(ctx context.Context, e *events.Emitter) {
	ch, cancel := e.Watch()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			r.Record(ev)
		}
	}
}

func fieldNames(payload string) []string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &obj); err != nil {
		return nil
	}
	names := make([]string, 0, len(obj))
	for k := range obj {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
