package bridge

import (
	"context"
	"sync"

	"github.com/benaskins/voiceauth/internal/events"
	"github.com/benaskins/voiceauth/internal/result"
)

// Pending is one authentication request. It settles exactly once, with a
// result or an error, and releases its subscriptions when it does.
type Pending struct {
	id     string
	done   chan struct{}
	once   sync.Once
	onDone func(*Pending)

	mu       sync.Mutex
	subs     []*events.Subscription
	released bool

	res *result.Result
	err error
}

func newPending(id string, onDone func(*Pending)) *Pending {
	return &Pending{id: id, done: make(chan struct{}), onDone: onDone}
}

// ID returns the request id.
func (p *Pending) ID() string { return p.id }

// Done is closed once the request has settled.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Await blocks until the request settles or ctx is done. Giving up on ctx
// does not settle the request.
func (p *Pending) Await(ctx context.Context) (*result.Result, error) {
	select {
	case <-p.done:
		return p.res, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// hold keeps sub until the request is released. A subscription that arrives
// after release is removed at once.
func (p *Pending) hold(sub *events.Subscription) {
	p.mu.Lock()
	if !p.released {
		p.subs = append(p.subs, sub)
		sub = nil
	}
	p.mu.Unlock()
	sub.Remove()
}

func (p *Pending) settled() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// settle records the first outcome. Later calls report false.
func (p *Pending) settle(res *result.Result, err error) bool {
	settled := false
	p.once.Do(func() {
		p.res, p.err = res, err
		p.release()
		close(p.done)
		settled = true
		if p.onDone != nil {
			p.onDone(p)
		}
	})
	return settled
}

// release removes every subscription still held.
func (p *Pending) release() {
	p.mu.Lock()
	subs := p.subs
	p.subs = nil
	p.released = true
	p.mu.Unlock()

	for _, sub := range subs {
		sub.Remove()
	}
}
