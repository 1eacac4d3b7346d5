// Package bridge turns the fire-and-forget native launch call and its named
// events into one settled authentication result.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/benaskins/voiceauth/internal/authconfig"
	"github.com/benaskins/voiceauth/internal/events"
	"github.com/benaskins/voiceauth/internal/native"
	"github.com/benaskins/voiceauth/internal/result"
)

// NativeModule is the invocable surface of the native module.
type NativeModule interface {
	LaunchAuth(cfg authconfig.Config) error
	ClearCredentials(ctx context.Context, identifier string) (bool, error)
	Constants() map[string]any
}

// EventSource delivers the native module's named events.
type EventSource interface {
	AddListener(event string, fn events.Listener) *events.Subscription
}

// Options apply to one Authenticate call.
type Options struct {
	// OnProgress receives progress events until the request settles.
	OnProgress func(status string)

	// Debug enables lifecycle logging for this request.
	Debug bool
}

// Bridge mediates authentication requests against a native module.
type Bridge struct {
	module NativeModule
	src    EventSource
	debug  bool
	logger *slog.Logger

	mu       sync.Mutex
	defaults authconfig.Partial
	pending  map[string]*Pending
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithDebug enables lifecycle logging for every request.
func WithDebug(debug bool) Option {
	return func(b *Bridge) { b.debug = debug }
}

// WithDefaults layers site defaults under every caller config.
func WithDefaults(p authconfig.Partial) Option {
	return func(b *Bridge) { b.defaults = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) { b.logger = l }
}

// New wires a bridge to module and its event source.
func New(module NativeModule, src EventSource, opts ...Option) *Bridge {
	b := &Bridge{
		module:  module,
		src:     src,
		logger:  slog.With("component", "bridge"),
		pending: make(map[string]*Pending),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.debug {
		b.logger.Info("bridge initialized in debug mode", "version", b.Version())
	}
	return b
}

// Link looks up the native module in reg. A missing module fails
// immediately with *LinkingError.
func Link(reg *native.Registry, opts ...Option) (*Bridge, error) {
	m, ok := reg.Lookup(native.ModuleName)
	if !ok {
		return nil, &LinkingError{Module: native.ModuleName}
	}
	return New(m, m, opts...), nil
}

// SetDefaults replaces the site defaults used by later requests.
func (b *Bridge) SetDefaults(p authconfig.Partial) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.defaults = p
}

// Authenticate normalizes cfg, subscribes to the result events and launches
// the native flow. The returned request settles on the first terminal
// event, or with ctx.Err() if ctx ends first.
func (b *Bridge) Authenticate(ctx context.Context, cfg authconfig.Partial, opts Options) (*Pending, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	debug := b.debug || opts.Debug

	b.mu.Lock()
	if len(b.pending) > 0 {
		b.mu.Unlock()
		return nil, ErrRequestInFlight
	}
	full := authconfig.Normalize(b.defaults.Merge(cfg))
	p := newPending(uuid.NewString(), b.forget)
	b.pending[p.ID()] = p
	b.mu.Unlock()

	logger := b.logger.With("request", p.ID())

	// Subscribe before launching: the module may emit synchronously. The
	// source may also deliver while a listener is being added, so no bridge
	// lock is held here.
	p.hold(b.src.AddListener(events.AuthSuccess, func(payload string) {
		res, err := result.Decode(payload)
		if err != nil {
			if p.settle(nil, err) && debug {
				logger.Error("malformed authentication result", "error", err)
			}
			return
		}
		if p.settle(res, nil) && debug {
			logger.Info("authentication successful", "user_id", res.UserID, "expires_at", res.ExpiresAt)
		}
	}))
	p.hold(b.src.AddListener(events.AuthError, func(payload string) {
		if p.settle(nil, &AuthError{Message: payload}) && debug {
			logger.Error("authentication error", "message", payload)
		}
	}))
	if opts.OnProgress != nil {
		p.hold(b.src.AddListener(events.AuthProgress, func(status string) {
			if debug {
				logger.Info("authentication progress", "status", status)
			}
			opts.OnProgress(status)
		}))
	}

	// An event delivered during subscription already decided the request.
	if p.settled() {
		return p, nil
	}

	if debug {
		logger.Info("launching authentication", "title", full.Title)
	}
	if err := b.module.LaunchAuth(full); err != nil {
		err = fmt.Errorf("launching authentication: %w", err)
		p.settle(nil, err)
		return nil, err
	}

	if done := ctx.Done(); done != nil {
		go func() {
			select {
			case <-done:
				if p.settle(nil, ctx.Err()) && debug {
					logger.Info("authentication abandoned", "error", ctx.Err())
				}
			case <-p.Done():
			}
		}()
	}
	return p, nil
}

// AuthenticateAndWait runs Authenticate and waits for the outcome.
func (b *Bridge) AuthenticateAndWait(ctx context.Context, cfg authconfig.Partial, opts Options) (*result.Result, error) {
	p, err := b.Authenticate(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}
	return p.Await(ctx)
}

// Pending returns the ids of requests whose subscriptions are still held.
func (b *Bridge) Pending() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.pending))
	for id := range b.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Cleanup releases the subscriptions of every outstanding request and
// forgets them. Outstanding requests are not settled. Safe to call at any
// time and more than once.
func (b *Bridge) Cleanup() {
	b.mu.Lock()
	stale := b.pending
	b.pending = make(map[string]*Pending)
	b.mu.Unlock()

	for _, p := range stale {
		p.release()
	}
	if b.debug {
		b.logger.Info("bridge resources cleaned up", "released", len(stale))
	}
}

// ClearCredentials deletes the stored credential for identifier.
func (b *Bridge) ClearCredentials(ctx context.Context, identifier string) (bool, error) {
	return b.module.ClearCredentials(ctx, identifier)
}

// Version returns the native module version, or "unknown".
func (b *Bridge) Version() string {
	if v, ok := b.module.Constants()["VERSION"].(string); ok && v != "" {
		return v
	}
	return "unknown"
}

func (b *Bridge) forget(p *Pending) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending[p.ID()] == p {
		delete(b.pending, p.ID())
	}
}

