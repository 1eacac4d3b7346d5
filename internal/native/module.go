// Package native is the platform side of the authentication flow. It
// presents the credential form, stores the submitted password in the
// vault and reports the outcome as named events.
package native

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/benaskins/voiceauth/internal/authconfig"
	"github.com/benaskins/voiceauth/internal/events"
	"github.com/benaskins/voiceauth/internal/presenter"
	"github.com/benaskins/voiceauth/internal/result"
)

const (
	// ModuleName is the name the bridge links against.
	ModuleName = "VoiceAuthModule"

	// AuthRequestCode tags activity results belonging to the auth flow.
	AuthRequestCode = 1001

	// Version is the module version exposed in Constants.
	Version = "1.0.0"
)

// Activity result codes.
const (
	ResultOK       = -1
	ResultCanceled = 0
)

var (
	// ErrStorageUnavailable is returned by ClearCredentials when no
	// credential store is attached.
	ErrStorageUnavailable = errors.New("credential storage not initialized")

	// ErrAuthInProgress is returned by LaunchAuth while a presentation is
	// still running. There is one presentation surface, and the events
	// carry no request id, so overlapping flows could not be told apart.
	ErrAuthInProgress = errors.New("authentication already in progress")
)

// CredentialStore persists submitted passwords by username.
type CredentialStore interface {
	Store(ctx context.Context, identifier, secret string) error
	Delete(ctx context.Context, identifier string) (bool, error)
}

// ActivityResult is the outcome of one presentation.
type ActivityResult struct {
	RequestCode int
	ResultCode  int
	Data        string // JSON result, empty when none was returned
}

// Module is the native authentication module.
type Module struct {
	emitter   *events.Emitter
	presenter presenter.Presenter
	creds     CredentialStore
	now       func() time.Time
	logger    *slog.Logger

	limiterMu sync.Mutex
	limiter   *rate.Limiter

	activeMu sync.Mutex
	active   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Module.
type Option func(*Module)

// WithPresenter sets the presentation surface. Without one every launch
// fails with "No activity available".
func WithPresenter(p presenter.Presenter) Option {
	return func(m *Module) { m.presenter = p }
}

// WithCredentials attaches the credential store.
func WithCredentials(c CredentialStore) Option {
	return func(m *Module) { m.creds = c }
}

// WithRateLimit allows perSecond launches with the given burst. A
// non-positive rate disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(m *Module) { m.SetRateLimit(perSecond, burst) }
}

// WithEmitter routes events through e instead of a private emitter.
func WithEmitter(e *events.Emitter) Option {
	return func(m *Module) { m.emitter = e }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Module) { m.now = now }
}

// New creates a module. Close releases in-flight presentations.
func New(opts ...Option) *Module {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Module{
		emitter: events.NewEmitter(),
		limiter: rate.NewLimiter(rate.Every(time.Second), 3),
		now:     time.Now,
		logger:  slog.With("component", "native"),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Events returns the module's event emitter.
func (m *Module) Events() *events.Emitter { return m.emitter }

// AddListener subscribes fn to a named module event.
func (m *Module) AddListener(event string, fn events.Listener) *events.Subscription {
	return m.emitter.AddListener(event, fn)
}

// Constants returns the module constants block.
func (m *Module) Constants() map[string]any {
	return map[string]any{
		"AUTH_REQUEST_CODE": AuthRequestCode,
		"VERSION":           Version,
	}
}

// SetRateLimit replaces the launch rate limit. A non-positive rate
// disables limiting.
func (m *Module) SetRateLimit(perSecond float64, burst int) {
	m.limiterMu.Lock()
	defer m.limiterMu.Unlock()
	if perSecond <= 0 {
		m.limiter = nil
		return
	}
	if burst <= 0 {
		burst = 1
	}
	m.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
}

func (m *Module) allow() bool {
	m.limiterMu.Lock()
	defer m.limiterMu.Unlock()
	return m.limiter == nil || m.limiter.Allow()
}

// LaunchAuth starts the authentication flow and returns immediately. The
// outcome is reported only through events. It returns ErrAuthInProgress,
// without emitting anything, while an earlier presentation is running.
func (m *Module) LaunchAuth(cfg authconfig.Config) error {
	if !m.begin() {
		return ErrAuthInProgress
	}
	if !m.allow() {
		m.end()
		m.sendError("Too many authentication attempts")
		return nil
	}
	if m.presenter == nil {
		m.end()
		m.sendError("No activity available")
		return nil
	}

	enhanced := authconfig.ApplySecurityDefaults(cfg)
	m.sendProgress("Initializing voice authentication")

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.present(enhanced)
	}()

	m.logger.Debug("launched authentication", "title", enhanced.Title)
	return nil
}

// Active reports whether a presentation is running.
func (m *Module) Active() bool {
	m.activeMu.Lock()
	defer m.activeMu.Unlock()
	return m.active
}

func (m *Module) begin() bool {
	m.activeMu.Lock()
	defer m.activeMu.Unlock()
	if m.active {
		return false
	}
	m.active = true
	return true
}

func (m *Module) end() {
	m.activeMu.Lock()
	m.active = false
	m.activeMu.Unlock()
}

// present runs the form and reports its outcome. The module is marked idle
// before the terminal event goes out so a listener may launch again.
func (m *Module) present(cfg authconfig.Config) {
	sub, err := m.presenter.Present(m.ctx, cfg)

	var report func()
	switch {
	case errors.Is(err, presenter.ErrCanceled), m.ctx.Err() != nil:
		report = func() {
			m.OnActivityResult(ActivityResult{RequestCode: AuthRequestCode, ResultCode: ResultCanceled})
		}
	case err != nil:
		msg := err.Error()
		report = func() { m.sendError(msg) }
	default:
		payload, failure := m.complete(sub)
		if failure != "" {
			report = func() { m.sendError(failure) }
		} else {
			report = func() {
				m.OnActivityResult(ActivityResult{RequestCode: AuthRequestCode, ResultCode: ResultOK, Data: payload})
			}
		}
	}

	m.end()
	report()
}

// complete stores the credential and builds the result payload. A
// non-empty failure is the error message to report instead.
func (m *Module) complete(sub presenter.Submission) (payload, failure string) {
	m.sendProgress("Processing voice sample")

	switch {
	case m.creds == nil:
		m.logger.Warn("no credential store attached, credential not stored")
	case sub.Username == "":
		m.logger.Info("no username submitted, credential not stored")
	default:
		if err := m.creds.Store(m.ctx, sub.Username, sub.Password); err != nil {
			m.logger.Error("storing credential", "error", err)
			return "", "Failed to securely store credential: " + err.Error()
		}
	}

	now := m.now()
	voiceMatch := result.PlaceholderVoiceMatch
	r := &result.Result{
		UserID:     userID(sub.Username, now),
		Token:      uuid.NewString(),
		ExpiresAt:  result.ExpiresFrom(now),
		VoiceMatch: &voiceMatch,
		Email:      sub.Email,
		Username:   sub.Username,
		FirstName:  sub.FirstName,
		LastName:   sub.LastName,
	}
	payload, err := r.Encode()
	if err != nil {
		return "", "Failed to process authentication data: " + err.Error()
	}

	m.sendProgress("Authentication completed")
	return payload, ""
}

// OnActivityResult maps a presentation outcome to events. Results for other
// request codes are ignored and reported as unhandled.
func (m *Module) OnActivityResult(r ActivityResult) bool {
	if r.RequestCode != AuthRequestCode {
		return false
	}
	switch r.ResultCode {
	case ResultOK:
		if r.Data == "" {
			m.sendError("Authentication succeeded but no result data was returned")
			return true
		}
		m.onSuccess(r.Data)
	case ResultCanceled:
		m.sendError("Authentication was canceled by the user")
	default:
		m.sendError(fmt.Sprintf("Authentication failed with result code: %d", r.ResultCode))
	}
	return true
}

// onSuccess fills in userId and expiresAt when the payload lacks them.
func (m *Module) onSuccess(data string) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(data), &obj); err != nil || obj == nil {
		if err == nil {
			err = errors.New("result is not a JSON object")
		}
		m.sendError("Failed to process authentication data: " + err.Error())
		return
	}

	now := m.now()
	if _, ok := obj["userId"]; !ok {
		obj["userId"], _ = json.Marshal(fmt.Sprintf("voice_%d", now.UnixMilli()))
	}
	if _, ok := obj["expiresAt"]; !ok {
		obj["expiresAt"], _ = json.Marshal(result.ExpiresFrom(now))
	}

	enriched, err := json.Marshal(obj)
	if err != nil {
		m.sendError("Failed to process authentication data: " + err.Error())
		return
	}
	m.emitter.Emit(events.AuthSuccess, string(enriched))
	m.logger.Debug("authentication success event sent")
}

// ClearCredentials deletes the stored credential for identifier.
func (m *Module) ClearCredentials(ctx context.Context, identifier string) (bool, error) {
	if m.creds == nil {
		return false, ErrStorageUnavailable
	}
	existed, err := m.creds.Delete(ctx, identifier)
	if err != nil {
		return false, fmt.Errorf("failed to clear credentials: %w", err)
	}
	return existed, nil
}

// Close cancels in-flight presentations and waits for them to finish.
func (m *Module) Close() {
	m.cancel()
	m.wg.Wait()
}

// Wait blocks until every launched presentation has reported.
func (m *Module) Wait() {
	m.wg.Wait()
}

func (m *Module) sendError(msg string) {
	m.logger.Warn("authentication error", "message", msg)
	m.emitter.Emit(events.AuthError, msg)
}

func (m *Module) sendProgress(msg string) {
	m.logger.Debug("progress", "message", msg)
	m.emitter.Emit(events.AuthProgress, msg)
}

// userID derives a display id from the username hash and the time.
func userID(username string, now time.Time) string {
	h := fnv.New32a()
	h.Write([]byte(username))
	return fmt.Sprintf("%d_%d", h.Sum32(), now.UnixMilli())
}
