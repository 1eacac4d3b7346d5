package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benaskins/voiceauth/internal/authconfig"
	"github.com/benaskins/voiceauth/internal/bridge"
	"github.com/benaskins/voiceauth/internal/credstore"
	"github.com/benaskins/voiceauth/internal/events"
	"github.com/benaskins/voiceauth/internal/journal"
	"github.com/benaskins/voiceauth/internal/keychain"
	"github.com/benaskins/voiceauth/internal/native"
	"github.com/benaskins/voiceauth/internal/presenter"
	"github.com/benaskins/voiceauth/internal/vault"
)

type testEnv struct {
	vault  *vault.Vault
	module *native.Module
	ring   *journal.Ring
	sock   string
	client *http.Client
}

func setupTestServer(t *testing.T, opts ...native.Option) *testEnv {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	v := vault.New(keychain.NewKeyring(keychain.NewMemoryStore(), ""), credstore.NewMemoryStore())
	sub := presenter.Submission{Email: "ada@example.com", Username: "ada", Password: "abc123!x"}
	base := []native.Option{
		native.WithCredentials(v),
		native.WithRateLimit(0, 0),
		native.WithPresenter(presenter.Func(func(context.Context, authconfig.Config) (presenter.Submission, error) {
			return sub, nil
		})),
	}
	mod := native.New(append(base, opts...)...)
	t.Cleanup(mod.Close)

	ring := journal.New(50)
	go ring.Follow(ctx, mod.Events())

	srv := NewServer(mod, ring, ctx)

	// Use a random Unix socket
	sockPath := filepath.Join(t.TempDir(), "test.sock")
	go srv.ListenUnix(sockPath)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	// Wait for socket to be ready
	for i := 0; i < 20; i++ {
		if conn, err := net.Dial("unix", sockPath); err == nil {
			conn.Close()
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return net.Dial("unix", sockPath)
			},
		},
	}

	return &testEnv{vault: v, module: mod, ring: ring, sock: sockPath, client: client}
}

func TestHealthEndpoint(t *testing.T) {
	env := setupTestServer(t)

	resp, err := env.client.Get("http://voiceauth/v1/health")
	if err != nil {
		t.Fatalf("GET /v1/health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	var result map[string]string
	json.NewDecoder(resp.Body).Decode(&result)
	if result["status"] != "ok" {
		t.Errorf("expected status ok, got %q", result["status"])
	}
	if result["version"] != native.Version {
		t.Errorf("expected version %q, got %q", native.Version, result["version"])
	}
}

func TestConstantsEndpoint(t *testing.T) {
	env := setupTestServer(t)

	resp, err := env.client.Get("http://voiceauth/v1/constants")
	if err != nil {
		t.Fatalf("GET /v1/constants: %v", err)
	}
	defer resp.Body.Close()

	var c map[string]any
	json.NewDecoder(resp.Body).Decode(&c)
	if c["VERSION"] != "1.0.0" || c["AUTH_REQUEST_CODE"] != float64(1001) {
		t.Errorf("unexpected constants: %v", c)
	}
}

func TestLaunchRejectsInvalidBody(t *testing.T) {
	env := setupTestServer(t)

	resp, err := env.client.Post("http://voiceauth/v1/auth/launch", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("POST launch: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != 400 {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestLaunchAccepted(t *testing.T) {
	env := setupTestServer(t)

	resp, err := env.client.Post("http://voiceauth/v1/auth/launch", "application/json", strings.NewReader(`{"title":"Sign in"}`))
	if err != nil {
		t.Fatalf("POST launch: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 202 {
		t.Errorf("expected 202, got %d", resp.StatusCode)
	}
	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != "launched" {
		t.Errorf("status = %q", body["status"])
	}
}

func TestLaunchLayersSiteDefaults(t *testing.T) {
	got := make(chan authconfig.Config, 1)
	mod := native.New(
		native.WithRateLimit(0, 0),
		native.WithPresenter(presenter.Func(func(_ context.Context, cfg authconfig.Config) (presenter.Submission, error) {
			got <- cfg
			return presenter.Submission{}, presenter.ErrCanceled
		})),
	)
	defer mod.Close()

	srv := NewServer(mod, nil, context.Background())
	srv.SetDefaults(authconfig.Partial{
		ButtonColor: authconfig.String("112233"),
		Title:       authconfig.String("Site Title"),
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/auth/launch", "application/json", strings.NewReader(`{"title":"Sign in"}`))
	if err != nil {
		t.Fatalf("POST launch: %v", err)
	}
	resp.Body.Close()

	select {
	case cfg := <-got:
		if cfg.ButtonColor != "112233" {
			t.Errorf("ButtonColor = %q, want site default", cfg.ButtonColor)
		}
		if cfg.Title != "Voice Sign in" {
			t.Errorf("Title = %q, want caller value with security prefix", cfg.Title)
		}
		if cfg.TextColor != "000000" {
			t.Errorf("TextColor = %q, want built-in default", cfg.TextColor)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("presenter was not invoked")
	}
}

func TestClearCredentialsEndpoint(t *testing.T) {
	env := setupTestServer(t)
	env.vault.Store(context.Background(), "ada", "pw")

	clear := func() (int, map[string]any) {
		req, _ := http.NewRequest(http.MethodDelete, "http://voiceauth/v1/credentials/ada", nil)
		resp, err := env.client.Do(req)
		if err != nil {
			t.Fatalf("DELETE: %v", err)
		}
		defer resp.Body.Close()
		var body map[string]any
		json.NewDecoder(resp.Body).Decode(&body)
		return resp.StatusCode, body
	}

	if status, body := clear(); status != 200 || body["cleared"] != true {
		t.Errorf("first clear = %d %v", status, body)
	}
	if status, body := clear(); status != 200 || body["cleared"] != false {
		t.Errorf("second clear = %d %v", status, body)
	}
}

func TestClearCredentialsWithoutStorage(t *testing.T) {
	env := setupTestServer(t, native.WithCredentials(nil))

	c := DialUnix(env.sock)
	defer c.Close()
	if _, err := c.ClearCredentials(context.Background(), "ada"); !errors.Is(err, native.ErrStorageUnavailable) {
		t.Errorf("expected ErrStorageUnavailable, got %v", err)
	}
}

func TestEventStream(t *testing.T) {
	env := setupTestServer(t)

	c := DialUnix(env.sock)
	defer c.Close()

	got := make(chan events.Event, 8)
	for _, name := range []string{events.AuthError, events.AuthProgress} {
		name := name
		c.AddListener(name, func(p string) { got <- events.Event{Name: name, Payload: p} })
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	env.module.Events().Emit(events.AuthError, "line one\nline two")

	select {
	case ev := <-got:
		if ev.Name != events.AuthError || ev.Payload != "line one\nline two" {
			t.Errorf("relayed event = %+v", ev)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for relayed event")
	}
}

func TestBridgeOverSocket(t *testing.T) {
	env := setupTestServer(t)

	c := DialUnix(env.sock)
	defer c.Close()
	b := bridge.New(c, c)

	if v := b.Version(); v != "1.0.0" {
		t.Errorf("Version = %q", v)
	}

	var progress []string
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := b.AuthenticateAndWait(ctx, authconfig.Partial{}, bridge.Options{
		OnProgress: func(s string) { progress = append(progress, s) },
	})
	if err != nil {
		t.Fatalf("AuthenticateAndWait: %v", err)
	}
	if res.Username != "ada" || res.Email != "ada@example.com" || res.Token == "" {
		t.Errorf("unexpected result %+v", res)
	}
	if len(progress) == 0 || progress[0] != "Initializing voice authentication" {
		t.Errorf("progress = %v", progress)
	}

	secret, ok, err := env.vault.Retrieve(context.Background(), "ada")
	if err != nil || !ok || secret != "abc123!x" {
		t.Errorf("stored credential = (%q, %v, %v)", secret, ok, err)
	}

	cleared, err := b.ClearCredentials(context.Background(), "ada")
	if err != nil || !cleared {
		t.Errorf("ClearCredentials = (%v, %v)", cleared, err)
	}

	// Journal follows asynchronously.
	var entries []journal.Entry
	for i := 0; i < 50; i++ {
		entries, _ = c.Recent(context.Background(), 0)
		if len(entries) > 0 && entries[len(entries)-1].Event == events.AuthSuccess {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(entries) == 0 || entries[len(entries)-1].Event != events.AuthSuccess {
		t.Fatalf("journal = %+v", entries)
	}
	if last := entries[len(entries)-1]; last.Payload != "" || len(last.Fields) == 0 {
		t.Errorf("success entry should carry field names only: %+v", last)
	}
}

func blockingPresenter(started chan<- struct{}, release <-chan struct{}) native.Option {
	return native.WithPresenter(presenter.Func(func(ctx context.Context, _ authconfig.Config) (presenter.Submission, error) {
		started <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
			return presenter.Submission{}, ctx.Err()
		}
		return presenter.Submission{Username: "ada", Password: "abc123!x"}, nil
	}))
}

func TestOverlappingLaunchConflicts(t *testing.T) {
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	env := setupTestServer(t, blockingPresenter(started, release))
	defer close(release)

	resp, err := env.client.Post("http://voiceauth/v1/auth/launch", "application/json", nil)
	if err != nil {
		t.Fatalf("POST launch: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("first launch status = %d", resp.StatusCode)
	}
	<-started

	resp, err = env.client.Post("http://voiceauth/v1/auth/launch", "application/json", nil)
	if err != nil {
		t.Fatalf("POST launch: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second launch status = %d, want 409", resp.StatusCode)
	}
}

func TestBridgesOnSeparateClientsDoNotShareResults(t *testing.T) {
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	env := setupTestServer(t, blockingPresenter(started, release))

	c1 := DialUnix(env.sock)
	defer c1.Close()
	c2 := DialUnix(env.sock)
	defer c2.Close()
	b1 := bridge.New(c1, c1)
	b2 := bridge.New(c2, c2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p1, err := b1.Authenticate(ctx, authconfig.Partial{}, bridge.Options{})
	if err != nil {
		t.Fatalf("first Authenticate: %v", err)
	}
	<-started

	if _, err := b2.Authenticate(ctx, authconfig.Partial{}, bridge.Options{}); !errors.Is(err, native.ErrAuthInProgress) {
		t.Fatalf("second Authenticate = %v, want ErrAuthInProgress", err)
	}
	if n := c2.emitter.ListenerCount(""); n != 0 {
		t.Errorf("rejected bridge left %d listeners", n)
	}

	close(release)
	res, err := p1.Await(ctx)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if res.Username != "ada" {
		t.Errorf("Username = %q", res.Username)
	}
}

// startUnixServer serves h on sock with an httptest server.
func startUnixServer(t *testing.T, sock string, h http.Handler) *httptest.Server {
	t.Helper()
	ln, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ts := httptest.NewUnstartedServer(h)
	ts.Listener = ln
	ts.Start()
	return ts
}

func TestClientReconnectsAfterHostRestart(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "restart.sock")
	sub := presenter.Submission{Username: "ada", Password: "abc123!x"}
	newModule := func() *native.Module {
		m := native.New(native.WithRateLimit(0, 0), native.WithPresenter(presenter.Func(func(context.Context, authconfig.Config) (presenter.Submission, error) {
			return sub, nil
		})))
		t.Cleanup(m.Close)
		return m
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ts := startUnixServer(t, sock, NewServer(newModule(), nil, ctx).Handler())

	c := DialUnix(sock)
	defer c.Close()
	lost := make(chan string, 1)
	c.AddListener(events.AuthError, func(p string) {
		select {
		case lost <- p:
		default:
		}
	})

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ts.CloseClientConnections()
	ts.Close()

	select {
	case msg := <-lost:
		if msg != StreamLostMessage {
			t.Errorf("error event = %q, want %q", msg, StreamLostMessage)
		}
	case <-ctx.Done():
		t.Fatal("dropped stream was not reported")
	}
	if c.Connected() {
		t.Error("client still reports a connected stream")
	}

	os.Remove(sock)
	ts = startUnixServer(t, sock, NewServer(newModule(), nil, ctx).Handler())
	defer func() {
		ts.CloseClientConnections()
		ts.Close()
	}()

	res, err := bridge.New(c, c).AuthenticateAndWait(ctx, authconfig.Partial{}, bridge.Options{})
	if err != nil {
		t.Fatalf("AuthenticateAndWait after restart: %v", err)
	}
	if res.Username != "ada" {
		t.Errorf("Username = %q", res.Username)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestServer(t)
	env.module.Events().Emit(events.AuthProgress, "x")

	resp, err := env.client.Get("http://voiceauth/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), `voiceauth_events_total{event="onAuthProgress"} 1`) {
		t.Errorf("metrics missing event counter:\n%s", body)
	}
	if !strings.Contains(string(body), "voiceauth_launches_total") {
		t.Error("metrics missing launches counter")
	}
}

func TestRecentRejectsBadLimit(t *testing.T) {
	env := setupTestServer(t)

	resp, err := env.client.Get("http://voiceauth/v1/events/recent?n=abc")
	if err != nil {
		t.Fatalf("GET recent: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}
