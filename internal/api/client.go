package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/benaskins/voiceauth/internal/authconfig"
	"github.com/benaskins/voiceauth/internal/events"
	"github.com/benaskins/voiceauth/internal/journal"
	"github.com/benaskins/voiceauth/internal/native"
)

const requestTimeout = 30 * time.Second

// StreamLostMessage is the error event payload emitted locally when the event
// stream ends without Close being called.
const StreamLostMessage = "Lost connection to the voiceauth host"

// Client drives a remote native module through the API. It implements the
// bridge's module and event source contracts: events received on the
// stream are re-emitted locally.
type Client struct {
	http    *http.Client
	base    string
	emitter *events.Emitter
	logger  *slog.Logger

	mu           sync.Mutex
	streamCancel context.CancelFunc
	streamDone   chan struct{}
}

// NewClient returns a client for the API at baseURL using hc.
func NewClient(hc *http.Client, baseURL string) *Client {
	return &Client{
		http:    hc,
		base:    strings.TrimRight(baseURL, "/"),
		emitter: events.NewEmitter(),
		logger:  slog.With("component", "api-client"),
	}
}

// DialUnix returns a client for the API served on a Unix socket.
func DialUnix(socketPath string) *Client {
	hc := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
	}
	return NewClient(hc, "http://voiceauth")
}

// AddListener subscribes fn to an event relayed from the server.
func (c *Client) AddListener(event string, fn events.Listener) *events.Subscription {
	return c.emitter.AddListener(event, fn)
}

// Connect opens the event stream and returns once the server has
// registered it. Calling Connect on a connected client does nothing. A
// stream that has ended is dialled again.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.streamCancel != nil {
		return nil
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, c.base+"/v1/events", nil)
	if err != nil {
		cancel()
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	type opened struct {
		resp *http.Response
		err  error
	}
	ch := make(chan opened, 1)
	go func() {
		resp, err := c.http.Do(req)
		ch <- opened{resp, err}
	}()

	var resp *http.Response
	select {
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	case o := <-ch:
		if o.err != nil {
			cancel()
			return fmt.Errorf("connecting to event stream: %w (is voiceauth serve running?)", o.err)
		}
		resp = o.resp
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		cancel()
		return apiError(resp)
	}

	reader := bufio.NewReader(resp.Body)
	// The first frame is the ": connected" comment.
	if _, err := reader.ReadString('\n'); err != nil {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("reading event stream: %w", err)
	}

	done := make(chan struct{})
	c.streamCancel = cancel
	c.streamDone = done
	go func() {
		defer close(done)
		c.relay(reader)
		resp.Body.Close()

		c.mu.Lock()
		current := c.streamDone == done
		if current {
			c.streamCancel, c.streamDone = nil, nil
		}
		c.mu.Unlock()

		// Close clears the fields before cancelling, so a current stream
		// ending here was dropped by the host.
		if current {
			cancel()
			c.logger.Warn("event stream lost")
			c.emitter.Emit(events.AuthError, StreamLostMessage)
		}
	}()
	return nil
}

// Connected reports whether the event stream is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streamDone != nil
}

// relay parses Server-Sent Events and re-emits them.
func (c *Client) relay(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	var name string
	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if name != "" {
				c.emitter.Emit(name, strings.Join(data, "\n"))
			}
			name, data = "", nil
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Debug("event stream closed", "error", err)
	}
}

// Close ends the event stream.
func (c *Client) Close() {
	c.mu.Lock()
	cancel, done := c.streamCancel, c.streamDone
	c.streamCancel, c.streamDone = nil, nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// LaunchAuth asks the server to start the authentication flow. The event
// stream is connected first so no event is missed.
func (c *Client) LaunchAuth(cfg authconfig.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := c.Connect(ctx); err != nil {
		return err
	}
	body, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, "/v1/auth/launch", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusAccepted:
		return nil
	case http.StatusConflict:
		return native.ErrAuthInProgress
	default:
		return apiError(resp)
	}
}

// ClearCredentials deletes the credential stored for identifier.
func (c *Client) ClearCredentials(ctx context.Context, identifier string) (bool, error) {
	resp, err := c.do(ctx, http.MethodDelete, "/v1/credentials/"+url.PathEscape(identifier), nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusServiceUnavailable:
		return false, native.ErrStorageUnavailable
	default:
		return false, apiError(resp)
	}

	var out struct {
		Cleared bool `json:"cleared"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("decoding response: %w", err)
	}
	return out.Cleared, nil
}

// Constants returns the remote module constants, or nil if the server
// cannot be reached.
func (c *Client) Constants() map[string]any {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var out map[string]any
	if err := c.getJSON(ctx, "/v1/constants", &out); err != nil {
		c.logger.Debug("fetching constants", "error", err)
		return nil
	}
	return out
}

// Recent returns up to n recent journal entries from the server.
func (c *Client) Recent(ctx context.Context, n int) ([]journal.Entry, error) {
	var out []journal.Entry
	err := c.getJSON(ctx, fmt.Sprintf("/v1/events/recent?n=%d", n), &out)
	return out, err
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) (map[string]string, error) {
	var out map[string]string
	err := c.getJSON(ctx, "/v1/health", &out)
	return out, err
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connecting to voiceauth: %w (is voiceauth serve running?)", err)
	}
	return resp, nil
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return fmt.Errorf("API error %d: %s", resp.StatusCode, e.Error)
	}
	return fmt.Errorf("API error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
