package display

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/verselink-labs/verselink-core/internal/config"
)

// State is the connection state of the stage display client.
type State string

const (
	StateUnknown      State = "unknown"
	StateTesting      State = "testing"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateError        State = "error"
)

// Status pairs the connection state with the error message carried by the
// error state.
type Status struct {
	State   State  `json:"state"`
	Message string `json:"message,omitempty"`
}

const (
	versionPath = "/v1/version"
	messagePath = "/v1/stage/message"
)

type stageMessage struct {
	Message string `json:"message"`
}

// versionInfo is the document served by the display's version endpoint. A 2xx
// response that does not carry it means the address points at something other
// than a stage display.
type versionInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Client is a thin HTTP client for the stage display system. It owns the
// connection status state machine and the bounded reconnection sequence; it
// transmits opaque text and never inspects verse structure.
type Client struct {
	cfg   config.DisplayConfig
	log   *slog.Logger
	ctx   context.Context
	httpc *http.Client
	wg    sync.WaitGroup

	mu              sync.Mutex
	address         string
	status          Status
	onStatus        []func(Status)
	reconnectCancel context.CancelFunc
}

// NewClient creates a display client. parent bounds the lifetime of any
// background reconnection sequence.
func NewClient(parent context.Context, cfg config.DisplayConfig, log *slog.Logger) *Client {
	dialer := &net.Dialer{Timeout: time.Duration(cfg.ConnectTimeoutMS) * time.Millisecond}
	return &Client{
		cfg: cfg,
		log: log.With(slog.String("component", "display")),
		ctx: parent,
		httpc: &http.Client{
			Timeout:   time.Duration(cfg.ExchangeTimeoutMS) * time.Millisecond,
			Transport: &http.Transport{DialContext: dialer.DialContext},
		},
		address: cfg.Address,
		status:  Status{State: StateUnknown},
	}
}

// Close cancels any in-flight reconnection sequence and waits for it.
func (c *Client) Close() {
	c.mu.Lock()
	cancel := c.reconnectCancel
	c.reconnectCancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

// OnStatusChange registers a subscriber invoked on every status transition.
func (c *Client) OnStatusChange(fn func(Status)) {
	c.mu.Lock()
	c.onStatus = append(c.onStatus, fn)
	c.mu.Unlock()
}

// Status returns the current connection status.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Address returns the configured base address.
func (c *Client) Address() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.address
}

// SetAddress reconfigures the base address and resets the status to unknown:
// a new target has never been tested.
func (c *Client) SetAddress(address string) {
	c.mu.Lock()
	c.address = address
	c.mu.Unlock()
	c.setStatus(Status{State: StateUnknown})
}

func (c *Client) setStatus(s Status) {
	c.mu.Lock()
	if c.status == s {
		c.mu.Unlock()
		return
	}
	c.status = s
	subs := make([]func(Status), len(c.onStatus))
	copy(subs, c.onStatus)
	c.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}

// TestConnection probes the display's version endpoint. The status always
// passes through testing before settling on connected, disconnected or error.
func (c *Client) TestConnection(ctx context.Context) bool {
	address := c.Address()
	if address == "" {
		c.setStatus(Status{State: StateError, Message: ErrNotConfigured.Error()})
		return false
	}

	c.setStatus(Status{State: StateTesting})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address+versionPath, nil)
	if err != nil {
		c.setStatus(Status{State: StateError, Message: err.Error()})
		return false
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		// A canceled probe belongs to a superseded sequence; its outcome
		// must not clobber the status owned by the newer one.
		if ctx.Err() == nil {
			c.setStatus(Status{State: StateDisconnected})
		}
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := &HTTPError{StatusCode: resp.StatusCode}
		c.setStatus(Status{State: StateError, Message: err.Error()})
		return false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		probeErr := &InvalidResponseError{Reason: err.Error()}
		c.setStatus(Status{State: StateError, Message: probeErr.Error()})
		return false
	}
	var info versionInfo
	if err := json.Unmarshal(body, &info); err != nil {
		probeErr := &InvalidResponseError{Reason: "version endpoint did not return a version document"}
		c.setStatus(Status{State: StateError, Message: probeErr.Error()})
		return false
	}

	c.log.Debug("display version probe",
		slog.String("name", info.Name),
		slog.String("version", info.Version))
	c.setStatus(Status{State: StateConnected})
	return true
}

// SendMessage delivers opaque text to the stage display. There is no retry
// inside this call: a failed send is reported immediately, and a send failure
// while connected starts the background reconnection sequence, which re-tests
// the connection but never re-sends.
func (c *Client) SendMessage(ctx context.Context, text string) error {
	address := c.Address()
	if address == "" {
		return ErrNotConfigured
	}

	body, err := json.Marshal(stageMessage{Message: text})
	if err != nil {
		return fmt.Errorf("encode stage message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, address+messagePath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build stage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		sendErr := fmt.Errorf("send stage message: %w", err)
		c.failSend(sendErr)
		return sendErr
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		sendErr := &HTTPError{StatusCode: resp.StatusCode}
		c.failSend(sendErr)
		return sendErr
	}

	c.setStatus(Status{State: StateConnected})
	return nil
}

// ClearMessage clears the stage by sending an empty message.
func (c *Client) ClearMessage(ctx context.Context) error {
	return c.SendMessage(ctx, "")
}

// failSend moves the client to the error state and, when the failure broke an
// established connection, starts the reconnection sequence.
func (c *Client) failSend(err error) {
	c.mu.Lock()
	wasConnected := c.status.State == StateConnected
	c.mu.Unlock()

	c.setStatus(Status{State: StateError, Message: err.Error()})
	if wasConnected {
		c.StartReconnect()
	}
}

// StartReconnect begins the bounded reconnection sequence: up to the
// configured number of attempts, each preceded by the configured delay, each
// attempt a connection test. The sequence stops early on the first success.
// If all attempts fail the status settles at disconnected and no further
// automatic attempts are made. Starting a new sequence cancels any prior one.
func (c *Client) StartReconnect() {
	ctx, cancel := context.WithCancel(c.ctx)

	c.mu.Lock()
	if c.reconnectCancel != nil {
		c.reconnectCancel()
	}
	c.reconnectCancel = cancel
	c.mu.Unlock()

	delay := time.Duration(c.cfg.ReconnectDelayMS) * time.Millisecond

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for attempt := 1; attempt <= c.cfg.MaxReconnectAttempts; attempt++ {
			if err := sleepCtx(ctx, delay); err != nil {
				return
			}
			if ctx.Err() != nil {
				return
			}
			c.log.Info("reconnect attempt",
				slog.Int("attempt", attempt),
				slog.Int("max", c.cfg.MaxReconnectAttempts))
			if c.TestConnection(ctx) {
				return
			}
		}
		if ctx.Err() != nil {
			return
		}
		c.log.Warn("reconnect attempts exhausted")
		c.setStatus(Status{State: StateDisconnected})
	}()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
