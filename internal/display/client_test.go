package display

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/verselink-labs/verselink-core/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig(address string) config.DisplayConfig {
	return config.DisplayConfig{
		Address:              address,
		ConnectTimeoutMS:     1000,
		ExchangeTimeoutMS:    2000,
		MaxReconnectAttempts: 3,
		ReconnectDelayMS:     5,
	}
}

func writeVersionDoc(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"name":"stage display","version":"1.0"}`))
}

func newTestClient(t *testing.T, address string) *Client {
	t.Helper()
	c := NewClient(context.Background(), testConfig(address), newLogger())
	t.Cleanup(c.Close)
	return c
}

func awaitState(t *testing.T, c *Client, want State) Status {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := c.Status(); s.State == want {
			return s
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("status never reached %q, last %+v", want, c.Status())
	return Status{}
}

func TestTestConnectionSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != versionPath {
			http.NotFound(w, r)
			return
		}
		writeVersionDoc(w)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	var seen []State
	c.OnStatusChange(func(s Status) { seen = append(seen, s.State) })

	if !c.TestConnection(context.Background()) {
		t.Fatal("expected successful probe")
	}
	if c.Status().State != StateConnected {
		t.Fatalf("expected connected, got %+v", c.Status())
	}
	if len(seen) != 2 || seen[0] != StateTesting || seen[1] != StateConnected {
		t.Fatalf("expected testing then connected, got %v", seen)
	}
}

func TestTestConnectionTransportFailure(t *testing.T) {
	// Closed server: connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url)
	if c.TestConnection(context.Background()) {
		t.Fatal("expected probe failure")
	}
	if c.Status().State != StateDisconnected {
		t.Fatalf("expected disconnected, got %+v", c.Status())
	}
}

func TestTestConnectionHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if c.TestConnection(context.Background()) {
		t.Fatal("expected probe failure")
	}
	s := c.Status()
	if s.State != StateError || s.Message == "" {
		t.Fatalf("expected error state with message, got %+v", s)
	}
}

func TestTestConnectionMalformedVersionBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>not a display</html>"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if c.TestConnection(context.Background()) {
		t.Fatal("expected probe failure on malformed version body")
	}
	s := c.Status()
	if s.State != StateError {
		t.Fatalf("expected error state, got %+v", s)
	}
	want := (&InvalidResponseError{Reason: "version endpoint did not return a version document"}).Error()
	if s.Message != want {
		t.Fatalf("expected %q, got %q", want, s.Message)
	}
}

func TestTestConnectionNotConfigured(t *testing.T) {
	c := newTestClient(t, "")
	if c.TestConnection(context.Background()) {
		t.Fatal("expected failure without address")
	}
	if c.Status().State != StateError {
		t.Fatalf("expected error state, got %+v", c.Status())
	}
}

func TestSendMessagePutsJSON(t *testing.T) {
	var gotMethod, gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if err := c.SendMessage(context.Background(), "John 3:16 (KJV)\nFor God so loved the world"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if gotMethod != http.MethodPut || gotPath != messagePath {
		t.Fatalf("unexpected request: %s %s", gotMethod, gotPath)
	}
	var msg stageMessage
	if err := json.Unmarshal([]byte(gotBody), &msg); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if msg.Message == "" {
		t.Fatal("message missing from body")
	}
	if c.Status().State != StateConnected {
		t.Fatalf("successful send should mark connected, got %+v", c.Status())
	}
}

func TestClearMessageSendsEmptyString(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if err := c.ClearMessage(context.Background()); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if gotBody != `{"message":""}` {
		t.Fatalf("unexpected body: %s", gotBody)
	}
}

func TestSendMessageNotConfigured(t *testing.T) {
	c := newTestClient(t, "")
	if err := c.SendMessage(context.Background(), "hi"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSendMessageHTTPErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	err := c.SendMessage(context.Background(), "hi")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected HTTPError 502, got %v", err)
	}
}

func TestFailedSendWhileConnectedReconnects(t *testing.T) {
	var failing atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if r.Method == http.MethodGet {
			writeVersionDoc(w)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if !c.TestConnection(context.Background()) {
		t.Fatal("initial probe failed")
	}

	failing.Store(true)
	if err := c.SendMessage(context.Background(), "hi"); err == nil {
		t.Fatal("expected send failure")
	}
	// Recover before the attempts run out; the sequence should settle on
	// connected without any manual action.
	failing.Store(false)
	awaitState(t, c, StateConnected)
}

func TestReconnectExhaustionSettlesDisconnected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	// Force connected, then break everything.
	c.setStatus(Status{State: StateConnected})
	if err := c.SendMessage(context.Background(), "hi"); err == nil {
		t.Fatal("expected send failure")
	}
	awaitState(t, c, StateDisconnected)
	// No further automatic attempts: status stays put.
	time.Sleep(30 * time.Millisecond)
	if c.Status().State != StateDisconnected {
		t.Fatalf("status moved after exhaustion: %+v", c.Status())
	}
}

func TestSetAddressResetsStatus(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:9")
	c.setStatus(Status{State: StateConnected})
	c.SetAddress("http://127.0.0.1:10")
	if c.Status().State != StateUnknown {
		t.Fatalf("expected unknown after address change, got %+v", c.Status())
	}
}
