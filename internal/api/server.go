package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/verselink-labs/verselink-core/internal/bible"
	"github.com/verselink-labs/verselink-core/internal/config"
	"github.com/verselink-labs/verselink-core/internal/display"
	"github.com/verselink-labs/verselink-core/internal/eventstore"
	"github.com/verselink-labs/verselink-core/internal/pending"
	"github.com/verselink-labs/verselink-core/internal/push"
)

// ReadyChecker reports whether the runtime's collaborators are healthy.
type ReadyChecker func() bool

// Server exposes the operator API: pending-buffer actions, display control
// and the websocket event feed.
type Server struct {
	cfg         config.HTTPConfig
	logger      *slog.Logger
	buffer      *pending.Buffer
	coordinator *push.Coordinator
	displays    *display.Client
	bibles      *bible.Store
	events      *eventstore.Store
	hub         *Hub
	ready       ReadyChecker
	upgrader    websocket.Upgrader

	httpServer *http.Server
	cancelHub  context.CancelFunc
	wg         sync.WaitGroup
}

// NewServer wires the operator API. events may be nil when auditing is
// disabled; ready may be nil, in which case readiness always passes.
func NewServer(cfg config.HTTPConfig, buffer *pending.Buffer, coordinator *push.Coordinator, displays *display.Client, bibles *bible.Store, events *eventstore.Store, ready ReadyChecker, log *slog.Logger) *Server {
	s := &Server{
		cfg:         cfg,
		logger:      log.With(slog.String("component", "api")),
		buffer:      buffer,
		coordinator: coordinator,
		displays:    displays,
		bibles:      bibles,
		events:      events,
		hub:         NewHub(log),
		ready:       ready,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Feed returns the broadcast hub so the runtime can bridge bus events onto
// connected websocket clients.
func (s *Server) Feed() *Hub {
	return s.hub
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// Router builds the chi handler. Split out from Start so tests can drive the
// routes through httptest without binding a socket.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/pending", s.handleListPending)
		r.Get("/history", s.handleListHistory)
		r.Post("/pending/current/push", s.handlePushCurrent)
		r.Post("/pending/current/ignore", s.handleIgnoreCurrent)
		r.Delete("/pending/{id}", s.handleDeletePending)
		r.Post("/pending/{id}/verse/next", s.handleNextVerse)
		r.Post("/pending/{id}/verse/previous", s.handlePreviousVerse)
		r.Put("/pending/{id}/verse", s.handleSetVerse)

		r.Post("/push/retry", s.handleRetryPush)
		r.Post("/push/dismiss", s.handleDismissResult)

		r.Get("/display/status", s.handleDisplayStatus)
		r.Post("/display/test", s.handleDisplayTest)
		r.Post("/display/clear", s.handleDisplayClear)
		r.Put("/display/address", s.handleDisplayAddress)

		r.Get("/translations", s.handleTranslations)
		r.Get("/timeline", s.handleTimeline)

		r.Get("/events", s.handleEvents)
	})

	return r
}

// Start binds the listener and serves until Close.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.cfg.Bind, strconv.Itoa(s.cfg.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bind operator api on %s: %w", addr, err)
	}

	hubCtx, cancel := context.WithCancel(context.Background())
	s.cancelHub = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.Run(hubCtx)
	}()

	s.httpServer = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("operator api terminated", slog.String("error", err.Error()))
		}
	}()

	s.logger.Info("operator api listening", slog.String("addr", addr))
	return nil
}

// Close drains in-flight requests and stops the feed hub.
func (s *Server) Close() {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Warn("operator api shutdown", slog.String("error", err.Error()))
		}
	}
	if s.cancelHub != nil {
		s.cancelHub()
	}
	s.wg.Wait()
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if s.ready != nil && !s.ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleListPending(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"pending": s.buffer.Pending(),
		"result":  s.coordinator.LastResult(),
		"pushing": s.coordinator.IsPushing(),
	})
}

func (s *Server) handleListHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"history": s.buffer.History()})
}

func (s *Server) handlePushCurrent(w http.ResponseWriter, r *http.Request) {
	if s.buffer.Current() == nil {
		writeError(w, http.StatusConflict, "pending buffer is empty")
		return
	}
	if s.coordinator.IsPushing() {
		writeError(w, http.StatusConflict, "a push is already in flight")
		return
	}
	// Failure detail travels in the transient result, not the HTTP status:
	// the operator UI shows it inline with a retry affordance.
	_ = s.coordinator.PushCurrent(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"result": s.coordinator.LastResult()})
}

func (s *Server) handleIgnoreCurrent(w http.ResponseWriter, r *http.Request) {
	v := s.buffer.IgnoreCurrent()
	if v == nil {
		writeError(w, http.StatusConflict, "pending buffer is empty")
		return
	}
	s.recordAction(r.Context(), eventstore.KindIgnored, v)
	writeJSON(w, http.StatusOK, map[string]any{"ignored": v})
}

func (s *Server) handleDeletePending(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	v := s.buffer.Remove(id)
	if v == nil {
		writeError(w, http.StatusNotFound, "no pending verse with that id")
		return
	}
	s.recordAction(r.Context(), eventstore.KindDeleted, v)
	writeJSON(w, http.StatusOK, map[string]any{"removed": v})
}

func (s *Server) handleNextVerse(w http.ResponseWriter, r *http.Request) {
	s.navigate(w, r, s.buffer.NextVerse)
}

func (s *Server) handlePreviousVerse(w http.ResponseWriter, r *http.Request) {
	s.navigate(w, r, s.buffer.PreviousVerse)
}

func (s *Server) navigate(w http.ResponseWriter, r *http.Request, move func(string) bool) {
	id := chi.URLParam(r, "id")
	if !move(id) {
		writeError(w, http.StatusNotFound, "no pending verse with that id")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"verse": s.buffer.Get(id)})
}

func (s *Server) handleSetVerse(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		Index int `json:"index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !s.buffer.SetCurrentVerse(id, body.Index) {
		writeError(w, http.StatusNotFound, "no pending verse with that id")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"verse": s.buffer.Get(id)})
}

func (s *Server) handleRetryPush(w http.ResponseWriter, r *http.Request) {
	if s.coordinator.IsPushing() {
		writeError(w, http.StatusConflict, "a push is already in flight")
		return
	}
	_ = s.coordinator.RetryLastPush(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"result": s.coordinator.LastResult()})
}

func (s *Server) handleDismissResult(w http.ResponseWriter, _ *http.Request) {
	s.coordinator.DismissResult()
	writeJSON(w, http.StatusOK, map[string]string{"status": "dismissed"})
}

func (s *Server) handleDisplayStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  s.displays.Status(),
		"address": s.displays.Address(),
	})
}

func (s *Server) handleDisplayTest(w http.ResponseWriter, r *http.Request) {
	ok := s.displays.TestConnection(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"connected": ok,
		"status":    s.displays.Status(),
	})
}

func (s *Server) handleDisplayClear(w http.ResponseWriter, r *http.Request) {
	if err := s.coordinator.ClearStage(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleDisplayAddress(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := config.ValidateDisplayAddress(body.Address); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.displays.SetAddress(body.Address)
	writeJSON(w, http.StatusOK, map[string]any{
		"address": s.displays.Address(),
		"status":  s.displays.Status(),
	})
}

func (s *Server) handleTranslations(w http.ResponseWriter, r *http.Request) {
	translations, err := s.bibles.Translations(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load translations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"translations": translations})
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	if s.events == nil {
		writeJSON(w, http.StatusOK, map[string]any{"events": []eventstore.Event{}})
		return
	}
	events, err := s.events.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load timeline")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) recordAction(ctx context.Context, kind string, v *pending.PendingVerse) {
	if s.events == nil {
		return
	}
	evt := eventstore.Event{
		Kind:        kind,
		Reference:   v.Reference.String(),
		Translation: v.Translation,
	}
	if err := s.events.Append(ctx, evt); err != nil {
		s.logger.Warn("failed to record operator action", slog.String("error", err.Error()))
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
