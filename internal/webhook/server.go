package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/go-github/v66/github"
	"github.com/google/uuid"

	"github.com/mattjoyce/hookpull/internal/history"
	"github.com/mattjoyce/hookpull/internal/log"
)

// Server represents the webhook HTTP server.
type Server struct {
	config   Config
	syncer   Syncer
	recorder Recorder
	logger   *slog.Logger
	server   *http.Server
}

// New creates a new webhook server instance. recorder may be nil.
func New(config Config, syncer Syncer, recorder Recorder, logger *slog.Logger) *Server {
	if config.Path == "" {
		config.Path = DefaultPath
	}
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = DefaultMaxBodySize
	}
	if config.SyncTimeout <= 0 {
		config.SyncTimeout = DefaultSyncTimeout
	}

	return &Server{
		config:   config,
		syncer:   syncer,
		recorder: recorder,
		logger:   logger,
	}
}

// Start starts the webhook HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// A delivery blocks until git finishes, is killed, or the repository lock is released.
		WriteTimeout: 2*s.config.SyncTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("webhook server starting", "listen", s.config.Listen, "path", s.config.Path)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.SyncTimeout+5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

// Handler returns the HTTP router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/healthz", s.handleHealth)
	r.Post(s.config.Path, s.handleWebhook)

	return r
}

// loggingMiddleware logs HTTP requests (excludes payloads).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.respondText(w, http.StatusOK, MsgRunning)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondText(w, http.StatusOK, "OK")
}

// handleWebhook reads the delivery and hands it to the gatekeeper.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	deliveryID := github.DeliveryID(r)
	if deliveryID == "" {
		deliveryID = uuid.NewString()
	}
	logger := log.WithDelivery(s.logger, deliveryID)

	// The signature covers the exact bytes received, so capture them before any parsing.
	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxBodySize+1))
	if err != nil {
		logger.Error("failed to read request body", "error", err)
		s.respondText(w, http.StatusBadRequest, MsgReadFailed)
		return
	}
	if int64(len(body)) > s.config.MaxBodySize {
		logger.Warn("payload too large", "limit", s.config.MaxBodySize)
		s.respondText(w, http.StatusRequestEntityTooLarge, MsgPayloadTooLarge)
		return
	}

	req := Request{
		Event:      github.WebHookType(r),
		Signature:  r.Header.Get(github.SHA256SignatureHeader),
		DeliveryID: deliveryID,
		Body:       body,
	}

	received := time.Now()
	resp := s.process(r.Context(), req, logger)
	s.record(r.Context(), req, resp, received, logger)

	s.respondText(w, resp.Status, resp.Message)
}

// record stores the delivery when history is enabled. Errors are logged only.
func (s *Server) record(ctx context.Context, req Request, resp Response, received time.Time, logger *slog.Logger) {
	if s.recorder == nil {
		return
	}

	d := history.Delivery{
		DeliveryID: req.DeliveryID,
		Event:      req.Event,
		Status:     resp.Status,
		Outcome:    resp.Outcome,
		Message:    resp.Message,
		Duration:   time.Since(received),
		ReceivedAt: received,
	}
	if resp.Push != nil {
		d.Branch = resp.Push.Branch
		d.Repository = resp.Push.Repository
		d.Pusher = resp.Push.Pusher
	}
	if resp.Result != nil {
		code := resp.Result.ExitCode
		d.ExitCode = &code
	}

	// The client may already be gone; the record should still land.
	if err := s.recorder.Record(context.WithoutCancel(ctx), d); err != nil {
		logger.Error("failed to record delivery", "error", err)
	}
}

// respondText sends a plain-text response.
func (s *Server) respondText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, message)
}
