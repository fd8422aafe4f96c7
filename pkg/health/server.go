// Package health serves Clippy's liveness and status endpoints.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/entrhq/clippy/pkg/browser"
)

// DefaultAddr is the default listen address.
const DefaultAddr = "127.0.0.1:8080"

// Config configures the health server.
type Config struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

// DefaultConfig returns the default health server configuration.
func DefaultConfig() Config {
	return Config{Enabled: true, Addr: DefaultAddr}
}

// SessionState reports the browser session state. *browser.Manager
// implements it.
type SessionState interface {
	State() browser.State
}

// LockState reports the action lock. *lock.Manager implements it.
type LockState interface {
	IsLocked() bool
	Owner() string
}

// Status is the body of GET /health.
type Status struct {
	Status    string `json:"status"`
	Session   string `json:"session"`
	Locked    bool   `json:"locked"`
	LockOwner string `json:"lockOwner,omitempty"`
	Uptime    string `json:"uptime"`
}

// Server is the HTTP status server.
type Server struct {
	cfg     Config
	session SessionState
	lock    LockState
	logger  *zap.Logger
	started time.Time
	router  *mux.Router
}

// NewServer creates a status server.
func NewServer(cfg Config, session SessionState, lock LockState, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	s := &Server{
		cfg:     cfg,
		session: session,
		lock:    lock,
		logger:  logger,
		started: time.Now(),
	}
	s.router = s.setupRoutes()
	return s
}

// Handler returns the route handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleStatus).Methods("GET")
	r.HandleFunc("/health/live", s.handleLive).Methods("GET")
	r.Use(s.logRequests)
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := Status{
		Status:  "ok",
		Session: string(browser.StateAbsent),
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	}
	if s.session != nil {
		status.Session = string(s.session.State())
	}
	if s.lock != nil {
		status.Locked = s.lock.IsLocked()
		if status.Locked {
			status.LockOwner = s.lock.Owner()
		}
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)))
	})
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("health server listening", zap.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("health server stopped")
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
