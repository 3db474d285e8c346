package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/CMCFame/ACEBotV2/internal/export"
	"github.com/CMCFame/ACEBotV2/internal/flow"
	"github.com/CMCFame/ACEBotV2/internal/genai"
	"github.com/CMCFame/ACEBotV2/internal/models"
	"github.com/CMCFame/ACEBotV2/internal/registry"
	"github.com/CMCFame/ACEBotV2/internal/store"
)

// DefaultAddr is the default listen address.
const DefaultAddr = ":8080"

// Opts holds server configuration.
type Opts struct {
	Addr string
	// AccessCode, when set, is required as a bearer token on all session
	// endpoints. Respondents receive it out of band.
	AccessCode string
	// Mailer, when set, enables emailed summary exports.
	Mailer export.Mailer
}

// Option configures the server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithAccessCode requires the given bearer token on session endpoints.
func WithAccessCode(code string) Option {
	return func(o *Opts) { o.AccessCode = code }
}

// WithMailer enables emailed exports through the given mailer.
func WithMailer(m export.Mailer) Option {
	return func(o *Opts) { o.Mailer = m }
}

// Server hosts the questionnaire HTTP API. Turns within one session are
// serialized by a per-session mutex; distinct sessions proceed concurrently.
type Server struct {
	reg        *registry.Registry
	st         store.Store
	ctrl       *flow.Controller
	accessCode string
	addr       string
	mailer     export.Mailer

	mu        sync.Mutex
	sessLocks map[string]*sessionLock
}

// NewServer creates the API server.
func NewServer(reg *registry.Registry, st store.Store, ai genai.ClientInterface, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		reg:        reg,
		st:         st,
		ctrl:       flow.NewController(reg, st, ai),
		accessCode: cfg.AccessCode,
		addr:       cfg.Addr,
		mailer:     cfg.Mailer,
		sessLocks:  make(map[string]*sessionLock),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("POST /sessions", s.requireAccessCode(s.createSessionHandler))
	mux.Handle("GET /sessions/{id}", s.requireAccessCode(s.getSessionHandler))
	mux.Handle("POST /sessions/{id}/messages", s.requireAccessCode(s.postMessageHandler))
	mux.Handle("GET /sessions/{id}/progress", s.requireAccessCode(s.progressHandler))
	mux.Handle("POST /sessions/{id}/summary", s.requireAccessCode(s.summaryHandler))
	mux.Handle("GET /sessions/{id}/export", s.requireAccessCode(s.exportHandler))
	return mux
}

// Run serves the API until the context is canceled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	}
}

// requireAccessCode enforces the bearer access code when one is configured.
func (s *Server) requireAccessCode(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.accessCode != "" {
			const prefix = "Bearer "
			auth := r.Header.Get("Authorization")
			if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix || auth[len(prefix):] != s.accessCode {
				slog.Warn("Server.requireAccessCode: unauthorized request", "path", r.URL.Path)
				writeJSONResponse(w, http.StatusUnauthorized, models.Error("Invalid or missing access code"))
				return
			}
		}
		next(w, r)
	})
}

// sessionLock serializes turns for one session. Entries are reference
// counted and removed once the last holder releases, so the lock map does
// not accumulate entries for expired or deleted sessions.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// lockSession acquires the turn lock for a session, creating it on demand.
func (s *Server) lockSession(id string) *sessionLock {
	s.mu.Lock()
	lock, ok := s.sessLocks[id]
	if !ok {
		lock = &sessionLock{}
		s.sessLocks[id] = lock
	}
	lock.refs++
	s.mu.Unlock()
	lock.mu.Lock()
	return lock
}

// unlockSession releases the turn lock and prunes the map entry when no other
// request is waiting on it.
func (s *Server) unlockSession(id string, lock *sessionLock) {
	lock.mu.Unlock()
	s.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(s.sessLocks, id)
	}
	s.mu.Unlock()
}
