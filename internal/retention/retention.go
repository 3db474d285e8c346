// Package retention implements the data retention sweeper: abandoned sessions
// are deleted after an idle window, and completed sessions after the
// configured retention period.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/CMCFame/ACEBotV2/internal/models"
	"github.com/CMCFame/ACEBotV2/internal/store"
)

// Default retention windows.
const (
	// DefaultIdleTTL is how long an in-progress session may sit untouched
	// before it counts as abandoned.
	DefaultIdleTTL = 72 * time.Hour
	// DefaultCompletedTTL is how long completed sessions are kept after the
	// summary is emitted.
	DefaultCompletedTTL = 30 * 24 * time.Hour
	// DefaultInterval is the sweep cadence.
	DefaultInterval = time.Hour
)

// Opts holds sweeper configuration.
type Opts struct {
	IdleTTL      time.Duration
	CompletedTTL time.Duration
	Interval     time.Duration
}

// Option configures the sweeper.
type Option func(*Opts)

// WithIdleTTL overrides the abandoned-session window.
func WithIdleTTL(d time.Duration) Option {
	return func(o *Opts) { o.IdleTTL = d }
}

// WithCompletedTTL overrides the completed-session retention period.
func WithCompletedTTL(d time.Duration) Option {
	return func(o *Opts) { o.CompletedTTL = d }
}

// WithInterval overrides the sweep cadence.
func WithInterval(d time.Duration) Option {
	return func(o *Opts) { o.Interval = d }
}

// Sweeper periodically deletes expired sessions from the store.
type Sweeper struct {
	st  store.Store
	cfg Opts
}

// NewSweeper creates a retention sweeper.
func NewSweeper(st store.Store, opts ...Option) *Sweeper {
	cfg := Opts{
		IdleTTL:      DefaultIdleTTL,
		CompletedTTL: DefaultCompletedTTL,
		Interval:     DefaultInterval,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Sweeper{st: st, cfg: cfg}
}

// Run sweeps on the configured interval until the context is canceled. Call
// in a goroutine.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	slog.Info("retention.Run: sweeper started", "idleTTL", s.cfg.IdleTTL, "completedTTL", s.cfg.CompletedTTL, "interval", s.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("retention.Run: sweeper stopped")
			return
		case <-ticker.C:
			if n, err := s.SweepOnce(time.Now()); err != nil {
				slog.Error("retention.Run: sweep failed", "error", err)
			} else if n > 0 {
				slog.Info("retention.Run: sweep complete", "deleted", n)
			}
		}
	}
}

// SweepOnce deletes every session expired as of now and returns the count.
func (s *Sweeper) SweepOnce(now time.Time) (int, error) {
	sessions, err := s.st.ListSessions()
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, sess := range sessions {
		if !s.expired(sess, now) {
			continue
		}
		if err := s.st.DeleteSession(sess.ID); err != nil {
			slog.Error("retention.SweepOnce: failed to delete session", "sessionID", sess.ID, "error", err)
			continue
		}
		slog.Debug("retention.SweepOnce: session deleted", "sessionID", sess.ID, "phase", sess.Phase)
		deleted++
	}
	return deleted, nil
}

func (s *Sweeper) expired(sess models.Session, now time.Time) bool {
	idle := now.Sub(sess.UpdatedAt)
	if sess.Phase.IsTerminal() {
		return idle > s.cfg.CompletedTTL
	}
	return idle > s.cfg.IdleTTL
}
