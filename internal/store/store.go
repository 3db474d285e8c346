// Package store provides storage backends for questionnaire sessions.
//
// It includes an in-memory store for tests, an SQLite store for single-node
// deployments, and a PostgreSQL store selected by DSN scheme.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/CMCFame/ACEBotV2/internal/models"
)

// Store persists sessions, transcripts, and recorded answers.
type Store interface {
	// SaveSession inserts or updates a session record.
	SaveSession(s models.Session) error
	// GetSession retrieves a session by ID, or nil when absent.
	GetSession(id string) (*models.Session, error)
	// ListSessions returns all sessions.
	ListSessions() ([]models.Session, error)
	// DeleteSession removes a session with its transcript and answers.
	DeleteSession(id string) error
	// AddMessage appends a message to a session transcript, assigning the
	// next sequence number.
	AddMessage(m models.Message) error
	// GetMessages returns a session transcript in sequence order.
	GetMessages(sessionID string) ([]models.Message, error)
	// SaveAnswer inserts or updates the recorded answer for a question.
	SaveAnswer(a models.Answer) error
	// GetAnswers returns the recorded answers for a session in insertion order.
	GetAnswers(sessionID string) ([]models.Answer, error)
	// Close releases backend resources.
	Close() error
}

// Opts holds store configuration.
type Opts struct {
	DSN string
}

// Option configures a store backend.
type Option func(*Opts)

// WithDSN sets the database DSN. A postgres:// or postgresql:// scheme
// selects the PostgreSQL backend; anything else is treated as an SQLite file
// path.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// NewStore creates the store backend matching the configured DSN.
func NewStore(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if strings.HasPrefix(cfg.DSN, "postgres://") || strings.HasPrefix(cfg.DSN, "postgresql://") {
		return NewPostgresStore(opts...)
	}
	return NewSQLiteStore(opts...)
}

// InMemoryStore is a mutex-guarded in-memory store used in tests and as a
// fallback when no DSN is configured.
type InMemoryStore struct {
	mu       sync.Mutex
	sessions map[string]models.Session
	messages map[string][]models.Message
	answers  map[string][]models.Answer
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]models.Session),
		messages: make(map[string][]models.Message),
		answers:  make(map[string][]models.Answer),
	}
}

func (s *InMemoryStore) SaveSession(sess models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = cloneSession(sess)
	return nil
}

func (s *InMemoryStore) GetSession(id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	out := cloneSession(sess)
	return &out, nil
}

func (s *InMemoryStore) ListSessions() ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, cloneSession(sess))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	delete(s.messages, id)
	delete(s.answers, id)
	return nil
}

func (s *InMemoryStore) AddMessage(m models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.Seq = len(s.messages[m.SessionID]) + 1
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	s.messages[m.SessionID] = append(s.messages[m.SessionID], m)
	return nil
}

func (s *InMemoryStore) GetMessages(sessionID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages[sessionID]))
	copy(out, s.messages[sessionID])
	return out, nil
}

func (s *InMemoryStore) SaveAnswer(a models.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.answers[a.SessionID] {
		if existing.QuestionID == a.QuestionID {
			s.answers[a.SessionID][i] = a
			return nil
		}
	}
	s.answers[a.SessionID] = append(s.answers[a.SessionID], a)
	return nil
}

func (s *InMemoryStore) GetAnswers(sessionID string) ([]models.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Answer, len(s.answers[sessionID]))
	copy(out, s.answers[sessionID])
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }

// cloneSession deep-copies the session maps so callers own their value.
func cloneSession(sess models.Session) models.Session {
	out := sess
	if sess.Coverage != nil {
		out.Coverage = make(map[models.Topic]models.CoverageStatus, len(sess.Coverage))
		for k, v := range sess.Coverage {
			out.Coverage[k] = v
		}
	}
	if sess.Answered != nil {
		out.Answered = make(map[string]bool, len(sess.Answered))
		for k, v := range sess.Answered {
			out.Answered[k] = v
		}
	}
	if sess.Facts.OvertimeOrdered != nil {
		v := *sess.Facts.OvertimeOrdered
		out.Facts.OvertimeOrdered = &v
	}
	if sess.Facts.SingleList != nil {
		v := *sess.Facts.SingleList
		out.Facts.SingleList = &v
	}
	return out
}
