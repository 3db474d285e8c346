// Package store provides storage backends for questionnaire sessions.
//
// This file implements the PostgreSQL-backed store for sessions, transcripts,
// and answers.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "embed"

	"github.com/CMCFame/ACEBotV2/internal/models"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists questionnaire state in a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store from a postgres:// DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL database: %w", err)
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgresStore ready")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) SaveSession(sess models.Session) error {
	args, err := sessionArgs(sess)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name=EXCLUDED.name, company=EXCLUDED.company, branch=EXCLUDED.branch,
			phase=EXCLUDED.phase, cursor=EXCLUDED.cursor, facts_json=EXCLUDED.facts_json,
			coverage_json=EXCLUDED.coverage_json, answered_json=EXCLUDED.answered_json,
			updated_at=EXCLUDED.updated_at`, args...)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetSession(id string) (*models.Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

func (s *PostgresStore) ListSessions() ([]models.Session, error) {
	rows, err := s.db.Query(`SELECT ` + sessionColumns + ` FROM sessions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return collectSessions(rows)
}

func (s *PostgresStore) DeleteSession(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer tx.Rollback()
	for _, q := range []string{
		`DELETE FROM answers WHERE session_id = $1`,
		`DELETE FROM messages WHERE session_id = $1`,
		`DELETE FROM sessions WHERE id = $1`,
	} {
		if _, err := tx.Exec(q, id); err != nil {
			return fmt.Errorf("failed to delete session %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) AddMessage(m models.Message) error {
	_, err := s.db.Exec(`INSERT INTO messages (session_id, seq, role, content, timestamp)
		VALUES ($1, (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE session_id = $1), $2, $3, $4)`,
		m.SessionID, m.Role, m.Content, m.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to add message for session %s: %w", m.SessionID, err)
	}
	return nil
}

func (s *PostgresStore) GetMessages(sessionID string) ([]models.Message, error) {
	rows, err := s.db.Query(`SELECT session_id, seq, role, content, timestamp
		FROM messages WHERE session_id = $1 ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages for session %s: %w", sessionID, err)
	}
	return collectMessages(rows)
}

func (s *PostgresStore) SaveAnswer(a models.Answer) error {
	_, err := s.db.Exec(`INSERT INTO answers (session_id, question_id, topic, question, response, quality, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id, question_id) DO UPDATE SET
			response=EXCLUDED.response, quality=EXCLUDED.quality`,
		a.SessionID, a.QuestionID, string(a.Topic), a.Question, a.Response, string(a.Quality), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save answer %s for session %s: %w", a.QuestionID, a.SessionID, err)
	}
	return nil
}

func (s *PostgresStore) GetAnswers(sessionID string) ([]models.Answer, error) {
	rows, err := s.db.Query(`SELECT session_id, question_id, topic, question, response, quality, created_at
		FROM answers WHERE session_id = $1 ORDER BY created_at, question_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get answers for session %s: %w", sessionID, err)
	}
	return collectAnswers(rows)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
