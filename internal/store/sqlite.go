// Package store provides storage backends for questionnaire sessions.
//
// This file implements the SQLite-backed store for sessions, transcripts,
// and answers.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/CMCFame/ACEBotV2/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions is used when creating the database directory.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists questionnaire state in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store. The DSN is a file path to the
// database file; the containing directory is created if missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLiteStore ready", "dsn", cfg.DSN)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveSession(sess models.Session) error {
	args, err := sessionArgs(sess)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, company=excluded.company, branch=excluded.branch,
			phase=excluded.phase, cursor=excluded.cursor, facts_json=excluded.facts_json,
			coverage_json=excluded.coverage_json, answered_json=excluded.answered_json,
			updated_at=excluded.updated_at`, args...)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(id string) (*models.Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

func (s *SQLiteStore) ListSessions() ([]models.Session, error) {
	rows, err := s.db.Query(`SELECT ` + sessionColumns + ` FROM sessions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return collectSessions(rows)
}

func (s *SQLiteStore) DeleteSession(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer tx.Rollback()
	for _, q := range []string{
		`DELETE FROM answers WHERE session_id = ?`,
		`DELETE FROM messages WHERE session_id = ?`,
		`DELETE FROM sessions WHERE id = ?`,
	} {
		if _, err := tx.Exec(q, id); err != nil {
			return fmt.Errorf("failed to delete session %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) AddMessage(m models.Message) error {
	_, err := s.db.Exec(`INSERT INTO messages (session_id, seq, role, content, timestamp)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE session_id = ?), ?, ?, ?)`,
		m.SessionID, m.SessionID, m.Role, m.Content, m.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to add message for session %s: %w", m.SessionID, err)
	}
	return nil
}

func (s *SQLiteStore) GetMessages(sessionID string) ([]models.Message, error) {
	rows, err := s.db.Query(`SELECT session_id, seq, role, content, timestamp
		FROM messages WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages for session %s: %w", sessionID, err)
	}
	return collectMessages(rows)
}

func (s *SQLiteStore) SaveAnswer(a models.Answer) error {
	_, err := s.db.Exec(`INSERT INTO answers (session_id, question_id, topic, question, response, quality, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, question_id) DO UPDATE SET
			response=excluded.response, quality=excluded.quality`,
		a.SessionID, a.QuestionID, string(a.Topic), a.Question, a.Response, string(a.Quality), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save answer %s for session %s: %w", a.QuestionID, a.SessionID, err)
	}
	return nil
}

func (s *SQLiteStore) GetAnswers(sessionID string) ([]models.Answer, error) {
	rows, err := s.db.Query(`SELECT session_id, question_id, topic, question, response, quality, created_at
		FROM answers WHERE session_id = ? ORDER BY created_at, question_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get answers for session %s: %w", sessionID, err)
	}
	return collectAnswers(rows)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
