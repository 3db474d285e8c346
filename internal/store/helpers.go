package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/CMCFame/ACEBotV2/internal/models"
)

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan helpers.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// marshalJSON serializes a value for a JSON text column, defaulting to "{}".
func marshalJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON column: %w", err)
	}
	if string(b) == "null" {
		return "{}", nil
	}
	return string(b), nil
}

// scanSession reads one session row. Column order must match sessionColumns.
func scanSession(row rowScanner) (*models.Session, error) {
	var (
		sess                           models.Session
		branch, phase                  string
		factsJSON, covJSON, answerJSON string
	)
	err := row.Scan(&sess.ID, &sess.Name, &sess.Company, &branch, &phase, &sess.Cursor,
		&factsJSON, &covJSON, &answerJSON, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan session row: %w", err)
	}
	sess.Branch = models.UtilityBranch(branch)
	sess.Phase = models.Phase(phase)
	if err := json.Unmarshal([]byte(factsJSON), &sess.Facts); err != nil {
		return nil, fmt.Errorf("failed to decode facts for session %s: %w", sess.ID, err)
	}
	if err := json.Unmarshal([]byte(covJSON), &sess.Coverage); err != nil {
		return nil, fmt.Errorf("failed to decode coverage for session %s: %w", sess.ID, err)
	}
	if err := json.Unmarshal([]byte(answerJSON), &sess.Answered); err != nil {
		return nil, fmt.Errorf("failed to decode answered set for session %s: %w", sess.ID, err)
	}
	return &sess, nil
}

// sessionColumns is the canonical column list shared by both SQL backends.
const sessionColumns = "id, name, company, branch, phase, cursor, facts_json, coverage_json, answered_json, created_at, updated_at"

// sessionArgs produces the insert/update arguments matching sessionColumns.
func sessionArgs(sess models.Session) ([]interface{}, error) {
	factsJSON, err := marshalJSON(sess.Facts)
	if err != nil {
		return nil, err
	}
	covJSON, err := marshalJSON(sess.Coverage)
	if err != nil {
		return nil, err
	}
	answerJSON, err := marshalJSON(sess.Answered)
	if err != nil {
		return nil, err
	}
	return []interface{}{
		sess.ID, sess.Name, sess.Company, string(sess.Branch), string(sess.Phase), sess.Cursor,
		factsJSON, covJSON, answerJSON, sess.CreatedAt, sess.UpdatedAt,
	}, nil
}

// collectSessions drains a session query result set.
func collectSessions(rows *sql.Rows) ([]models.Session, error) {
	defer rows.Close()
	var out []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	return out, nil
}

// collectMessages drains a message query result set.
func collectMessages(rows *sql.Rows) ([]models.Message, error) {
	defer rows.Close()
	var out []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.SessionID, &m.Seq, &m.Role, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	return out, nil
}

// collectAnswers drains an answer query result set.
func collectAnswers(rows *sql.Rows) ([]models.Answer, error) {
	defer rows.Close()
	var out []models.Answer
	for rows.Next() {
		var a models.Answer
		var topic, quality string
		if err := rows.Scan(&a.SessionID, &a.QuestionID, &topic, &a.Question, &a.Response, &quality, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan answer row: %w", err)
		}
		a.Topic = models.Topic(topic)
		a.Quality = models.AnswerQuality(quality)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate answer rows: %w", err)
	}
	return out, nil
}
