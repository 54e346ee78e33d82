package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Session is one conversation lifetime.
type Session struct {
	ID             int64
	StartTimestamp int64
	EndTimestamp   int64 // zero while active
	Status         string
}

// CreateSession inserts a new active session and returns its id.
func (s *Store) CreateSession(ctx context.Context, now int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (start_timestamp, status) VALUES (?, 'active')`, now)
	if err != nil {
		return 0, fmt.Errorf("create session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create session id: %w", err)
	}
	return id, nil
}

// ActiveSession returns the most recent active session, or ErrNotFound.
func (s *Store) ActiveSession(ctx context.Context) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, start_timestamp, end_timestamp, status
		FROM sessions WHERE status = 'active'
		ORDER BY session_id DESC LIMIT 1`)
	return scanSession(row)
}

// SessionByID returns a session by id, or ErrNotFound.
func (s *Store) SessionByID(ctx context.Context, id int64) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, start_timestamp, end_timestamp, status
		FROM sessions WHERE session_id = ?`, id)
	return scanSession(row)
}

var citationRe = regexp.MustCompile(`(?s)<blockquote>.*?</blockquote>\s*`)

// CloseSession archives a session, stamps its end time and strips
// citation blockquotes from its messages. The FTS index follows via the
// update trigger, keeping citations out of future keyword and re-index
// passes.
func (s *Store) CloseSession(ctx context.Context, id, now int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE sessions SET status = 'archived', end_timestamp = ?
		WHERE session_id = ?`, now, id)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	if err := requireAffected(res, "close session"); err != nil {
		return err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT conversation_id, text FROM conversations
		WHERE session_id = ? AND text LIKE '%<blockquote>%'`, id)
	if err != nil {
		return fmt.Errorf("close session citations: %w", err)
	}
	type cleaned struct {
		id   int64
		text string
	}
	var updates []cleaned
	for rows.Next() {
		var c cleaned
		if err := rows.Scan(&c.id, &c.text); err != nil {
			rows.Close()
			return fmt.Errorf("close session citations: %w", err)
		}
		c.text = strings.TrimSpace(citationRe.ReplaceAllString(c.text, ""))
		updates = append(updates, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("close session citations: %w", err)
	}
	rows.Close()

	for _, c := range updates {
		if _, err := tx.ExecContext(ctx, `
			UPDATE conversations SET text = ? WHERE conversation_id = ?`, c.text, c.id); err != nil {
			return fmt.Errorf("strip citations: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

// DeleteSession removes a session with its conversations, summaries and
// their embeddings. The FTS indexes follow via triggers.
func (s *Store) DeleteSession(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	defer tx.Rollback()

	steps := []string{
		`DELETE FROM vec_conversations WHERE conversation_id IN
			(SELECT conversation_id FROM conversations WHERE session_id = ?)`,
		`DELETE FROM conversations WHERE session_id = ?`,
		`DELETE FROM vec_summaries WHERE summary_id IN
			(SELECT summary_id FROM summaries WHERE session_id = ?)`,
		`DELETE FROM summaries WHERE session_id = ?`,
		`DELETE FROM sessions WHERE session_id = ?`,
	}
	for _, q := range steps {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ListSessions returns all sessions, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, start_timestamp, end_timestamp, status
		FROM sessions ORDER BY session_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

func scanSession(row *sql.Row) (Session, error) {
	var sess Session
	var end sql.NullInt64
	err := row.Scan(&sess.ID, &sess.StartTimestamp, &end, &sess.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	sess.EndTimestamp = end.Int64
	return sess, nil
}

func scanSessionRows(rows *sql.Rows) (Session, error) {
	var sess Session
	var end sql.NullInt64
	if err := rows.Scan(&sess.ID, &sess.StartTimestamp, &end, &sess.Status); err != nil {
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	sess.EndTimestamp = end.Int64
	return sess, nil
}

func requireAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}
