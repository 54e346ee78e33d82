package store

import (
	"context"
	"fmt"
	"strings"
)

// Conversation is a single stored message.
type Conversation struct {
	ID        int64
	SessionID int64
	Timestamp int64
	Role      string
	Text      string
}

const conversationCols = `conversation_id, session_id, timestamp, role, text`

// AddConversation appends a message to a session and returns its id.
func (s *Store) AddConversation(ctx context.Context, sessionID int64, role, text string, ts int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (session_id, timestamp, role, text)
		VALUES (?, ?, ?, ?)`, sessionID, ts, role, text)
	if err != nil {
		return 0, fmt.Errorf("add conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("add conversation id: %w", err)
	}
	return id, nil
}

// ConversationsBySession returns a session's messages in chronological
// order. A positive limit keeps only the newest messages (still returned
// oldest first).
func (s *Store) ConversationsBySession(ctx context.Context, sessionID int64, limit int) ([]Conversation, error) {
	var query string
	args := []any{sessionID}
	if limit > 0 {
		query = `
			SELECT ` + conversationCols + ` FROM (
				SELECT ` + conversationCols + ` FROM conversations
				WHERE session_id = ?
				ORDER BY timestamp DESC, conversation_id DESC LIMIT ?
			) ORDER BY timestamp ASC, conversation_id ASC`
		args = append(args, limit)
	} else {
		query = `
			SELECT ` + conversationCols + ` FROM conversations
			WHERE session_id = ?
			ORDER BY timestamp ASC, conversation_id ASC`
	}
	return s.queryConversations(ctx, query, args...)
}

// ConversationsByTimeRange returns messages with first <= timestamp <= last
// in chronological order, capped at limit when positive.
func (s *Store) ConversationsByTimeRange(ctx context.Context, first, last int64, limit int) ([]Conversation, error) {
	query := `
		SELECT ` + conversationCols + ` FROM conversations
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC, conversation_id ASC`
	args := []any{first, last}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryConversations(ctx, query, args...)
}

// UnsummarizedConversations returns the session's messages newer than its
// latest summary, or all of them when the session has no summary yet.
func (s *Store) UnsummarizedConversations(ctx context.Context, sessionID int64) ([]Conversation, error) {
	return s.queryConversations(ctx, `
		SELECT `+conversationCols+` FROM conversations
		WHERE session_id = ?
		  AND timestamp > COALESCE(
			(SELECT MAX(last_timestamp) FROM summaries WHERE session_id = ?), -1)
		ORDER BY timestamp ASC, conversation_id ASC`, sessionID, sessionID)
}

// ConversationKeywordFilter narrows a keyword search over conversations.
// Zero values leave the corresponding dimension unbounded.
type ConversationKeywordFilter struct {
	Query          string // FTS5 match expression; empty = no text filter
	Role           string
	StartTS        int64
	EndTS          int64
	ExcludeSession int64
	Limit          int
}

// SearchConversationsByKeyword runs an FTS5 search when a query is given
// (ordered by match rank), otherwise a plain filtered scan ordered newest
// first.
func (s *Store) SearchConversationsByKeyword(ctx context.Context, f ConversationKeywordFilter) ([]Conversation, error) {
	var (
		conds []string
		args  []any
	)

	if f.Role != "" {
		conds = append(conds, "c.role = ?")
		args = append(args, f.Role)
	}
	if f.StartTS > 0 {
		conds = append(conds, "c.timestamp >= ?")
		args = append(args, f.StartTS)
	}
	if f.EndTS > 0 {
		conds = append(conds, "c.timestamp <= ?")
		args = append(args, f.EndTS)
	}
	if f.ExcludeSession > 0 {
		conds = append(conds, "c.session_id != ?")
		args = append(args, f.ExcludeSession)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 10
	}

	var query string
	if f.Query != "" {
		where := "conversations_fts MATCH ?"
		if len(conds) > 0 {
			where += " AND " + strings.Join(conds, " AND ")
		}
		query = `
			SELECT c.conversation_id, c.session_id, c.timestamp, c.role, c.text
			FROM conversations c
			JOIN conversations_fts ON conversations_fts.rowid = c.conversation_id
			WHERE ` + where + `
			ORDER BY conversations_fts.rank LIMIT ?`
		args = append([]any{f.Query}, args...)
	} else {
		where := "1=1"
		if len(conds) > 0 {
			where = strings.Join(conds, " AND ")
		}
		query = `
			SELECT c.conversation_id, c.session_id, c.timestamp, c.role, c.text
			FROM conversations c
			WHERE ` + where + `
			ORDER BY c.timestamp DESC, c.conversation_id DESC LIMIT ?`
	}
	args = append(args, limit)

	out, err := s.queryConversations(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("keyword search conversations: %w", err)
	}
	return out, nil
}

func (s *Store) queryConversations(ctx context.Context, query string, args ...any) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Timestamp, &c.Role, &c.Text); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	return out, nil
}
