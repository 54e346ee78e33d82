package store

import (
	"context"
	"fmt"
	"strings"
)

// Summary condenses a span of conversation into one record.
type Summary struct {
	ID             int64
	SessionID      int64
	Summary        string
	FirstTimestamp int64
	LastTimestamp  int64
}

const summaryCols = `summary_id, session_id, summary, first_timestamp, last_timestamp`

// AddSummary stores a summary with its time span and returns its id.
func (s *Store) AddSummary(ctx context.Context, sessionID int64, text string, firstTS, lastTS int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO summaries (session_id, summary, first_timestamp, last_timestamp)
		VALUES (?, ?, ?, ?)`, sessionID, text, firstTS, lastTS)
	if err != nil {
		return 0, fmt.Errorf("add summary: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("add summary id: %w", err)
	}
	return id, nil
}

// RecentSummaries returns the latest summaries across all sessions, newest
// first.
func (s *Store) RecentSummaries(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		return nil, nil
	}
	return s.querySummaries(ctx, `
		SELECT `+summaryCols+` FROM summaries
		ORDER BY last_timestamp DESC, summary_id DESC LIMIT ?`, limit)
}

// SummariesBySession returns a session's summaries in chronological order.
// A positive limit keeps only the newest ones (still returned oldest
// first).
func (s *Store) SummariesBySession(ctx context.Context, sessionID int64, limit int) ([]Summary, error) {
	var query string
	args := []any{sessionID}
	if limit > 0 {
		query = `
			SELECT ` + summaryCols + ` FROM (
				SELECT ` + summaryCols + ` FROM summaries
				WHERE session_id = ?
				ORDER BY last_timestamp DESC, summary_id DESC LIMIT ?
			) ORDER BY last_timestamp ASC, summary_id ASC`
		args = append(args, limit)
	} else {
		query = `
			SELECT ` + summaryCols + ` FROM summaries
			WHERE session_id = ?
			ORDER BY last_timestamp ASC, summary_id ASC`
	}
	return s.querySummaries(ctx, query, args...)
}

// SummaryKeywordFilter narrows a keyword search over summaries. Time
// bounds use overlap semantics: a summary matches when its span intersects
// [StartTS, EndTS].
type SummaryKeywordFilter struct {
	Query          string
	StartTS        int64
	EndTS          int64
	ExcludeSession int64
	Limit          int
}

// SearchSummariesByKeyword runs an FTS5 search when a query is given,
// otherwise a time-filtered scan ordered newest first.
func (s *Store) SearchSummariesByKeyword(ctx context.Context, f SummaryKeywordFilter) ([]Summary, error) {
	var (
		conds []string
		args  []any
	)
	if f.StartTS > 0 {
		conds = append(conds, "s.last_timestamp >= ?")
		args = append(args, f.StartTS)
	}
	if f.EndTS > 0 {
		conds = append(conds, "s.first_timestamp <= ?")
		args = append(args, f.EndTS)
	}
	if f.ExcludeSession > 0 {
		conds = append(conds, "s.session_id != ?")
		args = append(args, f.ExcludeSession)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 10
	}

	var query string
	if f.Query != "" {
		where := "summaries_fts MATCH ?"
		if len(conds) > 0 {
			where += " AND " + strings.Join(conds, " AND ")
		}
		query = `
			SELECT s.summary_id, s.session_id, s.summary, s.first_timestamp, s.last_timestamp
			FROM summaries s
			JOIN summaries_fts ON summaries_fts.rowid = s.summary_id
			WHERE ` + where + `
			ORDER BY summaries_fts.rank LIMIT ?`
		args = append([]any{f.Query}, args...)
	} else {
		where := "1=1"
		if len(conds) > 0 {
			where = strings.Join(conds, " AND ")
		}
		query = `
			SELECT s.summary_id, s.session_id, s.summary, s.first_timestamp, s.last_timestamp
			FROM summaries s
			WHERE ` + where + `
			ORDER BY s.last_timestamp DESC, s.summary_id DESC LIMIT ?`
	}
	args = append(args, limit)

	out, err := s.querySummaries(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("keyword search summaries: %w", err)
	}
	return out, nil
}

func (s *Store) querySummaries(ctx context.Context, query string, args ...any) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.SessionID, &sum.Summary, &sum.FirstTimestamp, &sum.LastTimestamp); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	return out, nil
}
