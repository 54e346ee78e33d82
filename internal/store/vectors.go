package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// PackEmbedding serializes a vector as little-endian float32.
func PackEmbedding(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// UnpackEmbedding deserializes a little-endian float32 blob.
func UnpackEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d not a multiple of 4", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return vec, nil
}

// PutConversationEmbedding stores (or replaces) a conversation's embedding.
func (s *Store) PutConversationEmbedding(ctx context.Context, conversationID int64, vec []float32) error {
	if err := s.checkDim(vec); err != nil {
		return fmt.Errorf("conversation embedding: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO vec_conversations (conversation_id, embedding)
		VALUES (?, ?)`, conversationID, PackEmbedding(vec)); err != nil {
		return fmt.Errorf("put conversation embedding: %w", err)
	}
	return nil
}

// PutSummaryEmbedding stores (or replaces) a summary's embedding.
func (s *Store) PutSummaryEmbedding(ctx context.Context, summaryID int64, vec []float32) error {
	if err := s.checkDim(vec); err != nil {
		return fmt.Errorf("summary embedding: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO vec_summaries (summary_id, embedding)
		VALUES (?, ?)`, summaryID, PackEmbedding(vec)); err != nil {
		return fmt.Errorf("put summary embedding: %w", err)
	}
	return nil
}

func (s *Store) checkDim(vec []float32) error {
	if s.dim > 0 && len(vec) != s.dim {
		return fmt.Errorf("dimension %d does not match configured %d", len(vec), s.dim)
	}
	return nil
}

// SummaryMatch is a summary with its distance to the query vector.
type SummaryMatch struct {
	Summary
	Distance float64
}

// ConversationMatch is a conversation with its distance to the query vector.
type ConversationMatch struct {
	Conversation
	Distance float64
}

// SearchSummariesByEmbedding returns up to limit summaries ordered by
// ascending cosine distance. Excluded ids never appear and never consume
// result slots.
func (s *Store) SearchSummariesByEmbedding(ctx context.Context, vec []float32, limit int, excludeIDs []int64) ([]SummaryMatch, error) {
	if limit <= 0 {
		return nil, nil
	}
	excluded := make(map[int64]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = true
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.summary_id, s.session_id, s.summary, s.first_timestamp, s.last_timestamp, v.embedding
		FROM vec_summaries v
		JOIN summaries s ON s.summary_id = v.summary_id`)
	if err != nil {
		return nil, fmt.Errorf("vector search summaries: %w", err)
	}
	defer rows.Close()

	var matches []SummaryMatch
	for rows.Next() {
		var m SummaryMatch
		var blob []byte
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Summary.Summary, &m.FirstTimestamp, &m.LastTimestamp, &blob); err != nil {
			return nil, fmt.Errorf("scan summary embedding: %w", err)
		}
		if excluded[m.ID] {
			continue
		}
		stored, err := UnpackEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("summary %d: %w", m.ID, err)
		}
		m.Distance = cosineDistance(vec, stored)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector search summaries: %w", err)
	}

	sortMatches(matches, func(m SummaryMatch) (float64, int64) { return m.Distance, m.ID })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// SearchConversationsByEmbedding returns up to limit conversations ordered
// by ascending cosine distance, optionally excluding one session.
func (s *Store) SearchConversationsByEmbedding(ctx context.Context, vec []float32, limit int, excludeSession int64) ([]ConversationMatch, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `
		SELECT c.conversation_id, c.session_id, c.timestamp, c.role, c.text, v.embedding
		FROM vec_conversations v
		JOIN conversations c ON c.conversation_id = v.conversation_id`
	var args []any
	if excludeSession > 0 {
		query += ` WHERE c.session_id != ?`
		args = append(args, excludeSession)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search conversations: %w", err)
	}
	defer rows.Close()

	var matches []ConversationMatch
	for rows.Next() {
		var m ConversationMatch
		var blob []byte
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Timestamp, &m.Role, &m.Text, &blob); err != nil {
			return nil, fmt.Errorf("scan conversation embedding: %w", err)
		}
		stored, err := UnpackEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("conversation %d: %w", m.ID, err)
		}
		m.Distance = cosineDistance(vec, stored)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector search conversations: %w", err)
	}

	sortMatches(matches, func(m ConversationMatch) (float64, int64) { return m.Distance, m.ID })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func sortMatches[T any](matches []T, key func(T) (float64, int64)) {
	sort.SliceStable(matches, func(i, j int) bool {
		di, ii := key(matches[i])
		dj, ij := key(matches[j])
		if di != dj {
			return di < dj
		}
		return ii < ij
	})
}

// cosineDistance is 1 - cosine similarity. Mismatched lengths or zero
// norms yield the neutral distance 1.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
