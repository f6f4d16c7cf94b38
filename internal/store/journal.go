package store

import (
	"context"
	"fmt"

	"github.com/roach88/deployer/internal/journal"
)

// Record appends m. The message is committed before Record returns.
func (s *Store) Record(ctx context.Context, m journal.Message) error {
	payload, err := journal.Marshal(m)
	if err != nil {
		return fmt.Errorf("record %s: %w", m.Type(), err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO journal_messages (type, future_id, payload)
		VALUES (?, ?, ?)
	`, string(m.Type()), journal.FutureID(m), string(payload))
	if err != nil {
		return fmt.Errorf("record %s: %w", m.Type(), err)
	}
	return nil
}

// Read returns every message in record order.
func (s *Store) Read(ctx context.Context) ([]journal.Message, error) {
	return s.query(ctx, `SELECT seq, payload FROM journal_messages ORDER BY seq ASC`)
}

// MessagesForFuture returns the messages recorded for one future, in record
// order.
func (s *Store) MessagesForFuture(ctx context.Context, futureID string) ([]journal.Message, error) {
	return s.query(ctx, `
		SELECT seq, payload FROM journal_messages
		WHERE future_id = ?
		ORDER BY seq ASC
	`, futureID)
}

// Count returns the number of recorded messages.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM journal_messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]journal.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	defer rows.Close()

	var out []journal.Message
	for rows.Next() {
		var (
			seq     int64
			payload string
		)
		if err := rows.Scan(&seq, &payload); err != nil {
			return nil, fmt.Errorf("read journal: %w", err)
		}
		m, err := journal.Unmarshal([]byte(payload))
		if err != nil {
			return nil, fmt.Errorf("journal seq %d: %w", seq, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return out, nil
}

var _ journal.Journal = (*Store)(nil)
