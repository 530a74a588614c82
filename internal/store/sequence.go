package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	sq "github.com/Masterminds/squirrel"
)

// sequencer numbers events across both event tables so that model calls
// and the submission they served sort together.
type sequencer struct {
	mu sync.Mutex
	db *sql.DB
	sb sq.StatementBuilderType
}

func (s *sequencer) next(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	err := s.sb.Update("event_sequence").
		Set("counter", sq.Expr("counter + 1")).
		Where(sq.Eq{"id": 1}).
		Suffix("RETURNING counter").
		RunWith(s.db).
		QueryRowContext(ctx).
		Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("next event sequence: %w", err)
	}
	return n, nil
}
