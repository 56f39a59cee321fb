package cursor

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/de-tools/billing-extract/pkg/store/duckdb"
)

// Store persists the single scalar this whole system pivots on: the end of
// the last successfully billed window.
type Store interface {
	// Load returns the cursor, or nil when no run has ever committed.
	Load(ctx context.Context) (*time.Time, error)
	// Advance moves the cursor forward. Only called after a fully
	// successful non-dry run.
	Advance(ctx context.Context, t time.Time) error
}

type defaultStore struct {
	db *sql.DB
}

func NewStore(db *sql.DB) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	return &defaultStore{db: db}, nil
}

func (s *defaultStore) Load(ctx context.Context) (*time.Time, error) {
	var last sql.NullTime
	err := s.db.QueryRowContext(ctx, `SELECT last_timepoint FROM cursor_state WHERE id = 0`).Scan(&last)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cursor: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	t := last.Time.UTC()
	return &t, nil
}

func (s *defaultStore) Advance(ctx context.Context, t time.Time) error {
	query := `
		INSERT INTO cursor_state (id, last_timepoint, updated_at)
		VALUES (0, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET
			last_timepoint = excluded.last_timepoint,
			updated_at = CURRENT_TIMESTAMP
	`

	var err error
	if tx := duckdb.TransactionFrom(ctx); tx != nil {
		_, err = tx.ExecContext(ctx, query, t.UTC())
	} else {
		_, err = s.db.ExecContext(ctx, query, t.UTC())
	}
	if err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}
	return nil
}
