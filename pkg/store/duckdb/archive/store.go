package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/de-tools/billing-extract/pkg/models/store"
	"github.com/de-tools/billing-extract/pkg/store/duckdb"
)

// Store keeps a flattened copy of every emitted record so operators can
// query billed history without parsing the record files.
type Store interface {
	Add(ctx context.Context, records []store.BilledRecord) error
	Stats(ctx context.Context) (*store.ArchiveStats, error)
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

func (s *defaultStore) Add(ctx context.Context, records []store.BilledRecord) error {
	if len(records) == 0 {
		return nil
	}

	query := `
		INSERT INTO billed_records (
			id, kind, resource_id, project, user_name,
			flavor, storage_type, zone, cost, start_time, end_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	tx := duckdb.TransactionFrom(ctx)

	var stmt *sql.Stmt
	var err error
	if tx == nil {
		stmt, err = s.db.PrepareContext(ctx, query)
	} else {
		stmt, err = tx.PrepareContext(ctx, query)
	}
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err = stmt.ExecContext(ctx,
			r.ID,
			r.Kind,
			r.ResourceID,
			r.Project,
			r.User,
			r.Flavor,
			r.StorageType,
			r.Zone,
			r.Cost,
			r.StartTime,
			r.EndTime,
		)
		if err != nil {
			return fmt.Errorf("insert billed record %s: %w", r.ID, err)
		}
	}

	return nil
}

func (s *defaultStore) Stats(ctx context.Context) (*store.ArchiveStats, error) {
	query := `SELECT COUNT(*), MIN(start_time) FROM billed_records`

	var total int64
	var earliest sql.NullTime
	if err := s.db.QueryRowContext(ctx, query).Scan(&total, &earliest); err != nil {
		return nil, fmt.Errorf("archive stats: %w", err)
	}

	var first *time.Time
	if earliest.Valid {
		t := earliest.Time.UTC()
		first = &t
	}
	return &store.ArchiveStats{RecordsCount: total, FirstWindowStart: first}, nil
}
