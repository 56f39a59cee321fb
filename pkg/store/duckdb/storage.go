package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"

	"github.com/marcboeker/go-duckdb/v2"
)

// Logger state lives in one DuckDB file under the data directory: the run
// cursor and the archive of every record ever emitted.

const cursorStateSchema = `
	CREATE TABLE IF NOT EXISTS cursor_state (
		id INTEGER PRIMARY KEY,
		last_timepoint TIMESTAMP NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
`

const billedRecordsSchema = `
	CREATE TABLE IF NOT EXISTS billed_records (
		id VARCHAR NOT NULL PRIMARY KEY,
		kind VARCHAR NOT NULL,
		resource_id VARCHAR NOT NULL,
		project VARCHAR,
		user_name VARCHAR,
		flavor VARCHAR,
		storage_type VARCHAR,
		zone VARCHAR,
		cost VARCHAR,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
`

var bootQueries = []string{
	cursorStateSchema,
	billedRecordsSchema,
}

type Settings struct {
	DbPath string
}

// NewDB opens (creating if needed) the logger-state database and applies
// the schema.
func NewDB(settings Settings) (*sql.DB, error) {
	c, err := duckdb.NewConnector(fmt.Sprintf("%s?threads=2", settings.DbPath), func(exec driver.ExecerContext) error {
		for _, query := range bootQueries {
			if _, err := exec.ExecContext(context.Background(), query, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return sql.OpenDB(c), nil
}

type txKey struct{}

// WithTransaction makes tx the ambient transaction for store calls made
// with the returned context.
func WithTransaction(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TransactionFrom returns the ambient transaction, or nil.
func TransactionFrom(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}
