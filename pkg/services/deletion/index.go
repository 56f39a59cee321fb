package deletion

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"
)

// Index answers whether a resource was deleted before a given point in
// time. It guards against stale measurement samples for volumes deleted
// before the metering window began, a known lag in the upstream pipeline.
type Index struct {
	deletedAt map[string]time.Time
}

// NewIndex builds an index from an in-memory snapshot.
func NewIndex(deletedAt map[string]time.Time) *Index {
	if deletedAt == nil {
		deletedAt = map[string]time.Time{}
	}
	return &Index{deletedAt: deletedAt}
}

// LoadLedger reads the append-only deletion ledger, a tab-separated file
// of resource-id and RFC 3339 deletion time. A missing file yields an
// empty index; the ledger is optional operator-maintained state.
func LoadLedger(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewIndex(nil), nil
		}
		return nil, fmt.Errorf("failed to open deletion ledger: %w", err)
	}
	defer f.Close()

	idx, err := ReadLedger(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse deletion ledger %s: %w", path, err)
	}
	return idx, nil
}

// ReadLedger parses ledger rows from r.
func ReadLedger(r io.Reader) (*Index, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.FieldsPerRecord = 2

	deletedAt := map[string]time.Time{}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, row[1])
		if err != nil {
			return nil, fmt.Errorf("bad deletion time for %s: %w", row[0], err)
		}
		// Later entries win; the ledger is append-only.
		deletedAt[row[0]] = t.UTC()
	}

	return NewIndex(deletedAt), nil
}

// DeletedBefore reports whether the resource's recorded deletion time is
// strictly earlier than t. Resources without a record are always billable.
func (ix *Index) DeletedBefore(resourceID string, t time.Time) bool {
	deleted, ok := ix.deletedAt[resourceID]
	if !ok {
		return false
	}
	return deleted.Before(t)
}

// Len returns the number of ledger entries, for run diagnostics.
func (ix *Index) Len() int {
	return len(ix.deletedAt)
}
