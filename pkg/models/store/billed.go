package store

import "time"

// BilledRecord is the flattened archive form of an emitted usage record.
// Cost is kept as decimal text so the archive never loses precision.
type BilledRecord struct {
	ID          string
	Kind        string // "compute" or "storage"
	ResourceID  string
	Project     string
	User        string
	Flavor      string
	StorageType string
	Zone        string
	Cost        string
	StartTime   time.Time
	EndTime     time.Time
}

// ArchiveStats summarizes what the archive holds.
type ArchiveStats struct {
	RecordsCount     int64
	FirstWindowStart *time.Time
}
