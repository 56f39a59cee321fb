package domain

import (
	"fmt"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// Storage types carried by storage records.
const (
	StorageTypeBlock  = "Block"
	StorageTypeObject = "Object"
)

// RecordCommon is the shared core of both record variants. Records are
// write-once: once assembled they are never mutated, only serialized.
type RecordCommon struct {
	RecordID   string
	CreateTime time.Time

	Site       string
	Project    string
	User       string
	ResourceID string

	StartTime       time.Time
	EndTime         time.Time
	DurationSeconds int

	Region   string
	Resource string
	Zone     string

	Cost apd.Decimal
}

// ComputeUsageRecord bills one instance sub-window at its flavor rate.
type ComputeUsageRecord struct {
	RecordCommon

	Flavor          string
	AllocatedCPU    float64
	AllocatedMemory int64
	AllocatedDisk   int64

	UsedCPU         *float64
	UsedMemory      *int64
	UsedDisk        *int64
	UsedNetworkUp   *int64
	UsedNetworkDown *int64
	IOPS            *int64
}

// StorageUsageRecord bills one volume or bucket sub-window by capacity.
// AllocatedDisk is in bytes.
type StorageUsageRecord struct {
	RecordCommon

	StorageType   string
	AllocatedDisk int64
	FileCount     int64
}

// RecordSet is the ordered output of one run: compute records first, then
// storage records, matching the accounting consumer's expectations.
type RecordSet struct {
	Compute []ComputeUsageRecord
	Storage []StorageUsageRecord
}

func (rs *RecordSet) Len() int {
	return len(rs.Compute) + len(rs.Storage)
}

// ComputeRecordID derives the globally unique id of a compute record from
// site, resource and window end. The scheme is part of the downstream
// contract and must stay stable across reruns of the same window.
func ComputeRecordID(site, resourceID string, end time.Time) string {
	return fmt.Sprintf("ssc/%s/cr/%s/%d", site, resourceID, end.Unix())
}

// StorageRecordID is the storage-record counterpart of ComputeRecordID.
func StorageRecordID(site, resourceID string, end time.Time) string {
	return fmt.Sprintf("ssc/%s/sr/%s/%d", site, resourceID, end.Unix())
}

// FormatDuration renders a duration in the ISO-8601 second form the record
// consumer expects, e.g. "PT3600S".
func FormatDuration(seconds int) string {
	return fmt.Sprintf("PT%dS", seconds)
}
