package domain

import "time"

// StatGranularitySeconds is the metering sub-period length. The telemetry
// service buckets statistics into hourly periods and every downstream
// duration is derived from it.
const StatGranularitySeconds = 3600

// StatPeriodKey identifies one sub-window of measurement for one resource.
// Statistics for different meters that carry the same key belong to the
// same aggregate regardless of arrival order.
type StatPeriodKey struct {
	ResourceID  string
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// Classification is the billing category derived from which metric fields
// an aggregate ended up with.
type Classification int

const (
	ClassUnknown Classification = iota
	ClassCompute
	ClassStorage
)

// UsageAggregate accumulates per-meter statistics for one resource
// sub-window. Metric fields are pointers so that "absent" and "zero" stay
// distinguishable; merge only ever fills fields, it never overwrites them.
type UsageAggregate struct {
	ResourceID string
	ProjectID  string
	UserID     string
	Flavor     string
	Zone       string

	PeriodStart     time.Time
	PeriodEnd       time.Time
	DurationSeconds int

	AllocatedCPU    *float64
	AllocatedMemory *float64
	// AllocatedDisk is in GiB as reported by the metering service.
	AllocatedDisk *float64

	// StorageType overrides the default "Block" for storage aggregates
	// synthesized from the object store. FileCount is only known there.
	StorageType string
	FileCount   *int64
}

// Classify applies the billing-category invariant: compute needs both CPU
// and memory, storage needs disk with no compute fields at all. Everything
// else is a data-integrity problem the caller must treat as fatal.
func (a *UsageAggregate) Classify() Classification {
	switch {
	case a.AllocatedCPU != nil && a.AllocatedMemory != nil:
		return ClassCompute
	case a.AllocatedDisk != nil && a.AllocatedCPU == nil && a.AllocatedMemory == nil:
		return ClassStorage
	default:
		return ClassUnknown
	}
}

// Key returns the aggregate's join key.
func (a *UsageAggregate) Key() StatPeriodKey {
	return StatPeriodKey{ResourceID: a.ResourceID, PeriodStart: a.PeriodStart, PeriodEnd: a.PeriodEnd}
}

// Statistic is one entry of a grouped, max-aggregated statistics query for
// a single meter. The sub-period bounds come from the metering service and
// may subdivide the requested window.
type Statistic struct {
	ResourceID  string
	ProjectID   string
	UserID      string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Max         float64
}

// Resource is one entry of the resource-inventory snapshot taken at the
// start of a run.
type Resource struct {
	ID           string
	ProjectID    string
	UserID       string
	InstanceType string
	Zone         string
}

// Flavor is a named compute size class. The inventory sometimes carries
// flavor ids instead of names; the flavor list resolves them.
type Flavor struct {
	ID    string
	Name  string
	VCPUs int64
	RAM   int64
	Disk  int64
}

// IdentityEntry is a resolved project or user.
type IdentityEntry struct {
	ID   string
	Name string
}

// ObjectBucket is a usage snapshot of one object-storage bucket.
type ObjectBucket struct {
	ID          string
	Name        string
	Owner       string
	SizeKB      int64
	ObjectCount int64
}
