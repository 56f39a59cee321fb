package domain

// RunSummary collects the operability counters of one run. Degraded
// conditions never abort a run; they end up here instead.
type RunSummary struct {
	Window Window
	NoWork bool
	DryRun bool

	ComputeRecords int
	StorageRecords int

	// ExcludedDeleted counts aggregates dropped because the resource was
	// deleted before the window started. Tallied, never reported per record.
	ExcludedDeleted int

	// DroppedSamples counts statistics entries whose resource was missing
	// from the inventory snapshot.
	DroppedSamples int

	// UnresolvedIdentities counts records emitted with a placeholder
	// project or user.
	UnresolvedIdentities int

	// PricingGaps counts records billed at zero because the cost table had
	// no entry for their pricing key.
	PricingGaps int

	// SkippedMeters lists meters whose statistics query failed for the
	// window and were omitted.
	SkippedMeters []string

	OutputFile string
}
