package metering

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/de-tools/billing-extract/pkg/models/domain"
)

// Meters queried per window. Each carries its max-aggregated allocation
// statistic; billing is for capacity reserved, not time-integrated usage.
const (
	MeterVCPUs      = "vcpus"
	MeterMemory     = "memory"
	MeterVolumeSize = "volume.size"
)

// Source is the metering-service boundary consumed by the joiner.
type Source interface {
	// GetStatistics returns per-resource statistics for one meter over the
	// window, grouped by resource/project/user, max-aggregated per
	// sub-period.
	GetStatistics(ctx context.Context, meter string, w domain.Window) ([]domain.Statistic, error)
	// GetResources returns the resource-inventory snapshot.
	GetResources(ctx context.Context) ([]domain.Resource, error)
}

// JoinResult carries the aggregates plus the joiner's degraded-condition
// tallies.
type JoinResult struct {
	Aggregates map[domain.StatPeriodKey]*domain.UsageAggregate

	// DroppedSamples counts statistics whose resource was absent from the
	// inventory snapshot.
	DroppedSamples int

	// SkippedMeters lists meters whose statistics query failed.
	SkippedMeters []string
}

// Joiner merges per-meter statistics into one aggregate per resource
// sub-window. The join is keyed on the statistic's own period bounds, so
// it is independent of both meter order and entry order.
type Joiner struct {
	source Source
}

func NewJoiner(source Source) *Joiner {
	return &Joiner{source: source}
}

// Join fetches each meter's statistics for the window and merges them.
// A failing meter query is logged and skipped; partial metering data is
// normal service behavior and must not abort the run.
func (j *Joiner) Join(ctx context.Context, w domain.Window, inventory []domain.Resource) (*JoinResult, error) {
	logger := zerolog.Ctx(ctx)

	byID := make(map[string]domain.Resource, len(inventory))
	for _, r := range inventory {
		byID[r.ID] = r
	}

	result := &JoinResult{
		Aggregates: make(map[domain.StatPeriodKey]*domain.UsageAggregate),
	}

	meters := []struct {
		name  string
		merge func(agg *domain.UsageAggregate, value float64)
	}{
		{MeterVCPUs, func(agg *domain.UsageAggregate, v float64) {
			if agg.AllocatedCPU == nil {
				agg.AllocatedCPU = &v
			}
		}},
		{MeterMemory, func(agg *domain.UsageAggregate, v float64) {
			if agg.AllocatedMemory == nil {
				agg.AllocatedMemory = &v
			}
		}},
		{MeterVolumeSize, func(agg *domain.UsageAggregate, v float64) {
			if agg.AllocatedDisk == nil {
				agg.AllocatedDisk = &v
			}
		}},
	}

	for _, meter := range meters {
		stats, err := j.source.GetStatistics(ctx, meter.name, w)
		if err != nil {
			logger.Warn().Err(err).Str("meter", meter.name).
				Msg("statistics query failed, meter skipped for this window")
			result.SkippedMeters = append(result.SkippedMeters, meter.name)
			continue
		}

		for _, stat := range stats {
			key := domain.StatPeriodKey{
				ResourceID:  stat.ResourceID,
				PeriodStart: stat.PeriodStart,
				PeriodEnd:   stat.PeriodEnd,
			}

			agg, ok := result.Aggregates[key]
			if !ok {
				res, found := byID[stat.ResourceID]
				if !found {
					logger.Warn().Str("resource_id", stat.ResourceID).Str("meter", meter.name).
						Msg("statistics sample without inventory entry, dropped")
					result.DroppedSamples++
					continue
				}
				agg = &domain.UsageAggregate{
					ResourceID:      res.ID,
					ProjectID:       res.ProjectID,
					UserID:          res.UserID,
					Flavor:          res.InstanceType,
					Zone:            res.Zone,
					PeriodStart:     stat.PeriodStart,
					PeriodEnd:       stat.PeriodEnd,
					DurationSeconds: domain.StatGranularitySeconds,
				}
				result.Aggregates[key] = agg
			}

			meter.merge(agg, stat.Max)
		}
	}

	return result, nil
}
