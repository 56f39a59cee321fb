package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/rs/zerolog"
	"golang.org/x/exp/maps"

	"github.com/de-tools/billing-extract/pkg/models/domain"
	"github.com/de-tools/billing-extract/pkg/services/deletion"
	"github.com/de-tools/billing-extract/pkg/services/identity"
	"github.com/de-tools/billing-extract/pkg/store/pricing"
)

// PlaceholderIdentity is the name emitted when a project or user id cannot
// be resolved. Downstream accounting groups these under a catch-all
// account rather than losing the usage.
const PlaceholderIdentity = "default"

const bytesPerGiB = int64(1) << 30

// ErrUnclassifiable marks an aggregate whose metric shape fits neither the
// compute nor the storage category. This is a data-integrity failure and
// aborts the run before anything is written.
var ErrUnclassifiable = errors.New("aggregate matches neither compute nor storage shape")

// Assembler turns joined usage aggregates into priced, immutable records.
type Assembler struct {
	site     string
	region   string
	resource string

	resolver *identity.Resolver
	deleted  *deletion.Index
	prices   *pricing.Table

	// flavorNames maps flavor ids and names alike to the canonical name.
	// The inventory is inconsistent about which one it records.
	flavorNames map[string]string

	now func() time.Time
}

func NewAssembler(
	site, region, resource string,
	resolver *identity.Resolver,
	deleted *deletion.Index,
	prices *pricing.Table,
	flavors []domain.Flavor,
) *Assembler {
	names := make(map[string]string, 2*len(flavors))
	for _, f := range flavors {
		names[f.ID] = f.Name
		names[f.Name] = f.Name
	}
	return &Assembler{
		site:        site,
		region:      region,
		resource:    resource,
		resolver:    resolver,
		deleted:     deleted,
		prices:      prices,
		flavorNames: names,
		now:         time.Now,
	}
}

// Assemble prices every aggregate and emits its record, tallying degraded
// conditions into summary. Compute records come out sorted before storage
// records; within each kind ordering is by resource then sub-window, so a
// rerun of the same input produces an identical file.
func (a *Assembler) Assemble(
	ctx context.Context,
	w domain.Window,
	aggregates map[domain.StatPeriodKey]*domain.UsageAggregate,
	summary *domain.RunSummary,
) (*domain.RecordSet, error) {
	logger := zerolog.Ctx(ctx)
	createTime := a.now().UTC()

	keys := maps.Keys(aggregates)
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ResourceID != keys[j].ResourceID {
			return keys[i].ResourceID < keys[j].ResourceID
		}
		return keys[i].PeriodStart.Before(keys[j].PeriodStart)
	})

	set := &domain.RecordSet{}
	for _, key := range keys {
		agg := aggregates[key]

		if a.deleted.DeletedBefore(agg.ResourceID, w.Start) {
			summary.ExcludedDeleted++
			continue
		}

		common := domain.RecordCommon{
			CreateTime:      createTime,
			Site:            a.site,
			Project:         a.resolveName(ctx, agg.ProjectID, a.resolver.ResolveProject, summary),
			User:            a.resolveName(ctx, agg.UserID, a.resolver.ResolveUser, summary),
			ResourceID:      agg.ResourceID,
			StartTime:       agg.PeriodStart,
			EndTime:         agg.PeriodEnd,
			DurationSeconds: agg.DurationSeconds,
			Region:          a.region,
			Resource:        a.resource,
			Zone:            agg.Zone,
		}

		switch agg.Classify() {
		case domain.ClassCompute:
			set.Compute = append(set.Compute, a.computeRecord(ctx, agg, common, summary))
		case domain.ClassStorage:
			set.Storage = append(set.Storage, a.storageRecord(ctx, agg, common, summary))
		default:
			return nil, fmt.Errorf("resource %s (%s): %w",
				agg.ResourceID, describeShape(agg), ErrUnclassifiable)
		}
	}

	summary.ComputeRecords = len(set.Compute)
	summary.StorageRecords = len(set.Storage)
	logger.Info().
		Int("compute", len(set.Compute)).
		Int("storage", len(set.Storage)).
		Msg("records assembled")
	return set, nil
}

func (a *Assembler) computeRecord(
	ctx context.Context,
	agg *domain.UsageAggregate,
	common domain.RecordCommon,
	summary *domain.RunSummary,
) domain.ComputeUsageRecord {
	common.RecordID = domain.ComputeRecordID(a.site, agg.ResourceID, agg.PeriodEnd)

	flavor := agg.Flavor
	if name, ok := a.flavorNames[flavor]; ok {
		flavor = name
	}

	rate, ok := a.prices.PriceCompute(flavor)
	if !ok {
		zerolog.Ctx(ctx).Warn().
			Str("resource_id", agg.ResourceID).
			Str("flavor", flavor).
			Msg("no price for flavor, billing zero")
		summary.PricingGaps++
	}
	common.Cost = rate

	var disk int64
	if agg.AllocatedDisk != nil {
		disk = gibToBytes(*agg.AllocatedDisk)
	}

	return domain.ComputeUsageRecord{
		RecordCommon:    common,
		Flavor:          flavor,
		AllocatedCPU:    *agg.AllocatedCPU,
		AllocatedMemory: int64(*agg.AllocatedMemory),
		AllocatedDisk:   disk,
	}
}

func (a *Assembler) storageRecord(
	ctx context.Context,
	agg *domain.UsageAggregate,
	common domain.RecordCommon,
	summary *domain.RunSummary,
) domain.StorageUsageRecord {
	common.RecordID = domain.StorageRecordID(a.site, agg.ResourceID, agg.PeriodEnd)

	storageType := agg.StorageType
	if storageType == "" {
		storageType = domain.StorageTypeBlock
	}

	gigabytes := *agg.AllocatedDisk
	var cost apd.Decimal
	var ok bool
	if storageType == domain.StorageTypeObject {
		cost, ok = a.prices.PriceObjectStorage(gigabytes)
	} else {
		cost, ok = a.prices.PriceBlockStorage(gigabytes)
	}
	if !ok {
		zerolog.Ctx(ctx).Warn().
			Str("resource_id", agg.ResourceID).
			Str("storage_type", storageType).
			Msg("no storage price, billing zero")
		summary.PricingGaps++
	}
	common.Cost = cost

	var files int64
	if agg.FileCount != nil {
		files = *agg.FileCount
	}

	return domain.StorageUsageRecord{
		RecordCommon:  common,
		StorageType:   storageType,
		AllocatedDisk: gibToBytes(gigabytes),
		FileCount:     files,
	}
}

func (a *Assembler) resolveName(
	ctx context.Context,
	id string,
	resolve func(context.Context, string) (domain.IdentityEntry, bool),
	summary *domain.RunSummary,
) string {
	if id == "" {
		summary.UnresolvedIdentities++
		return PlaceholderIdentity
	}
	entry, ok := resolve(ctx, id)
	if !ok {
		summary.UnresolvedIdentities++
		return PlaceholderIdentity
	}
	return entry.Name
}

func gibToBytes(gib float64) int64 {
	return int64(gib * float64(bytesPerGiB))
}

func describeShape(agg *domain.UsageAggregate) string {
	has := func(p *float64) string {
		if p != nil {
			return "+"
		}
		return "-"
	}
	return fmt.Sprintf("cpu%s mem%s disk%s",
		has(agg.AllocatedCPU), has(agg.AllocatedMemory), has(agg.AllocatedDisk))
}

// BucketAggregates synthesizes object-storage aggregates for one window
// from a bucket snapshot. Buckets have no metering sub-periods, so the
// whole window is one period per bucket.
func BucketAggregates(buckets []domain.ObjectBucket, w domain.Window) []*domain.UsageAggregate {
	aggs := make([]*domain.UsageAggregate, 0, len(buckets))
	for _, b := range buckets {
		gib := float64(b.SizeKB) * 1024 / float64(bytesPerGiB)
		count := b.ObjectCount
		aggs = append(aggs, &domain.UsageAggregate{
			ResourceID:      b.ID,
			UserID:          b.Owner,
			PeriodStart:     w.Start,
			PeriodEnd:       w.End,
			DurationSeconds: int(w.Duration().Seconds()),
			AllocatedDisk:   &gib,
			StorageType:     domain.StorageTypeObject,
			FileCount:       &count,
		})
	}
	return aggs
}
