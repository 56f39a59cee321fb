package billing

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/de-tools/billing-extract/pkg/adapters"
	"github.com/de-tools/billing-extract/pkg/models/domain"
	"github.com/de-tools/billing-extract/pkg/services/deletion"
	"github.com/de-tools/billing-extract/pkg/services/identity"
	"github.com/de-tools/billing-extract/pkg/services/metering"
	"github.com/de-tools/billing-extract/pkg/services/window"
	"github.com/de-tools/billing-extract/pkg/store/duckdb"
	"github.com/de-tools/billing-extract/pkg/store/duckdb/archive"
	"github.com/de-tools/billing-extract/pkg/store/duckdb/cursor"
	"github.com/de-tools/billing-extract/pkg/store/pricing"
)

// Sources is everything a run needs from the cloud services once
// authenticated. A single session implements all of it.
type Sources interface {
	metering.Source
	identity.Directory
	ListFlavors(ctx context.Context) ([]domain.Flavor, error)
}

// Dialer authenticates and returns the run's sources. Dialing happens
// after planning so that a no-work run never touches the network.
type Dialer func(ctx context.Context) (Sources, error)

// ObjectSource provides the optional object-storage bucket snapshot.
type ObjectSource interface {
	BucketStats(ctx context.Context) ([]domain.ObjectBucket, error)
}

// RecordWriter publishes one run's record set.
type RecordWriter interface {
	Write(ctx context.Context, set *domain.RecordSet, windowEnd time.Time) (string, error)
}

// Settings are the per-deployment constants of the pipeline.
type Settings struct {
	Site     string
	Region   string
	Resource string

	// CostsPath is the cost definition file, LedgerPath the optional
	// deletion ledger.
	CostsPath  string
	LedgerPath string
}

// RunOptions select the behavior of one invocation.
type RunOptions struct {
	Mode   window.Mode
	DryRun bool
}

// Controller drives one billing pass end to end: plan the window, fetch,
// join, assemble, write the records file and commit the cursor. Stages run
// strictly in order; a dry run stops before anything is persisted.
type Controller struct {
	settings Settings

	db      *sql.DB
	cursor  cursor.Store
	archive archive.Store

	dial    Dialer
	objects ObjectSource
	writer  RecordWriter

	now func() time.Time
}

func NewController(
	settings Settings,
	db *sql.DB,
	cursorStore cursor.Store,
	archiveStore archive.Store,
	dial Dialer,
	objects ObjectSource,
	writer RecordWriter,
) *Controller {
	return &Controller{
		settings: settings,
		db:       db,
		cursor:   cursorStore,
		archive:  archiveStore,
		dial:     dial,
		objects:  objects,
		writer:   writer,
		now:      time.Now,
	}
}

// Run executes one billing pass. The returned summary is valid even on a
// no-work run; on error nothing has been committed and the next run
// retries the same window.
func (c *Controller) Run(ctx context.Context, opts RunOptions) (*domain.RunSummary, error) {
	logger := zerolog.Ctx(ctx).With().
		Str("run_id", uuid.NewString()).
		Str("mode", string(opts.Mode)).
		Logger()
	ctx = logger.WithContext(ctx)

	summary := &domain.RunSummary{DryRun: opts.DryRun}

	last, err := c.cursor.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cursor: %w", err)
	}

	w, ok := window.Plan(last, c.now().UTC(), opts.Mode)
	if !ok {
		logger.Info().Msg("no complete hour to bill yet")
		summary.NoWork = true
		return summary, nil
	}
	summary.Window = w
	logger.Info().
		Time("start", w.Start).
		Time("end", w.End).
		Msg("billing window planned")

	prices, err := pricing.Load(c.settings.CostsPath, c.settings.Region)
	if err != nil {
		return nil, err
	}
	deleted, err := deletion.LoadLedger(c.settings.LedgerPath)
	if err != nil {
		return nil, err
	}

	sources, err := c.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to cloud services: %w", err)
	}

	flavors, err := sources.ListFlavors(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch flavor list: %w", err)
	}
	inventory, err := sources.GetResources(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch resource inventory: %w", err)
	}

	joined, err := metering.NewJoiner(sources).Join(ctx, w, inventory)
	if err != nil {
		return nil, fmt.Errorf("join metering statistics: %w", err)
	}
	summary.DroppedSamples = joined.DroppedSamples
	summary.SkippedMeters = joined.SkippedMeters

	if c.objects != nil {
		buckets, err := c.objects.BucketStats(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch bucket stats: %w", err)
		}
		for _, agg := range BucketAggregates(buckets, w) {
			joined.Aggregates[agg.Key()] = agg
		}
	}

	assembler := NewAssembler(
		c.settings.Site,
		c.settings.Region,
		c.settings.Resource,
		identity.NewResolver(sources),
		deleted,
		prices,
		flavors,
	)
	set, err := assembler.Assemble(ctx, w, joined.Aggregates, summary)
	if err != nil {
		return nil, err
	}

	if opts.DryRun {
		logger.Info().Msg("dry run, nothing written")
		return summary, nil
	}

	path, err := c.writer.Write(ctx, set, w.End)
	if err != nil {
		return nil, fmt.Errorf("write records file: %w", err)
	}
	summary.OutputFile = path

	if err := c.commit(ctx, set, w); err != nil {
		return nil, err
	}

	logger.Info().
		Int("records", set.Len()).
		Str("output", path).
		Msg("billing run committed")
	return summary, nil
}

// commit archives the emitted records and advances the cursor in one
// transaction, so time coverage and billed history can never diverge.
func (c *Controller) commit(ctx context.Context, set *domain.RecordSet, w domain.Window) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit transaction: %w", err)
	}
	defer tx.Rollback()

	txCtx := duckdb.WithTransaction(ctx, tx)
	if err := c.archive.Add(txCtx, adapters.MapRecordSetToStoreBilled(set)); err != nil {
		return err
	}
	if err := c.cursor.Advance(txCtx, w.End); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit billing run: %w", err)
	}
	return nil
}
