package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/de-tools/billing-extract/pkg/export/records"
	"github.com/de-tools/billing-extract/pkg/models/domain"
	"github.com/de-tools/billing-extract/pkg/runtime/terminal/export"
	"github.com/de-tools/billing-extract/pkg/services/billing"
	"github.com/de-tools/billing-extract/pkg/services/config"
	"github.com/de-tools/billing-extract/pkg/services/window"
	"github.com/de-tools/billing-extract/pkg/store/duckdb"
	"github.com/de-tools/billing-extract/pkg/store/duckdb/archive"
	"github.com/de-tools/billing-extract/pkg/store/duckdb/cursor"
	"github.com/de-tools/billing-extract/pkg/store/openstack"
	"github.com/de-tools/billing-extract/pkg/store/radosgw"
)

type RunCmd struct {
	configPath string
	singleStep bool
	dryRun     bool
	verbose    bool
	reporter   *export.Reporter
}

func NewRunCmd(reporter *export.Reporter) *cobra.Command {
	rc := &RunCmd{reporter: reporter}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Bill the next usage window",
		Long: "Plans the next unbilled window, fetches metering statistics, prices them " +
			"and writes the records file. Meant to run from cron; repeated invocations " +
			"advance through time one window at a time.",
		RunE: rc.run,
	}

	cmd.Flags().StringVarP(&rc.configPath, "config", "c", config.DefaultPath, "Path to the configuration file")
	cmd.Flags().BoolVar(&rc.singleStep, "single-step", false, "Process exactly one hour instead of catching up")
	cmd.Flags().BoolVar(&rc.dryRun, "dry-run", false, "Assemble and price records without writing anything")
	cmd.Flags().BoolVarP(&rc.verbose, "verbose", "v", false, "Enable debug logging")

	return cmd
}

func (rc *RunCmd) run(cmd *cobra.Command, _ []string) error {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if !rc.verbose {
		logger = logger.Level(zerolog.InfoLevel)
	}
	ctx := logger.WithContext(cmd.Context())

	cfg, err := config.Load(rc.configPath)
	if err != nil {
		return err
	}

	summary, err := executeRun(ctx, cfg, billing.RunOptions{
		Mode:   runMode(rc.singleStep),
		DryRun: rc.dryRun,
	})
	if err != nil {
		return err
	}

	return rc.reporter.Handle(summary)
}

func runMode(singleStep bool) window.Mode {
	if singleStep {
		return window.ModeSingleStep
	}
	return window.ModeCatchUp
}

func executeRun(ctx context.Context, cfg *config.Config, opts billing.RunOptions) (*domain.RunSummary, error) {
	stateDir := filepath.Join(cfg.DataDir, "logger-state")
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	db, err := duckdb.NewDB(duckdb.Settings{DbPath: filepath.Join(stateDir, "state.db")})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB instance: %w", err)
	}
	defer db.Close()

	cursorStore, err := cursor.NewStore(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create cursor store: %w", err)
	}
	archiveStore, err := archive.NewStore(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive store: %w", err)
	}

	dial := func(ctx context.Context) (billing.Sources, error) {
		return openstack.Connect(ctx, openstack.Credentials{
			Username: cfg.Username,
			Password: cfg.Password,
			Domain:   cfg.Domain,
			Project:  cfg.Project,
		}, cfg.KeystoneURL, cfg.CeilometerURL, cfg.Region)
	}

	var objects billing.ObjectSource
	if cfg.ObjectStorage {
		objects = radosgw.NewAdminCLI()
	}

	controller := billing.NewController(
		billing.Settings{
			Site:       cfg.Site,
			Region:     cfg.Region,
			Resource:   cfg.Resource,
			CostsPath:  filepath.Join(stateDir, "costs.json"),
			LedgerPath: filepath.Join(stateDir, "deleted-volumes.tsv"),
		},
		db,
		cursorStore,
		archiveStore,
		dial,
		objects,
		records.NewWriter(cfg.DataDir),
	)

	return controller.Run(ctx, opts)
}
