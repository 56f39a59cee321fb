package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/de-tools/billing-extract/pkg/services/config"
	"github.com/de-tools/billing-extract/pkg/store/duckdb"
	"github.com/de-tools/billing-extract/pkg/store/duckdb/archive"
	"github.com/de-tools/billing-extract/pkg/store/duckdb/cursor"
)

type StatusCmd struct {
	configPath string
}

func NewStatusCmd() *cobra.Command {
	sc := &StatusCmd{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the billing cursor and archive state",
		RunE:  sc.run,
	}

	cmd.Flags().StringVarP(&sc.configPath, "config", "c", config.DefaultPath, "Path to the configuration file")

	return cmd
}

func (sc *StatusCmd) run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(sc.configPath)
	if err != nil {
		return err
	}

	db, err := duckdb.NewDB(duckdb.Settings{
		DbPath: filepath.Join(cfg.DataDir, "logger-state", "state.db"),
	})
	if err != nil {
		return fmt.Errorf("failed to create DuckDB instance: %w", err)
	}
	defer db.Close()

	cursorStore, err := cursor.NewStore(db)
	if err != nil {
		return fmt.Errorf("failed to create cursor store: %w", err)
	}
	archiveStore, err := archive.NewStore(db)
	if err != nil {
		return fmt.Errorf("failed to create archive store: %w", err)
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	last, err := cursorStore.Load(ctx)
	if err != nil {
		return err
	}
	if last == nil {
		fmt.Fprintln(out, "Cursor: not set (no run has committed yet)")
	} else {
		fmt.Fprintf(out, "Cursor: %s\n", last.Format("2006-01-02T15:04Z07:00"))
	}

	stats, err := archiveStore.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Archived records: %d\n", stats.RecordsCount)
	if stats.FirstWindowStart != nil {
		fmt.Fprintf(out, "Billed since: %s\n", stats.FirstWindowStart.Format("2006-01-02T15:04Z07:00"))
	}

	return nil
}
