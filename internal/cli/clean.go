package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/lisanmuaddib/steam-harvest/internal/harvestconfig"
	"github.com/lisanmuaddib/steam-harvest/pkg/db"
	"github.com/lisanmuaddib/steam-harvest/pkg/ledger"
)

func resetsCatalog(types []ledger.TaskType) bool {
	if len(types) == 0 {
		return true
	}
	for _, tt := range types {
		if tt == ledger.TaskCatalogItem {
			return true
		}
	}
	return false
}

func newCleanCmd(a *app) *cobra.Command {
	var (
		types    []string
		database bool
	)

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Reset the progress and failure ledgers",
		Long: `clean forgets recorded progress so the next run starts over. Stored
records are kept unless --db is given with the sqlite driver.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed := make([]ledger.TaskType, 0, len(types))
			for _, t := range types {
				tt, err := ledger.ParseTaskType(t)
				if err != nil {
					return err
				}
				parsed = append(parsed, tt)
			}

			fs := afero.NewOsFs()
			book, err := harvestconfig.NewBook(a.cfg, fs, a.logger)
			if err != nil {
				return err
			}
			if err := book.Reset(parsed...); err != nil {
				return fmt.Errorf("failed to reset ledgers: %w", err)
			}
			if resetsCatalog(parsed) {
				if err := ledger.NewPageLog(fs, a.cfg.PageLogPath(), a.logger).Reset(); err != nil {
					return fmt.Errorf("failed to reset page log: %w", err)
				}
			}
			if len(parsed) == 0 {
				a.printf("Removed %s, %s and %s\n", a.cfg.CheckpointPath(), a.cfg.FailureLogPath(), a.cfg.PageLogPath())
			} else {
				a.printf("Reset ledgers for %v\n", parsed)
			}

			if !database {
				return nil
			}
			if a.cfg.Database.Driver != db.DriverSQLite {
				return fmt.Errorf("--db only removes sqlite databases, driver is %s", a.cfg.Database.Driver)
			}
			if err := os.Remove(a.cfg.Database.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("failed to remove database: %w", err)
			}
			a.printf("Removed %s\n", a.cfg.Database.Path)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&types, "type", nil, "only reset these task types (games, reviews)")
	cmd.Flags().BoolVar(&database, "db", false, "also delete the sqlite database file")
	return cmd
}
