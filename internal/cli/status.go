package cli

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/lisanmuaddib/steam-harvest/internal/harvestconfig"
	"github.com/lisanmuaddib/steam-harvest/pkg/db"
	"github.com/lisanmuaddib/steam-harvest/pkg/ledger"
	"github.com/lisanmuaddib/steam-harvest/pkg/store"
)

// StatusOutput is the --json form of the status command.
type StatusOutput struct {
	Ledger   map[ledger.TaskType]ledger.Counts `json:"ledger"`
	Failures map[ledger.TaskType]int           `json:"failures"`
	Store    store.Counts                      `json:"store"`
	Pages    PageStatus                        `json:"pages"`
	Schema   *SchemaStatus                     `json:"schema,omitempty"`
}

// PageStatus is the catalog listing progress.
type PageStatus struct {
	Listed int `json:"listed"`
	Total  int `json:"total"`
}

// SchemaStatus is the postgres migration state.
type SchemaStatus struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

func newStatusCmd(a *app) *cobra.Command {
	var (
		jsonOutput bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show ledger progress, unresolved failures and stored record counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, c *harvestconfig.Components) error {
				counts, err := c.Store.Counts(ctx)
				if err != nil {
					return err
				}

				out := StatusOutput{
					Ledger:   c.Book.Counts(),
					Failures: make(map[ledger.TaskType]int, len(ledger.TaskTypes)),
					Store:    counts,
					Pages:    PageStatus{Listed: c.Pages.Len(), Total: c.Pages.TotalPages()},
				}
				for _, tt := range ledger.TaskTypes {
					out.Failures[tt] = len(c.Book.Failures.ListByType(tt))
				}
				if c.Config.Database.Driver == db.DriverPostgres {
					version, dirty, err := db.MigrationStatus(c.Config.Database, c.Logger)
					if err != nil {
						return err
					}
					out.Schema = &SchemaStatus{Version: version, Dirty: dirty}
				}

				if jsonOutput {
					b, err := json.MarshalIndent(out, "", "  ")
					if err != nil {
						return err
					}
					a.printf("%s\n", b)
					return nil
				}

				for _, tt := range ledger.TaskTypes {
					lc := out.Ledger[tt]
					a.printf("%-13s completed: %-7d failed: %-7d unresolved: %d\n", tt, lc.Completed, lc.Failed, out.Failures[tt])
				}
				a.printf("stored games: %d  review rows: %d  games with reviews: %d\n",
					counts.CatalogItems, counts.HistoryPoints, counts.HistoryItems)
				a.printf("catalog pages listed: %d/%d\n", out.Pages.Listed, out.Pages.Total)
				if out.Schema != nil {
					a.printf("schema version: %d  dirty: %t\n", out.Schema.Version, out.Schema.Dirty)
				}

				if verbose {
					for _, e := range c.Book.Failures.All() {
						a.printf("  %s %s %s (attempts %d, %s): %s\n",
							e.TaskType, e.Identifier, e.ReasonCode, e.AttemptCount,
							e.Timestamp.Format("2006-01-02 15:04:05"), e.Message)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output status in JSON format")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list every unresolved failure")
	return cmd
}
