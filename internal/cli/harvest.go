package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/lisanmuaddib/steam-harvest/internal/harvestconfig"
	"github.com/lisanmuaddib/steam-harvest/pkg/export"
	"github.com/lisanmuaddib/steam-harvest/pkg/harvest"
	"github.com/lisanmuaddib/steam-harvest/pkg/ledger"
)

// runFlags are shared by the harvesting commands.
type runFlags struct {
	limit  int
	force  bool
	fresh  bool
	output string
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.limit, "limit", 0, "harvest at most N identifiers (0 = all)")
	cmd.Flags().BoolVar(&f.force, "force", false, "re-attempt identifiers already completed")
	cmd.Flags().BoolVar(&f.fresh, "fresh", false, "reset the ledgers of this task type before running")
}

func (f *runFlags) options() harvest.RunOptions {
	return harvest.RunOptions{ItemLimit: f.limit, Force: f.force}
}

func newGamesCmd(a *app) *cobra.Command {
	var (
		flags runFlags
		pages int
	)

	cmd := &cobra.Command{
		Use:   "games",
		Short: "Harvest game details from the store listing",
		Example: `  harvest games              walk every listing page
  harvest games --pages 10   only the first 10 pages
  harvest games --fresh      start over, ignoring earlier progress`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("pages") {
				a.cfg.Scraper.PageLimit = pages
			}
			return a.run(cmd, func(ctx context.Context, c *harvestconfig.Components) error {
				_, err := a.harvestGames(ctx, c, flags)
				return err
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVar(&pages, "pages", 0, "walk at most N listing pages (0 = all, about 25 games per page)")
	cmd.Flags().StringVar(&flags.output, "output", "", "also export an Excel workbook to FILE")
	return cmd
}

func newReviewsCmd(a *app) *cobra.Command {
	var (
		flags runFlags
		input string
	)

	cmd := &cobra.Command{
		Use:   "reviews",
		Short: "Harvest the daily review history of games",
		Long: `reviews harvests the review histogram of every stored game, or of the
identifiers listed one per line in --input.`,
		Example: `  harvest reviews
  harvest reviews --input data/steam_appids.txt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, c *harvestconfig.Components) error {
				_, err := a.harvestReviews(ctx, c, flags, input)
				return err
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&input, "input", "", "identifier list file (default: the stored catalog)")
	cmd.Flags().StringVar(&flags.output, "output", "", "also export an Excel workbook to FILE")
	return cmd
}

func newAllCmd(a *app) *cobra.Command {
	var (
		flags runFlags
		pages int
	)

	cmd := &cobra.Command{
		Use:   "all",
		Short: "Harvest game details, then the review history of every stored game",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("pages") {
				a.cfg.Scraper.PageLimit = pages
			}
			return a.run(cmd, func(ctx context.Context, c *harvestconfig.Components) error {
				games := flags
				games.output = ""
				summary, err := a.harvestGames(ctx, c, games)
				if err != nil {
					return err
				}
				if summary.Interrupted {
					return nil
				}
				_, err = a.harvestReviews(ctx, c, flags, "")
				return err
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVar(&pages, "pages", 0, "walk at most N listing pages (0 = all)")
	cmd.Flags().StringVar(&flags.output, "output", "", "export an Excel workbook to FILE when done")
	return cmd
}

func (a *app) harvestGames(ctx context.Context, c *harvestconfig.Components, flags runFlags) (*harvest.RunSummary, error) {
	if err := a.reset(c, flags.fresh, ledger.TaskCatalogItem); err != nil {
		return nil, err
	}

	summary, err := c.Orchestrator.Run(ctx, c.Catalog, flags.options())
	if summary != nil {
		a.printSummary(summary)
	}
	if err != nil {
		return summary, err
	}

	ids, err := c.Store.AllCatalogIdentifiers(context.WithoutCancel(ctx))
	if err != nil {
		return summary, fmt.Errorf("failed to list stored games: %w", err)
	}
	if err := export.WriteIdentifiers(c.FS, a.cfg.AppIDPath(), ids); err != nil {
		return summary, err
	}
	a.printf("Wrote %d app ids to %s\n", len(ids), a.cfg.AppIDPath())

	return summary, a.exportIfRequested(ctx, c, flags.output)
}

func (a *app) harvestReviews(ctx context.Context, c *harvestconfig.Components, flags runFlags, input string) (*harvest.RunSummary, error) {
	if err := a.reset(c, flags.fresh, ledger.TaskHistoryItem); err != nil {
		return nil, err
	}

	job := c.History
	if input != "" {
		ids, err := export.ReadIdentifiers(afero.NewOsFs(), input)
		if err != nil {
			return nil, err
		}
		job = job.WithIdentifiers(ids)
	}

	summary, err := c.Orchestrator.Run(ctx, job, flags.options())
	if summary != nil {
		a.printSummary(summary)
	}
	if err != nil {
		return summary, err
	}
	return summary, a.exportIfRequested(ctx, c, flags.output)
}

func (a *app) reset(c *harvestconfig.Components, fresh bool, tt ledger.TaskType) error {
	if !fresh {
		return nil
	}
	if err := c.Book.Reset(tt); err != nil {
		return fmt.Errorf("failed to reset %s ledgers: %w", tt, err)
	}
	if tt == ledger.TaskCatalogItem {
		if err := c.Pages.Reset(); err != nil {
			return fmt.Errorf("failed to reset page log: %w", err)
		}
	}
	a.logger.WithField("task_type", tt).Info("Ledgers reset")
	return nil
}

func (a *app) exportIfRequested(ctx context.Context, c *harvestconfig.Components, path string) error {
	if path == "" {
		return nil
	}
	summary, err := export.WriteWorkbook(context.WithoutCancel(ctx), c.Store, path, a.logger)
	if err != nil {
		return err
	}
	a.printf("Exported %d games and %d review rows to %s\n", summary.Games, summary.Reviews, summary.Path)
	return nil
}

func (a *app) printSummary(s *harvest.RunSummary) {
	kind := "Run"
	if s.Retry {
		kind = "Retry"
	}
	a.printf("%s %s (%s) finished in %s\n", kind, s.TaskType, s.RunID, s.Duration().Round(time.Millisecond))
	a.printf("  candidates: %d  skipped: %d  attempted: %d\n", s.Candidates, s.Skipped, s.Attempted)
	a.printf("  succeeded:  %d  failed: %d\n", s.Succeeded, s.Failed)
	if s.LedgerErrors > 0 {
		a.printf("  ledger errors: %d\n", s.LedgerErrors)
	}
	if s.EnumerationTruncated {
		a.printf("  listing truncated: a later page failed, run again to continue\n")
	}
	if s.Interrupted {
		a.printf("  interrupted: progress saved, run again to resume\n")
	}
	if s.Failed > 0 {
		a.printf("  run `harvest retry %s` to re-attempt failures\n", s.TaskType)
	}
}
