package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/lisanmuaddib/steam-harvest/internal/harvestconfig"
	"github.com/lisanmuaddib/steam-harvest/pkg/ledger"
)

func newRetryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry [games|reviews]...",
		Short: "Re-attempt identifiers recorded in the failure ledger",
		Long: `retry re-dispatches every unresolved failure of the given task types,
or of all task types when none is named. Identifiers that succeed leave the
failure ledger; the rest have their attempt count raised.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			types := make([]ledger.TaskType, 0, len(args))
			for _, arg := range args {
				tt, err := ledger.ParseTaskType(arg)
				if err != nil {
					return err
				}
				types = append(types, tt)
			}

			return a.run(cmd, func(ctx context.Context, c *harvestconfig.Components) error {
				summaries, err := c.Retrier.Retry(ctx, types...)
				for _, s := range summaries {
					a.printSummary(s)
				}
				return err
			})
		},
	}
	return cmd
}
