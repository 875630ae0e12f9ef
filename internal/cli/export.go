package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/lisanmuaddib/steam-harvest/internal/harvestconfig"
	"github.com/lisanmuaddib/steam-harvest/pkg/export"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		output string
		ids    bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored games and review history to an Excel workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				output = a.cfg.ExcelPath()
			}
			return a.run(cmd, func(ctx context.Context, c *harvestconfig.Components) error {
				if err := a.exportIfRequested(ctx, c, output); err != nil {
					return err
				}
				if !ids {
					return nil
				}
				list, err := c.Store.AllCatalogIdentifiers(ctx)
				if err != nil {
					return err
				}
				if err := export.WriteIdentifiers(c.FS, a.cfg.AppIDPath(), list); err != nil {
					return err
				}
				a.printf("Wrote %d app ids to %s\n", len(list), a.cfg.AppIDPath())
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "workbook path (default: <data_dir>/steam_data.xlsx)")
	cmd.Flags().BoolVar(&ids, "ids", false, "also rewrite the app id list")
	return cmd
}
