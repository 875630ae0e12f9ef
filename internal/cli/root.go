// Package cli implements the harvest command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lisanmuaddib/steam-harvest/internal/harvestconfig"
	"github.com/lisanmuaddib/steam-harvest/pkg/config"
	"github.com/lisanmuaddib/steam-harvest/pkg/logging"
)

// app carries the state shared by every command of one invocation.
type app struct {
	configPath  string
	metricsAddr string
	logLevel    string

	cfg       config.Config
	logger    *logrus.Logger
	logCloser io.Closer
	out       io.Writer
}

// NewRoot builds the harvest command tree.
func NewRoot() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "harvest",
		Short: "Resumable harvester for the Steam catalog and review history",
		Long: `harvest walks the Steam store listing, stores game details and daily
review counts, and keeps a progress and failure ledger so an interrupted
run picks up where it stopped.`,
		SilenceUsage:       true,
		PersistentPreRunE:  func(cmd *cobra.Command, args []string) error { return a.init(cmd) },
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error { return a.shutdown() },
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default: ./config.yaml if present)")
	root.PersistentFlags().StringVar(&a.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while running")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		newGamesCmd(a),
		newReviewsCmd(a),
		newAllCmd(a),
		newRetryCmd(a),
		newStatusCmd(a),
		newExportCmd(a),
		newCleanCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.metricsAddr != "" {
		cfg.Metrics.Addr = a.metricsAddr
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}

	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	a.logCloser = closer
	a.out = cmd.OutOrStdout()
	return nil
}

func (a *app) shutdown() error {
	if a.logCloser == nil {
		return nil
	}
	return a.logCloser.Close()
}

// run builds the components, serves metrics if configured and calls fn with a
// context cancelled on SIGINT or SIGTERM.
func (a *app) run(cmd *cobra.Command, fn func(ctx context.Context, c *harvestconfig.Components) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := harvestconfig.Build(a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			a.logger.WithError(err).Error("Failed to close harvester")
		}
	}()

	if addr := a.cfg.Metrics.Addr; addr != "" {
		metricsCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Metrics.Serve(metricsCtx, addr, a.logger); err != nil {
				a.logger.WithError(err).Error("Metrics server stopped")
			}
		}()
		defer func() {
			cancel()
			wg.Wait()
		}()
	}

	return fn(ctx, c)
}

func (a *app) printf(format string, args ...interface{}) {
	fmt.Fprintf(a.out, format, args...)
}
