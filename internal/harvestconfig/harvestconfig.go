// Package harvestconfig wires the harvester components from a Config.
package harvestconfig

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"gorm.io/gorm"

	"github.com/lisanmuaddib/steam-harvest/pkg/config"
	"github.com/lisanmuaddib/steam-harvest/pkg/db"
	"github.com/lisanmuaddib/steam-harvest/pkg/fetcher"
	"github.com/lisanmuaddib/steam-harvest/pkg/harvest"
	"github.com/lisanmuaddib/steam-harvest/pkg/ledger"
	"github.com/lisanmuaddib/steam-harvest/pkg/metrics"
	"github.com/lisanmuaddib/steam-harvest/pkg/source/steam"
	"github.com/lisanmuaddib/steam-harvest/pkg/store"
)

// Components holds everything a command needs. Close releases the database.
type Components struct {
	Config       config.Config
	Logger       *logrus.Logger
	FS           afero.Fs
	DB           *gorm.DB
	Store        *store.GormStore
	Source       *steam.Client
	Fetcher      *fetcher.Fetcher
	Metrics      *metrics.Collector
	Book         *ledger.Book
	Pages        *ledger.PageLog
	Orchestrator *harvest.Orchestrator
	Catalog      *harvest.CatalogJob
	History      *harvest.HistoryJob
	Retrier      *harvest.Retrier
}

// Option customizes Build.
type Option func(*buildOptions)

type buildOptions struct {
	fs         afero.Fs
	httpClient *http.Client
}

// WithFS stores the ledgers on fs instead of the OS filesystem.
func WithFS(fs afero.Fs) Option {
	return func(o *buildOptions) {
		o.fs = fs
	}
}

// WithHTTPClient sends Steam requests through hc.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *buildOptions) {
		o.httpClient = hc
	}
}

// NewBook loads the progress and failure ledgers named by cfg.
func NewBook(cfg config.Config, fs afero.Fs, logger *logrus.Logger) (*ledger.Book, error) {
	progress := ledger.NewProgressLedger(fs, cfg.CheckpointPath(), logger,
		ledger.WithFlushEvery(cfg.Scraper.CheckpointEvery))
	failures := ledger.NewFailureLedger(fs, cfg.FailureLogPath(), logger)

	book := ledger.NewBook(progress, failures, logger)
	if err := book.Load(); err != nil {
		return nil, fmt.Errorf("failed to load ledgers: %w", err)
	}
	return book, nil
}

// NewPageLog loads the catalog page log named by cfg.
func NewPageLog(cfg config.Config, fs afero.Fs, logger *logrus.Logger) (*ledger.PageLog, error) {
	pages := ledger.NewPageLog(fs, cfg.PageLogPath(), logger,
		ledger.WithFlushEvery(cfg.Scraper.CheckpointEvery))
	if err := pages.Load(); err != nil {
		return nil, fmt.Errorf("failed to load page log: %w", err)
	}
	return pages, nil
}

// Build opens the database, loads the ledgers and creates the jobs.
func Build(cfg config.Config, logger *logrus.Logger, opts ...Option) (*Components, error) {
	o := buildOptions{fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Components{
		Config:  cfg,
		Logger:  logger,
		FS:      o.fs,
		Metrics: metrics.New(),
	}

	book, err := NewBook(cfg, o.fs, logger)
	if err != nil {
		return nil, err
	}
	c.Book = book

	c.Pages, err = NewPageLog(cfg, o.fs, logger)
	if err != nil {
		return nil, err
	}

	c.Fetcher, err = fetcher.New(cfg.FetcherConfig(), logger, fetcher.WithMetrics(c.Metrics))
	if err != nil {
		return nil, fmt.Errorf("failed to create fetcher: %w", err)
	}

	var clientOpts []steam.ClientOption
	if o.httpClient != nil {
		clientOpts = append(clientOpts, steam.WithHTTPClient(o.httpClient))
	}
	c.Source, err = steam.NewClient(cfg.SteamConfig(logger), clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create steam client: %w", err)
	}

	c.DB, err = db.SetupDatabase(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to set up database: %w", err)
	}
	c.Store = store.NewGormStore(logger, c.DB)

	c.Orchestrator = harvest.NewOrchestrator(book, logger,
		harvest.WithWorkers(cfg.Scraper.MaxWorkers),
		harvest.WithStatusInterval(cfg.Scraper.StatusInterval.Duration()),
		harvest.WithMetrics(c.Metrics),
	)
	c.Catalog = harvest.NewCatalogJob(c.Source, c.Fetcher, c.Store, logger, cfg.Scraper.PageLimit).
		WithPageLog(c.Pages)
	c.History = harvest.NewHistoryJob(c.Source, c.Fetcher, c.Store, logger)
	c.Retrier = harvest.NewRetrier(c.Orchestrator, book, logger, c.Catalog, c.History)

	logger.WithFields(logrus.Fields{
		"driver":      cfg.Database.Driver,
		"checkpoint":  cfg.CheckpointPath(),
		"failure_log": cfg.FailureLogPath(),
		"page_log":    cfg.PageLogPath(),
		"workers":     cfg.Scraper.MaxWorkers,
	}).Debug("Harvester components ready")

	return c, nil
}

// Close flushes the ledgers and closes the database.
func (c *Components) Close() error {
	var errs []error
	if c.Book != nil {
		if err := c.Book.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Pages != nil {
		if err := c.Pages.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.DB != nil {
		if err := db.Close(c.DB); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
