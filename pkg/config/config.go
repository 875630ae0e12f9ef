// Package config loads the harvester settings. Values come from defaults, an
// optional YAML file, an optional .env file and the environment, in that
// order, and are validated once before anything runs.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/lisanmuaddib/steam-harvest/pkg/db"
	"github.com/lisanmuaddib/steam-harvest/pkg/fetcher"
	"github.com/lisanmuaddib/steam-harvest/pkg/logging"
	"github.com/lisanmuaddib/steam-harvest/pkg/source/steam"
)

// DefaultFile is read when no config path is given and it exists.
const DefaultFile = "config.yaml"

// Default configuration values
const (
	DefaultDataDir         = "data"
	DefaultCheckpointFile  = ".checkpoint.json"
	DefaultFailureLogFile  = "failures.json"
	DefaultPageLogFile     = ".pages.json"
	DefaultDBFile          = "steam_data.db"
	DefaultAppIDFile       = "steam_appids.txt"
	DefaultExcelFile       = "steam_data.xlsx"
	DefaultCheckpointEvery = 1
	DefaultStatusInterval  = 30 * time.Second
)

// Config is the full harvester configuration. It is read once per process and
// passed by value.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Scraper  ScraperConfig  `yaml:"scraper"`
	Output   OutputConfig   `yaml:"output"`
	Database db.Config      `yaml:"database"`
	Log      logging.Config `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// HTTPConfig controls outbound requests.
type HTTPConfig struct {
	Timeout           Seconds `yaml:"timeout"`
	MaxRetries        int     `yaml:"max_retries"`
	MinDelay          Seconds `yaml:"min_delay"`
	MaxDelay          Seconds `yaml:"max_delay"`
	RetryBackoff      Seconds `yaml:"retry_backoff"`
	MaxBackoff        Seconds `yaml:"max_backoff"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	UserAgent         string  `yaml:"user_agent"`
}

// ScraperConfig controls what is harvested and how wide.
type ScraperConfig struct {
	BaseURL         string  `yaml:"base_url"`
	Language        string  `yaml:"language"`
	Currency        string  `yaml:"currency"`
	Category        string  `yaml:"category"`
	ReviewLanguage  string  `yaml:"review_language"`
	MaxWorkers      int     `yaml:"max_workers"`
	PageLimit       int     `yaml:"page_limit"`
	UTCOffsetHours  int     `yaml:"utc_offset_hours"`
	CheckpointEvery int     `yaml:"checkpoint_every"`
	StatusInterval  Seconds `yaml:"status_interval"`
}

// OutputConfig names the files written under DataDir.
type OutputConfig struct {
	DataDir        string `yaml:"data_dir"`
	CheckpointFile string `yaml:"checkpoint_file"`
	FailureLogFile string `yaml:"failure_log_file"`
	PageLogFile    string `yaml:"page_log_file"`
	AppIDFile      string `yaml:"appid_file"`
	ExcelFile      string `yaml:"excel_file"`
}

// MetricsConfig enables the prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	f := fetcher.DefaultConfig()
	return Config{
		HTTP: HTTPConfig{
			Timeout:      Seconds(f.RequestTimeout),
			MaxRetries:   f.MaxRetries,
			MinDelay:     Seconds(f.MinDelay),
			MaxDelay:     Seconds(f.MaxDelay),
			RetryBackoff: Seconds(f.RetryBackoff),
			MaxBackoff:   Seconds(f.MaxBackoff),
			UserAgent:    steam.DefaultUserAgent,
		},
		Scraper: ScraperConfig{
			BaseURL:         steam.DefaultBaseURL,
			Language:        steam.DefaultLanguage,
			Currency:        steam.DefaultCurrency,
			Category:        steam.DefaultCategory,
			ReviewLanguage:  steam.DefaultReviewLanguage,
			MaxWorkers:      f.MaxConcurrency,
			UTCOffsetHours:  int(steam.DefaultUTCOffset / time.Hour),
			CheckpointEvery: DefaultCheckpointEvery,
			StatusInterval:  Seconds(DefaultStatusInterval),
		},
		Output: OutputConfig{
			DataDir:        DefaultDataDir,
			CheckpointFile: DefaultCheckpointFile,
			FailureLogFile: DefaultFailureLogFile,
			PageLogFile:    DefaultPageLogFile,
			AppIDFile:      DefaultAppIDFile,
			ExcelFile:      DefaultExcelFile,
		},
		Database: db.Config{
			Driver:  db.DriverSQLite,
			Path:    filepath.Join(DefaultDataDir, DefaultDBFile),
			Port:    "5432",
			SSLMode: "disable",
		},
		Log: logging.DefaultConfig(),
	}
}

// Load builds the configuration. path names a YAML file that must exist;
// an empty path reads DefaultFile if present. The .env file is loaded if
// present, but its absence is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	file := path
	if file == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			file = DefaultFile
		}
	}
	if file != "" {
		if err := cfg.readFile(file); err != nil {
			return Config{}, err
		}
	}

	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("error loading .env file: %w", err)
		}
		logrus.Debug(".env file not found, continuing with environment variables")
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	logrus.WithField("path", path).Debug("Loaded config file")
	return nil
}

// applyEnv overrides file values with the environment. Unparseable values are
// logged and ignored.
func (c *Config) applyEnv() {
	c.Scraper.MaxWorkers = envInt("HARVEST_MAX_CONCURRENCY", c.Scraper.MaxWorkers)
	c.Scraper.PageLimit = envInt("HARVEST_PAGE_LIMIT", c.Scraper.PageLimit)
	c.HTTP.Timeout = envSeconds("HARVEST_REQUEST_TIMEOUT", c.HTTP.Timeout)
	c.HTTP.MaxRetries = envInt("HARVEST_MAX_RETRIES", c.HTTP.MaxRetries)
	c.HTTP.MinDelay = envSeconds("HARVEST_MIN_DELAY", c.HTTP.MinDelay)
	c.HTTP.MaxDelay = envSeconds("HARVEST_MAX_DELAY", c.HTTP.MaxDelay)
	c.Output.DataDir = getEnvOrDefault("HARVEST_DATA_DIR", c.Output.DataDir)
	c.Metrics.Addr = getEnvOrDefault("HARVEST_METRICS_ADDR", c.Metrics.Addr)

	c.Log.Level = getEnvOrDefault("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnvOrDefault("LOG_FORMAT", c.Log.Format)

	c.Database.Driver = getEnvOrDefault("DB_DRIVER", c.Database.Driver)
	c.Database.Path = getEnvOrDefault("DB_PATH", c.Database.Path)
	c.Database.Host = getEnvOrDefault("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvOrDefault("DB_PORT", c.Database.Port)
	c.Database.User = getEnvOrDefault("DB_USER", c.Database.User)
	c.Database.Password = getEnvOrDefault("DB_PASSWORD", c.Database.Password)
	c.Database.Name = getEnvOrDefault("DB_NAME", c.Database.Name)
	c.Database.SSLMode = getEnvOrDefault("DB_SSLMODE", c.Database.SSLMode)
	c.Database.Schema = getEnvOrDefault("DB_SCHEMA", c.Database.Schema)
}

// Validate checks if the configuration is valid according to the following rules:
//   - the fetcher, Steam, database and log sections validate
//   - page_limit and checkpoint_every are not negative
//   - data_dir and the ledger file names are set
func (c Config) Validate() error {
	if err := c.FetcherConfig().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.SteamConfig(logrus.StandardLogger()).Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Scraper.PageLimit < 0 {
		return fmt.Errorf("config: page_limit must not be negative, got %d", c.Scraper.PageLimit)
	}
	if c.Scraper.CheckpointEvery < 0 {
		return fmt.Errorf("config: checkpoint_every must not be negative, got %d", c.Scraper.CheckpointEvery)
	}
	if c.Output.DataDir == "" || c.Output.CheckpointFile == "" || c.Output.FailureLogFile == "" || c.Output.PageLogFile == "" {
		return fmt.Errorf("config: data_dir, checkpoint_file, failure_log_file and page_log_file are required")
	}
	return nil
}

// FetcherConfig returns the pacing and retry settings.
func (c Config) FetcherConfig() fetcher.Config {
	return fetcher.Config{
		MaxConcurrency:    c.Scraper.MaxWorkers,
		RequestTimeout:    c.HTTP.Timeout.Duration(),
		MaxRetries:        c.HTTP.MaxRetries,
		MinDelay:          c.HTTP.MinDelay.Duration(),
		MaxDelay:          c.HTTP.MaxDelay.Duration(),
		RetryBackoff:      c.HTTP.RetryBackoff.Duration(),
		MaxBackoff:        c.HTTP.MaxBackoff.Duration(),
		RequestsPerSecond: c.HTTP.RequestsPerSecond,
	}
}

// SteamConfig returns the Steam adapter settings.
func (c Config) SteamConfig(logger *logrus.Logger) *steam.Config {
	return &steam.Config{
		BaseURL:        c.Scraper.BaseURL,
		Language:       c.Scraper.Language,
		Currency:       c.Scraper.Currency,
		Category:       c.Scraper.Category,
		ReviewLanguage: c.Scraper.ReviewLanguage,
		UserAgent:      c.HTTP.UserAgent,
		UTCOffset:      time.Duration(c.Scraper.UTCOffsetHours) * time.Hour,
		Logger:         logger,
	}
}

// CheckpointPath is the Progress Ledger snapshot.
func (c Config) CheckpointPath() string {
	return filepath.Join(c.Output.DataDir, c.Output.CheckpointFile)
}

// FailureLogPath is the Failure Ledger snapshot.
func (c Config) FailureLogPath() string {
	return filepath.Join(c.Output.DataDir, c.Output.FailureLogFile)
}

// PageLogPath records the catalog pages already listed.
func (c Config) PageLogPath() string {
	return filepath.Join(c.Output.DataDir, c.Output.PageLogFile)
}

// AppIDPath is the identifier list written after catalog runs.
func (c Config) AppIDPath() string {
	return filepath.Join(c.Output.DataDir, c.Output.AppIDFile)
}

// ExcelPath is the default export workbook.
func (c Config) ExcelPath() string {
	return filepath.Join(c.Output.DataDir, c.Output.ExcelFile)
}

// getEnvOrDefault retrieves an environment variable value by key,
// returning the defaultValue if the environment variable is not set or empty.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"key":     key,
			"value":   value,
			"error":   err.Error(),
			"default": defaultValue,
		}).Warn("Failed to parse integer setting, using default")
		return defaultValue
	}
	return n
}

func envSeconds(key string, defaultValue Seconds) Seconds {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	s, err := parseSeconds(value)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"key":     key,
			"value":   value,
			"error":   err.Error(),
			"default": defaultValue.Duration().String(),
		}).Warn("Failed to parse duration setting, using default")
		return defaultValue
	}
	return s
}
