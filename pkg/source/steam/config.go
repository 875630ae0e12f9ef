package steam

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Default configuration values
const (
	// DefaultBaseURL is the Steam store root
	DefaultBaseURL = "https://store.steampowered.com"
	// DefaultLanguage is the store language used for search and details
	DefaultLanguage = "english"
	// DefaultCurrency is the store country code used for prices
	DefaultCurrency = "us"
	// DefaultCategory is the search category for games
	DefaultCategory = "998"
	// DefaultReviewLanguage is the language filter of the review histogram
	DefaultReviewLanguage = "schinese"
	// DefaultUserAgent mimics a desktop browser
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	// PageSize is the number of rows on a search page
	PageSize = 25
	// DefaultUTCOffset shifts histogram timestamps before taking the date
	DefaultUTCOffset = 8 * time.Hour
)

// Config holds the Steam adapter settings.
type Config struct {
	BaseURL        string
	Language       string
	Currency       string
	Category       string
	ReviewLanguage string
	UserAgent      string
	UTCOffset      time.Duration
	Logger         *logrus.Logger
}

// DefaultConfig returns the settings of the public store.
func DefaultConfig(logger *logrus.Logger) *Config {
	return &Config{
		BaseURL:        DefaultBaseURL,
		Language:       DefaultLanguage,
		Currency:       DefaultCurrency,
		Category:       DefaultCategory,
		ReviewLanguage: DefaultReviewLanguage,
		UserAgent:      DefaultUserAgent,
		UTCOffset:      DefaultUTCOffset,
		Logger:         logger,
	}
}

// Validate checks if the configuration is valid according to the following rules:
//   - BaseURL must not be empty
//   - Logger must be initialized
//   - UTCOffset must be within a day
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("steam: base URL is required")
	}
	if c.Logger == nil {
		return fmt.Errorf("steam: logger is required")
	}
	if c.UTCOffset <= -24*time.Hour || c.UTCOffset >= 24*time.Hour {
		return fmt.Errorf("steam: utc offset must be within a day, got %v", c.UTCOffset)
	}
	return nil
}
