package db

import (
	"fmt"
	"net/url"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config describes the database connection
type Config struct {
	// Driver is sqlite or postgres
	Driver string `yaml:"driver"`
	// Path is the sqlite database file
	Path string `yaml:"path"`

	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"-"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	// Schema is created if missing and used as search_path
	Schema string `yaml:"schema"`
}

// Validate checks the fields required by the selected driver
func (c Config) Validate() error {
	switch c.Driver {
	case DriverSQLite:
		if c.Path == "" {
			return fmt.Errorf("db: sqlite path is required")
		}
	case DriverPostgres:
		if c.Host == "" || c.Name == "" {
			return fmt.Errorf("db: postgres host and name are required")
		}
	default:
		return fmt.Errorf("db: unsupported driver %q", c.Driver)
	}
	return nil
}

func (c Config) sslMode() string {
	if c.SSLMode == "" {
		return "disable"
	}
	return c.SSLMode
}

// postgresDSN creates the keyword/value DSN used by gorm
func (c Config) postgresDSN() string {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.Host, c.User, c.Password, c.Name, c.Port, c.sslMode())
	if c.Schema != "" {
		dsn += " search_path=" + c.Schema
	}
	return dsn
}

// constructDBURL creates the database URL used by the migrator
func (c Config) constructDBURL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   c.Host,
		Path:   "/" + c.Name,
	}
	if c.Port != "" {
		u.Host = c.Host + ":" + c.Port
	}
	q := url.Values{}
	q.Set("sslmode", c.sslMode())
	if c.Schema != "" {
		q.Set("search_path", c.Schema)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
