package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Output formats.
const (
	FormatColor = "color"
	FormatJSON  = "json"
	FormatText  = "text"
)

// Output targets.
const (
	OutputStdout = "stdout"
	OutputStderr = "stderr"
	OutputFile   = "file"
)

// Config selects level, format and destination of the log.
type Config struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`

	// File rotation, used when Output is "file".
	FilePath   string `yaml:"file_path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// DefaultConfig logs colored lines at info level to stderr.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     FormatColor,
		Output:     OutputStderr,
		FilePath:   "logs/harvest.log",
		MaxSizeMB:  50,
		MaxBackups: 5,
		MaxAgeDays: 30,
	}
}

// Validate checks the format and output names.
func (c Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	switch strings.ToLower(c.Format) {
	case FormatColor, FormatJSON, FormatText:
	default:
		return fmt.Errorf("logging: unsupported format %q", c.Format)
	}
	switch strings.ToLower(c.Output) {
	case OutputStdout, OutputStderr:
	case OutputFile:
		if c.FilePath == "" {
			return fmt.Errorf("logging: file_path is required when output is file")
		}
	default:
		return fmt.Errorf("logging: unsupported output %q", c.Output)
	}
	return nil
}

// New builds a logger from cfg. The returned closer releases the log file and
// is a no-op for the standard streams.
func New(cfg Config) (*logrus.Logger, io.Closer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger := logrus.New()
	level, _ := logrus.ParseLevel(cfg.Level)
	logger.SetLevel(level)

	var (
		out    io.Writer
		closer io.Closer = nopCloser{}
		isFile bool
	)
	switch strings.ToLower(cfg.Output) {
	case OutputStdout:
		out = os.Stdout
	case OutputStderr:
		out = os.Stderr
	case OutputFile:
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		out, closer, isFile = rotator, rotator, true
	}
	logger.SetOutput(out)
	logger.SetFormatter(formatterFor(cfg.Format, isFile))

	return logger, closer, nil
}

func formatterFor(format string, isFile bool) logrus.Formatter {
	switch strings.ToLower(format) {
	case FormatJSON:
		return &logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano}
	case FormatText:
		return &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
			DisableColors:   isFile,
		}
	default:
		f := NewConsoleFormatter()
		f.DisableColors = isFile
		return f
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
