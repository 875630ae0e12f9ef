package db

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultSlowQuery is the duration above which a statement is logged as slow.
const DefaultSlowQuery = 200 * time.Millisecond

// GormLogrusLogger routes gorm's statement log into logrus. Successful fast
// statements only show at trace level, since a harvest issues one upsert per
// identifier.
type GormLogrusLogger struct {
	logger    *logrus.Logger
	slowQuery time.Duration
	level     gormlogger.LogLevel
}

var _ gormlogger.Interface = (*GormLogrusLogger)(nil)

// NewGormLogrusLogger creates a gorm logger writing to base.
func NewGormLogrusLogger(base *logrus.Logger) *GormLogrusLogger {
	return &GormLogrusLogger{
		logger:    base,
		slowQuery: DefaultSlowQuery,
		level:     gormlogger.Warn,
	}
}

// WithSlowQuery returns a copy that reports statements slower than d.
func (l *GormLogrusLogger) WithSlowQuery(d time.Duration) *GormLogrusLogger {
	clone := *l
	clone.slowQuery = d
	return &clone
}

// LogMode implements logger.Interface.
func (l *GormLogrusLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *GormLogrusLogger) entry(ctx context.Context, kind string) *logrus.Entry {
	return l.logger.WithContext(ctx).WithFields(logrus.Fields{
		"component": "store",
		"kind":      kind,
	})
}

// Info implements logger.Interface.
func (l *GormLogrusLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		l.entry(ctx, "info").Debugf(msg, args...)
	}
}

// Warn implements logger.Interface.
func (l *GormLogrusLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.entry(ctx, "warn").Warnf(msg, args...)
	}
}

// Error implements logger.Interface.
func (l *GormLogrusLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		l.entry(ctx, "error").Errorf(msg, args...)
	}
}

// Trace implements logger.Interface.
func (l *GormLogrusLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	slow := l.slowQuery > 0 && elapsed > l.slowQuery

	if !failed && !slow && !l.logger.IsLevelEnabled(logrus.TraceLevel) {
		return
	}

	sql, rows := fc()
	entry := l.entry(ctx, "statement").WithFields(logrus.Fields{
		"sql":      sql,
		"rows":     rows,
		"duration": elapsed.String(),
	})

	switch {
	case failed:
		entry.WithError(err).Error("Statement failed")
	case slow:
		entry.Warn("Slow statement")
	default:
		entry.Trace("Statement executed")
	}
}
