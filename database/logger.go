package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kbukum/resilience-core/logger"
)

// maxLoggedSQL bounds the statement text in query logs. Outbox inserts carry
// whole payloads.
const maxLoggedSQL = 512

func parseLogLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

// gormLogger routes GORM's output to the service logger, tagged with the
// request id of the calling context.
type gormLogger struct {
	log           *logger.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

func newGormLogger(log *logger.Logger, slowThreshold time.Duration, level gormlogger.LogLevel) gormlogger.Interface {
	return &gormLogger{log: log.WithComponent("gorm"), level: level, slowThreshold: slowThreshold}
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *gormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		l.log.WithContext(ctx).Info(fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.log.WithContext(ctx).Warn(fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		l.log.WithContext(ctx).Error(fmt.Sprintf(msg, data...))
	}
}

// Trace logs failed and slow statements. Not-found lookups and statements
// abandoned because the caller went away are expected and logged at info.
func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	fields := func() map[string]interface{} {
		sql, rows := fc()
		return logger.Fields(
			"sql", truncateSQL(sql),
			"rows", rows,
			logger.FieldDuration, elapsed.Milliseconds(),
		)
	}
	log := l.log.WithContext(ctx)

	switch {
	case err != nil && (errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, context.Canceled)):
		if l.level >= gormlogger.Info {
			log.Info("Query ended early", fields(), logger.Fields(logger.FieldError, err.Error()))
		}
	case err != nil:
		if l.level >= gormlogger.Error {
			log.Error("Query failed", fields(), logger.Fields(
				logger.FieldError, err.Error(),
				"sqlstate", SQLState(err),
				"retryable", IsRetryableError(err),
			))
		}
	case l.slowThreshold > 0 && elapsed > l.slowThreshold:
		if l.level >= gormlogger.Warn {
			log.Warn("Slow query", fields())
		}
	case l.level >= gormlogger.Info:
		log.Debug("Query", fields())
	}
}

func truncateSQL(sql string) string {
	if len(sql) <= maxLoggedSQL {
		return sql
	}
	cut := maxLoggedSQL
	for cut > 0 && !utf8.RuneStart(sql[cut]) {
		cut--
	}
	return sql[:cut] + "..."
}
