package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/utils"
)

// defaultSlowQueryThreshold is used when Config.SlowQueryThreshold is left
// at its zero value. A Source poll or an Item retention sweep touching a
// few hundred rows on SQLite should never approach this.
const defaultSlowQueryThreshold = 200 * time.Millisecond

// ormLogger adapts a *zap.Logger to the gormlogger.Interface so that all
// GORM internal messages (SQL queries, slow query warnings, errors) are
// routed through the application logger instead of being written directly
// to stdout. Its two knobs — slowQueryThreshold and logRecordNotFound —
// are exposed on store.Config rather than hardcoded, since a SQLite-backed
// single-user deployment and a Postgres-backed one want different defaults.
type ormLogger struct {
	log                *zap.Logger
	level              gormlogger.LogLevel
	slowQueryThreshold time.Duration
	logRecordNotFound  bool
}

// newOrmLogger returns a gormlogger.Interface backed by the provided
// *zap.Logger. Use gormlogger.Silent to disable all GORM logging, or
// gormlogger.Info to log every SQL statement (useful during development).
//
// slowQueryThreshold <= 0 disables slow-query warnings entirely.
// logRecordNotFound controls whether gorm.ErrRecordNotFound — a routine
// application-level condition for UmbraRelay's upsert-by-natural-key and
// lookup paths, not a database fault — is logged at error level.
func newOrmLogger(log *zap.Logger, level gormlogger.LogLevel, slowQueryThreshold time.Duration, logRecordNotFound bool) gormlogger.Interface {
	if level == 0 {
		level = gormlogger.Warn
	}
	return &ormLogger{
		log:                log.WithOptions(zap.AddCallerSkip(3)),
		level:              level,
		slowQueryThreshold: slowQueryThreshold,
		logRecordNotFound:  logRecordNotFound,
	}
}

// LogMode returns a new logger instance with the given log level.
// GORM calls this internally when it needs to override the log level for a
// specific operation (e.g. db.Debug() sets level to Info for that call).
func (l *ormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	copy := *l
	copy.level = level
	return &copy
}

// Info logs informational messages emitted by GORM internals.
func (l *ormLogger) Info(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		l.log.Info(fmt.Sprintf(msg, args...))
	}
}

// Warn logs warning messages emitted by GORM internals.
func (l *ormLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.log.Warn(fmt.Sprintf(msg, args...))
	}
}

// Error logs error messages emitted by GORM internals.
func (l *ormLogger) Error(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		l.log.Error(fmt.Sprintf(msg, args...))
	}
}

// Trace logs individual SQL statements along with their execution time and
// the number of rows affected. It also emits a warning for slow queries.
func (l *ormLogger) Trace(_ context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	fields := []zap.Field{
		zap.String("sql", sql),
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
		zap.String("caller", utils.FileWithLineNum()),
	}

	isRecordNotFound := errors.Is(err, gorm.ErrRecordNotFound)
	switch {
	case err != nil && (l.logRecordNotFound || !isRecordNotFound):
		// Log actual database errors at error level.
		l.log.Error("gorm query error", append(fields, zap.Error(err))...)

	case l.slowQueryThreshold > 0 && elapsed > l.slowQueryThreshold:
		// Log slow queries at warn level so they are visible without enabling
		// full SQL tracing (gormlogger.Info).
		l.log.Warn("gorm slow query", fields...)

	case l.level >= gormlogger.Info:
		// Full SQL tracing, only active when log level is Info or higher.
		l.log.Debug("gorm query", fields...)
	}
}