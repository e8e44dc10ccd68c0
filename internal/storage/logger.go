package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"rewardwatch/internal/ctxkeys"
	"rewardwatch/internal/logger"
)

// 捕获日志全在内存中，超过该耗时即视为异常
const slowThreshold = 200 * time.Millisecond

// sqlLogger 把 GORM 日志转发到 rewardwatch 日志器，并带上捕获记录ID
type sqlLogger struct {
	log   logger.Logger
	level gormlogger.LogLevel
}

func newSQLLogger(l logger.Logger, verbose bool) *sqlLogger {
	level := gormlogger.Warn
	if verbose {
		level = gormlogger.Info
	}
	return &sqlLogger{log: l, level: level}
}

func (s *sqlLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	c := *s
	c.level = level
	return &c
}

func (s *sqlLogger) Info(ctx context.Context, msg string, data ...any) {
	if s.level >= gormlogger.Info {
		s.log.Info(fmt.Sprintf(msg, data...), s.fields(ctx)...)
	}
}

func (s *sqlLogger) Warn(ctx context.Context, msg string, data ...any) {
	if s.level >= gormlogger.Warn {
		s.log.Warn(fmt.Sprintf(msg, data...), s.fields(ctx)...)
	}
}

func (s *sqlLogger) Error(ctx context.Context, msg string, data ...any) {
	if s.level >= gormlogger.Error {
		s.log.Error(fmt.Sprintf(msg, data...), s.fields(ctx)...)
	}
}

// Trace 失败与慢查询按级别输出，其余语句仅在 verbose 时以 debug 输出
func (s *sqlLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if s.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && s.level >= gormlogger.Error:
		sql, rows := fc()
		s.log.Err(err, "捕获日志 SQL 失败", s.fields(ctx, "sql", sql, "rows", rows, "elapsed", elapsed.String())...)
	case elapsed > slowThreshold && s.level >= gormlogger.Warn:
		sql, rows := fc()
		s.log.Warn("捕获日志慢查询", s.fields(ctx, "sql", sql, "rows", rows, "elapsed", elapsed.String())...)
	case s.level >= gormlogger.Info:
		sql, rows := fc()
		s.log.Debug("捕获日志 SQL", s.fields(ctx, "sql", sql, "rows", rows)...)
	}
}

func (s *sqlLogger) fields(ctx context.Context, kv ...any) []any {
	if ctx == nil {
		return kv
	}
	if id, ok := ctx.Value(ctxkeys.CallIDKey{}).(string); ok && id != "" {
		return append([]any{"callID", id}, kv...)
	}
	return kv
}
