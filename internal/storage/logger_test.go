package storage

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"rewardwatch/internal/ctxkeys"
	"rewardwatch/internal/logger"
)

func TestSQLLoggerTrace(t *testing.T) {
	var buf bytes.Buffer
	l := newSQLLogger(logger.NewWithWriter(&buf, zerolog.DebugLevel), false)
	ctx := context.WithValue(context.Background(), ctxkeys.CallIDKey{}, "call-1")
	stmt := func() (string, int64) { return "INSERT INTO x", 1 }

	l.Trace(ctx, time.Now(), stmt, nil)
	assert.Empty(t, buf.String(), "plain statements are silent unless verbose")

	l.Trace(ctx, time.Now(), stmt, gorm.ErrRecordNotFound)
	assert.Empty(t, buf.String())

	l.Trace(ctx, time.Now(), stmt, errors.New("disk I/O error"))
	assert.Contains(t, buf.String(), "disk I/O error")
	assert.Contains(t, buf.String(), `"callID":"call-1"`)
	buf.Reset()

	l.Trace(ctx, time.Now().Add(-time.Second), stmt, nil)
	assert.Contains(t, buf.String(), "慢查询")
}

func TestSQLLoggerVerboseAndSilent(t *testing.T) {
	var buf bytes.Buffer
	l := newSQLLogger(logger.NewWithWriter(&buf, zerolog.DebugLevel), true)
	l.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 1 }, nil)
	assert.Contains(t, buf.String(), "SELECT 1")
	assert.NotContains(t, buf.String(), "callID")
	buf.Reset()

	silent := l.LogMode(gormlogger.Silent)
	silent.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 1 }, errors.New("x"))
	silent.Error(context.Background(), "boom %d", 1)
	assert.Empty(t, buf.String())

	l.Warn(context.Background(), "retry %d", 2)
	assert.Contains(t, buf.String(), "retry 2")
}
