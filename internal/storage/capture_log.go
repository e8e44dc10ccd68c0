package storage

import (
	"context"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"rewardwatch/internal/ctxkeys"
	"rewardwatch/internal/logger"
	"rewardwatch/pkg/model"
)

// CaptureRow 捕获日志表
type CaptureRow struct {
	Seq          uint   `gorm:"primaryKey;autoIncrement"`
	CallID       string `gorm:"size:64;index"`
	Transport    string `gorm:"size:16"`
	URL          string
	Method       string `gorm:"size:16"`
	RequestBody  string
	TimestampMs  int64
	Status       int
	Error        string
	Response     []byte
	ResponseJSON bool
}

func (r CaptureRow) toCall() model.CapturedCall {
	return model.CapturedCall{
		ID:           r.CallID,
		Transport:    model.Transport(r.Transport),
		URL:          r.URL,
		Method:       r.Method,
		RequestBody:  r.RequestBody,
		TimestampMs:  r.TimestampMs,
		Status:       model.CallStatus(r.Status),
		Error:        r.Error,
		ResponseBody: r.Response,
		ResponseJSON: r.ResponseJSON,
	}
}

func rowOf(c model.CapturedCall) *CaptureRow {
	return &CaptureRow{
		CallID:       c.ID,
		Transport:    string(c.Transport),
		URL:          c.URL,
		Method:       c.Method,
		RequestBody:  c.RequestBody,
		TimestampMs:  c.TimestampMs,
		Status:       int(c.Status),
		Error:        c.Error,
		Response:     c.ResponseBody,
		ResponseJSON: c.ResponseJSON,
	}
}

// CaptureLog 最近捕获调用的有界日志，仅供展示，会话结束即丢弃
type CaptureLog struct {
	db     *gorm.DB
	retain int
	log    logger.Logger
}

// Options 捕获日志参数
type Options struct {
	Dsn    string
	Prefix string
	Retain int
	// Verbose 以 debug 级别输出每条 SQL
	Verbose bool
}

// OpenCaptureLog 打开 SQLite 并重建捕获日志表
func OpenCaptureLog(opts Options, l logger.Logger) (*CaptureLog, error) {
	if l == nil {
		l = logger.NewNop()
	}
	if opts.Dsn == "" {
		opts.Dsn = ":memory:"
	}
	if opts.Retain <= 0 {
		opts.Retain = 50
	}

	db, err := gorm.Open(sqlite.Open(opts.Dsn), &gorm.Config{
		Logger:         newSQLLogger(l.With("component", "sqlite"), opts.Verbose),
		NamingStrategy: schema.NamingStrategy{TablePrefix: opts.Prefix},
	})
	if err != nil {
		return nil, fmt.Errorf("打开捕获日志数据库: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层连接: %w", err)
	}
	// 内存库每个连接各自独立，只能保持单连接
	sqlDB.SetMaxOpenConns(1)

	// 不跨会话保留
	if err := db.Migrator().DropTable(&CaptureRow{}); err != nil {
		return nil, fmt.Errorf("清理捕获日志表: %w", err)
	}
	if err := db.AutoMigrate(&CaptureRow{}); err != nil {
		return nil, fmt.Errorf("创建捕获日志表: %w", err)
	}
	return &CaptureLog{db: db, retain: opts.Retain, log: l}, nil
}

// Append 追加一条捕获记录并裁剪到保留窗口
func (c *CaptureLog) Append(ctx context.Context, call model.CapturedCall) error {
	ctx = context.WithValue(ctx, ctxkeys.CallIDKey{}, call.ID)
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := rowOf(call)
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		cutoff := int64(row.Seq) - int64(c.retain)
		if cutoff <= 0 {
			return nil
		}
		return tx.Where("seq <= ?", cutoff).Delete(&CaptureRow{}).Error
	})
}

// Recent 最近 n 条，按时间倒序
func (c *CaptureLog) Recent(ctx context.Context, n int) ([]model.CapturedCall, error) {
	var rows []CaptureRow
	if err := c.db.WithContext(ctx).Order("seq desc").Limit(n).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.CapturedCall, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toCall())
	}
	return out, nil
}

// Count 当前保留的条数
func (c *CaptureLog) Count(ctx context.Context) (int64, error) {
	var n int64
	err := c.db.WithContext(ctx).Model(&CaptureRow{}).Count(&n).Error
	return n, err
}

// Clear 清空日志
func (c *CaptureLog) Clear(ctx context.Context) error {
	return c.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&CaptureRow{}).Error
}

// Close 关闭数据库
func (c *CaptureLog) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
