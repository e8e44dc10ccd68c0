package handler

import (
	"context"
	"sync"
	"time"

	"rewardwatch/internal/aggregator"
	"rewardwatch/internal/decoder"
	"rewardwatch/internal/enricher"
	"rewardwatch/internal/logger"
	"rewardwatch/internal/metrics"
	"rewardwatch/internal/store"
	"rewardwatch/pkg/model"
)

// CaptureSink 捕获日志写入端
type CaptureSink interface {
	Append(ctx context.Context, call model.CapturedCall) error
}

// UpdateFunc 数据表更新通知
type UpdateFunc func(Snapshot)

// Snapshot 某一时刻的数据视图
type Snapshot struct {
	Apps       []model.EnrichedRecord `json:"apps"`
	Summary    model.Summary          `json:"summary"`
	CutOffTime string                 `json:"cutOffTime,omitempty"`
	UpdatedAt  time.Time              `json:"updatedAt"`
}

// Handler 捕获事件处理器：解码、计算并写入数据表，是数据表唯一的写入者
type Handler struct {
	store    *store.Store
	captures CaptureSink
	loc      *time.Location
	now      func() time.Time
	log      logger.Logger

	mu         sync.RWMutex
	cutOffTime string
	updatedAt  time.Time
	listeners  []UpdateFunc
}

// Config 配置选项
type Config struct {
	Store    *store.Store
	Captures CaptureSink
	Location *time.Location
	Clock    func() time.Time
	Logger   logger.Logger
}

// New 创建事件处理器
func New(cfg Config) *Handler {
	h := &Handler{
		store:    cfg.Store,
		captures: cfg.Captures,
		loc:      cfg.Location,
		now:      cfg.Clock,
		log:      cfg.Logger,
	}
	if h.store == nil {
		h.store = store.New()
	}
	if h.loc == nil {
		h.loc = time.Local
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.log == nil {
		h.log = logger.NewNop()
	}
	return h
}

// Store 底层数据表
func (h *Handler) Store() *store.Store { return h.store }

// OnUpdate 注册更新回调，回调在处理协程中同步执行
func (h *Handler) OnUpdate(fn UpdateFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// Run 消费捕获事件直至 ctx 结束或通道关闭
func (h *Handler) Run(ctx context.Context, calls <-chan model.CapturedCall) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case call, ok := <-calls:
			if !ok {
				return nil
			}
			h.Handle(ctx, call)
		}
	}
}

// Handle 处理单个捕获事件，返回写入的记录数
func (h *Handler) Handle(ctx context.Context, call model.CapturedCall) int {
	l := h.log.With("id", call.ID, "transport", string(call.Transport))

	if h.captures != nil {
		if err := h.captures.Append(ctx, call); err != nil {
			l.Err(err, "写入捕获日志失败")
		}
	}

	if call.Status.Failed() {
		l.Warn("目标调用失败", "error", call.Error)
		return 0
	}
	if !call.ResponseJSON {
		l.Warn("响应不是 JSON，已忽略", "status", int(call.Status))
		metrics.ObserveDecode(string(decoder.LayerEnvelope), 0)
		return 0
	}

	res := decoder.DecodeIn(call.ResponseBody, h.loc)
	metrics.ObserveDecode(string(res.Mismatch), len(res.Records))
	if res.Mismatch != decoder.LayerNone {
		l.Warn("响应结构不符", "layer", string(res.Mismatch))
		return 0
	}

	today := h.now().In(h.loc)
	for _, rec := range res.Records {
		h.store.Upsert(rec.AppID, enricher.Enrich(rec, today))
	}
	metrics.SetStoreSize(h.store.Size())

	h.mu.Lock()
	if res.CutOffTime != "" {
		h.cutOffTime = res.CutOffTime
	}
	h.updatedAt = today
	listeners := make([]UpdateFunc, len(h.listeners))
	copy(listeners, h.listeners)
	h.mu.Unlock()

	l.Info("数据表已更新", "records", len(res.Records), "apps", h.store.Size())

	if len(listeners) > 0 {
		snap := h.Snapshot()
		for _, fn := range listeners {
			fn(snap)
		}
	}
	return len(res.Records)
}

// CutOffTime 最近一次响应给出的数据截止时间
func (h *Handler) CutOffTime() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cutOffTime
}

// Snapshot 当前数据视图
func (h *Handler) Snapshot() Snapshot {
	apps := h.store.Values()
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Snapshot{
		Apps:       apps,
		Summary:    aggregator.Aggregate(apps),
		CutOffTime: h.cutOffTime,
		UpdatedAt:  h.updatedAt,
	}
}

// Reset 清空数据表与截止时间
func (h *Handler) Reset() {
	h.store.Reset()
	metrics.SetStoreSize(0)
	h.mu.Lock()
	h.cutOffTime = ""
	h.updatedAt = time.Time{}
	h.mu.Unlock()
}
