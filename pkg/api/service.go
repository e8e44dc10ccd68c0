package api

import (
	"context"
	"net/http"

	"rewardwatch/internal/config"
	"rewardwatch/internal/handler"
	"rewardwatch/internal/logger"
	"rewardwatch/internal/service"
	"rewardwatch/pkg/model"
)

// Snapshot 数据视图
type Snapshot = handler.Snapshot

// Service 服务接口
type Service interface {
	// Start 开始消费捕获事件
	Start(ctx context.Context) error

	// Close 分离全部目标并释放资源
	Close() error

	// HTTPClient 返回经过拦截的 HTTP 客户端
	HTTPClient(base *http.Client) *http.Client

	// ListTargets 列出 DevTools 目标
	ListTargets(ctx context.Context) ([]model.TargetInfo, error)

	// AttachTarget 附加目标
	AttachTarget(ctx context.Context, target string) (model.TargetInfo, error)

	// DetachTarget 分离目标
	DetachTarget(id model.TargetID) error

	// Apps 当前全部应用记录
	Apps() []model.EnrichedRecord

	// Size 应用数
	Size() int

	// Summary 汇总统计
	Summary() model.Summary

	// Snapshot 完整数据视图
	Snapshot() Snapshot

	// CutOffTime 数据截止时间
	CutOffTime() string

	// RecentCaptures 最近的捕获调用，新的在前
	RecentCaptures(ctx context.Context, n int) ([]model.CapturedCall, error)

	// OnUpdate 订阅数据表更新
	OnUpdate(fn func(Snapshot))

	// Reset 清空数据表
	Reset(ctx context.Context) error
}

// NewService 创建并返回服务接口实现
func NewService(cfg *config.Config, l logger.Logger) (Service, error) {
	svc, err := service.New(cfg, l)
	if err != nil {
		return nil, err
	}
	return &adapter{svc}, nil
}

type adapter struct {
	*service.Service
}

func (a *adapter) OnUpdate(fn func(Snapshot)) { a.Service.OnUpdate(fn) }

var _ Service = (*adapter)(nil)
