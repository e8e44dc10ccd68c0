package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"rewardwatch/internal/bridge"
	"rewardwatch/internal/cdp"
	"rewardwatch/internal/config"
	"rewardwatch/internal/handler"
	"rewardwatch/internal/interceptor"
	"rewardwatch/internal/logger"
	"rewardwatch/internal/rules"
	"rewardwatch/internal/session"
	"rewardwatch/internal/storage"
	"rewardwatch/internal/store"
	"rewardwatch/pkg/model"
)

var (
	ErrNotStarted     = errors.New("服务未启动")
	ErrAlreadyStarted = errors.New("服务已启动")
	ErrTargetAttached = errors.New("目标已附加")
	ErrTargetNotFound = errors.New("目标未附加")
)

// Service 组装拦截、通道、处理与存储的服务实现
type Service struct {
	cfg      *config.Config
	log      logger.Logger
	icpt     *interceptor.Interceptor
	bridge   *bridge.Bridge
	handler  *handler.Handler
	captures *storage.CaptureLog
	sessions *session.Manager

	mu      sync.Mutex
	runCtx  context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group
	unsub   func()
	started bool
	closed  bool
}

// New 按配置创建服务，此时尚未开始消费捕获事件
func New(cfg *config.Config, l logger.Logger) (*Service, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if l == nil {
		l = logger.NewNop()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	captures, err := storage.OpenCaptureLog(storage.Options{
		Dsn:     cfg.Sqlite.Dsn,
		Prefix:  cfg.Sqlite.Prefix,
		Retain:  cfg.CaptureLog.Retain,
		Verbose: strings.EqualFold(cfg.Log.Level, "debug"),
	}, l)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:      cfg,
		log:      l,
		icpt:     interceptor.New(rules.NewMatcher(cfg.Target.URL, cfg.Target.Service), l.With("component", "interceptor")),
		bridge:   bridge.New(cfg.Bridge.Capacity, l),
		captures: captures,
		sessions: session.NewManager(l),
	}
	s.handler = handler.New(handler.Config{
		Store:    store.New(),
		Captures: captures,
		Location: loc,
		Logger:   l.With("component", "handler"),
	})
	s.icpt.OnCapture(s.bridge.Emit)
	return s, nil
}

// Start 启动处理协程，ctx 结束或 Close 时停止
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("服务已关闭")
	}
	if s.started {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	calls, unsub := s.bridge.Subscribe()
	g.Go(func() error {
		return s.handler.Run(gctx, calls)
	})

	s.runCtx, s.cancel, s.group, s.unsub = gctx, cancel, g, unsub
	s.started = true
	s.log.Info("服务已启动", "target", s.cfg.Target.URL, "service", s.cfg.Target.Service)
	return nil
}

// Close 分离全部目标，停止处理并释放存储
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	s.mu.Unlock()

	s.sessions.StopAll()
	var err error
	if started {
		s.cancel()
		err = s.group.Wait()
		s.unsub()
	}
	s.bridge.Close()
	if cerr := s.captures.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	s.log.Info("服务已关闭")
	return err
}

// HTTPClient 返回经过拦截的客户端，base 为 nil 时使用默认客户端
func (s *Service) HTTPClient(base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	return s.icpt.WrapClient(base)
}

// Transport 包装 RoundTripper
func (s *Service) Transport(base http.RoundTripper) http.RoundTripper {
	return s.icpt.Install(base)
}

// ListTargets 列出 DevTools 目标并标记已附加的
func (s *Service) ListTargets(ctx context.Context) ([]model.TargetInfo, error) {
	targets, err := cdp.ListTargets(ctx, s.cfg.DevTools.URL)
	if err != nil {
		return nil, err
	}
	for i := range targets {
		_, targets[i].Attached = s.sessions.Get(targets[i].ID)
	}
	return targets, nil
}

// AttachTarget 附加目标并开始观察。target 为空时取配置的默认目标
func (s *Service) AttachTarget(ctx context.Context, target string) (model.TargetInfo, error) {
	s.mu.Lock()
	started := s.started && !s.closed
	s.mu.Unlock()
	if !started {
		return model.TargetInfo{}, ErrNotStarted
	}
	if target == "" {
		target = s.cfg.DevTools.Target
	}

	obs, err := cdp.Attach(ctx, s.cfg.DevTools.URL, target, s.icpt, s.cfg.DevTools.BodyTimeout, s.log)
	if err != nil {
		return model.TargetInfo{}, err
	}
	return s.launch(obs.Info(), obs)
}

// runner 已附加目标的观察循环
type runner interface {
	Run(ctx context.Context) error
	Close() error
}

// launch 登记会话并在处理组中运行观察循环。
// 检查关闭状态与 g.Go 在同一把锁内，Close 等待处理组前不会再有新协程加入
func (s *Service) launch(info model.TargetInfo, obs runner) (model.TargetInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.closed {
		_ = obs.Close()
		return model.TargetInfo{}, ErrNotStarted
	}

	octx, cancel := context.WithCancel(s.runCtx)
	sess, ok := s.sessions.Create(info, cancel)
	if !ok {
		cancel()
		_ = obs.Close()
		return model.TargetInfo{}, fmt.Errorf("%w: %s", ErrTargetAttached, info.ID)
	}

	s.group.Go(func() error {
		err := obs.Run(octx)
		if cerr := obs.Close(); cerr != nil && err == nil && octx.Err() == nil {
			err = cerr
		}
		if err != nil {
			s.log.Err(err, "目标观察结束", "targetID", string(sess.Info.ID))
		}
		if cur, ok := s.sessions.Get(sess.Info.ID); ok && cur == sess {
			s.sessions.Delete(sess.Info.ID)
		}
		sess.Finish(err)
		// 单个目标断开不影响其他目标和处理协程
		return nil
	})
	return sess.Info, nil
}

// DetachTarget 停止观察目标
func (s *Service) DetachTarget(id model.TargetID) error {
	sess, ok := s.sessions.Delete(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrTargetNotFound, id)
	}
	return sess.Stop()
}

// Sessions 已附加的目标
func (s *Service) Sessions() []model.TargetInfo {
	list := s.sessions.List()
	out := make([]model.TargetInfo, 0, len(list))
	for _, sess := range list {
		out = append(out, sess.Info)
	}
	return out
}

// Apps 当前全部应用记录
func (s *Service) Apps() []model.EnrichedRecord { return s.handler.Store().Values() }

// Size 应用数
func (s *Service) Size() int { return s.handler.Store().Size() }

// Summary 汇总统计
func (s *Service) Summary() model.Summary { return s.handler.Snapshot().Summary }

// Snapshot 完整数据视图
func (s *Service) Snapshot() handler.Snapshot { return s.handler.Snapshot() }

// CutOffTime 数据截止时间
func (s *Service) CutOffTime() string { return s.handler.CutOffTime() }

// RecentCaptures 最近 n 条捕获，n<=0 时取配置的展示条数
func (s *Service) RecentCaptures(ctx context.Context, n int) ([]model.CapturedCall, error) {
	if n <= 0 {
		n = s.cfg.CaptureLog.Display
	}
	return s.captures.Recent(ctx, n)
}

// OnUpdate 注册数据表更新回调
func (s *Service) OnUpdate(fn handler.UpdateFunc) { s.handler.OnUpdate(fn) }

// Dropped 通道因缓冲满丢弃的事件数
func (s *Service) Dropped() int64 { return s.bridge.Dropped() }

// Reset 清空数据表与捕获日志
func (s *Service) Reset(ctx context.Context) error {
	s.handler.Reset()
	return s.captures.Clear(ctx)
}
