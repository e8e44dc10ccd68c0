package cdp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	adapter "rewardwatch/internal/adapter/cdp"
	"rewardwatch/internal/interceptor"
	"rewardwatch/internal/logger"
	"rewardwatch/pkg/model"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/rpcc"
)

// bodySource 拉取响应体，*cdp.Client 的 Network 域满足该接口
type bodySource interface {
	GetResponseBody(ctx context.Context, args *network.GetResponseBodyArgs) (*network.GetResponseBodyReply, error)
}

// errDetached 观察结束时未完成请求的错误描述
const errDetached = "target detached"

// pendingCall 已发出、尚未完成的目标请求（相当于 XHR 上挂的请求信息）
type pendingCall struct {
	call      model.CapturedCall
	transport model.Transport
	typed     bool
	status    int
}

// Observer 通过 CDP Network 域观察页面自身发出的 XHR/Fetch 请求
type Observer struct {
	target      model.TargetID
	info        model.TargetInfo
	icpt        *interceptor.Interceptor
	log         logger.Logger
	bodyTimeout time.Duration
	now         func() time.Time

	conn   *rpcc.Conn
	client *cdp.Client
	bodies bodySource

	mu      sync.Mutex
	pending map[network.RequestID]*pendingCall
	wg      sync.WaitGroup
}

func newObserver(target model.TargetID, icpt *interceptor.Interceptor, bodies bodySource, bodyTimeout time.Duration, l logger.Logger) *Observer {
	if l == nil {
		l = logger.NewNop()
	}
	if bodyTimeout <= 0 {
		bodyTimeout = 5 * time.Second
	}
	return &Observer{
		target:      target,
		info:        model.TargetInfo{ID: target},
		icpt:        icpt,
		log:         l.With("target", string(target)),
		bodyTimeout: bodyTimeout,
		now:         time.Now,
		bodies:      bodies,
		pending:     make(map[network.RequestID]*pendingCall),
	}
}

// ListTargets 列出 DevTools 端点上的全部目标
func ListTargets(ctx context.Context, devtoolsURL string) ([]model.TargetInfo, error) {
	targets, err := devtool.New(devtoolsURL).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取目标列表: %w", err)
	}
	out := make([]model.TargetInfo, 0, len(targets))
	for _, t := range targets {
		out = append(out, model.TargetInfo{
			ID:    model.TargetID(t.ID),
			Type:  string(t.Type),
			URL:   t.URL,
			Title: t.Title,
		})
	}
	return out, nil
}

// Attach 连接到指定目标。target 可为目标ID或URL片段，为空时取第一个页面
func Attach(ctx context.Context, devtoolsURL, target string, icpt *interceptor.Interceptor, bodyTimeout time.Duration, l logger.Logger) (*Observer, error) {
	targets, err := devtool.New(devtoolsURL).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取目标列表: %w", err)
	}
	sel := selectTarget(targets, target)
	if sel == nil {
		return nil, fmt.Errorf("未找到目标: %q", target)
	}

	conn, err := rpcc.DialContext(ctx, sel.WebSocketDebuggerURL)
	if err != nil {
		return nil, fmt.Errorf("连接目标 %s: %w", sel.ID, err)
	}
	client := cdp.NewClient(conn)

	o := newObserver(model.TargetID(sel.ID), icpt, client.Network, bodyTimeout, l)
	o.conn = conn
	o.client = client
	o.info = model.TargetInfo{ID: o.target, Type: string(sel.Type), URL: sel.URL, Title: sel.Title}
	o.log.Info("已附加目标", "title", sel.Title, "url", sel.URL)
	return o, nil
}

func selectTarget(targets []*devtool.Target, want string) *devtool.Target {
	for _, t := range targets {
		if t.Type != devtool.Page {
			continue
		}
		if want == "" || t.ID == want || strings.Contains(t.URL, want) {
			return t
		}
	}
	return nil
}

// Info 附加的目标信息
func (o *Observer) Info() model.TargetInfo { return o.info }

// Run 订阅网络事件直至 ctx 结束或连接断开
func (o *Observer) Run(ctx context.Context) error {
	if o.client == nil {
		return errors.New("observer 未附加目标")
	}
	defer o.wg.Wait()
	defer o.failPending(errDetached)

	if err := o.client.Network.Enable(ctx, nil); err != nil {
		return fmt.Errorf("启用 Network 域: %w", err)
	}

	reqs, err := o.client.Network.RequestWillBeSent(ctx)
	if err != nil {
		return err
	}
	defer reqs.Close()
	resps, err := o.client.Network.ResponseReceived(ctx)
	if err != nil {
		return err
	}
	defer resps.Close()
	fins, err := o.client.Network.LoadingFinished(ctx)
	if err != nil {
		return err
	}
	defer fins.Close()
	fails, err := o.client.Network.LoadingFailed(ctx)
	if err != nil {
		return err
	}
	defer fails.Close()

	// 保证四类事件按发生顺序交付
	if err := cdp.Sync(reqs, resps, fins, fails); err != nil {
		return err
	}

	o.log.Info("开始观察网络事件")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-reqs.Ready():
			ev, err := reqs.Recv()
			if err != nil {
				return o.streamClosed(ctx, err)
			}
			o.onRequest(ev)
		case <-resps.Ready():
			ev, err := resps.Recv()
			if err != nil {
				return o.streamClosed(ctx, err)
			}
			o.onResponse(ev)
		case <-fins.Ready():
			ev, err := fins.Recv()
			if err != nil {
				return o.streamClosed(ctx, err)
			}
			o.onFinished(ctx, ev)
		case <-fails.Ready():
			ev, err := fails.Recv()
			if err != nil {
				return o.streamClosed(ctx, err)
			}
			o.onFailed(ev)
		}
	}
}

func (o *Observer) streamClosed(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	o.log.Warn("网络事件流中断", "error", err.Error())
	return fmt.Errorf("目标 %s 事件流中断: %w", o.target, err)
}

// Close 断开连接
func (o *Observer) Close() error {
	if o.conn == nil {
		return nil
	}
	return o.conn.Close()
}

// onRequest 请求发出：只登记命中的请求
func (o *Observer) onRequest(ev *network.RequestWillBeSentReply) {
	url := ev.Request.URL
	if !o.icpt.MatchesURL(url) {
		return
	}
	req := adapter.ToNeutralRequest(ev, o.now())
	if !o.icpt.Matches(url, req.Body) {
		return
	}
	call := o.icpt.Begin(model.TransportXHR, req)

	o.mu.Lock()
	o.pending[ev.RequestID] = &pendingCall{call: call, transport: model.TransportXHR}
	o.mu.Unlock()
	o.log.Debug("登记目标请求", "requestID", string(ev.RequestID), "url", url)
}

// onResponse 记录状态码与资源类型，非 XHR/Fetch 的请求放弃跟踪
func (o *Observer) onResponse(ev *network.ResponseReceivedReply) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.pending[ev.RequestID]
	if !ok {
		return
	}
	tr, ok := adapter.TransportOf(ev.Type)
	if !ok {
		delete(o.pending, ev.RequestID)
		return
	}
	p.transport, p.typed = tr, true
	p.status = ev.Response.Status
}

// onFinished 加载完成：异步拉取响应体后分发捕获
func (o *Observer) onFinished(ctx context.Context, ev *network.LoadingFinishedReply) {
	p := o.take(ev.RequestID)
	if p == nil {
		return
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.complete(ctx, ev.RequestID, p)
	}()
}

func (o *Observer) complete(ctx context.Context, id network.RequestID, p *pendingCall) {
	bctx, cancel := context.WithTimeout(ctx, o.bodyTimeout)
	defer cancel()

	p.call.Transport = p.transport
	reply, err := o.bodies.GetResponseBody(bctx, network.NewGetResponseBodyArgs(id))
	if err != nil {
		o.log.Warn("读取响应体失败", "requestID", string(id), "error", err.Error())
		o.icpt.Complete(p.call, adapter.ToNeutralResponse(p.status, "", false))
		return
	}
	o.icpt.Complete(p.call, adapter.ToNeutralResponse(p.status, reply.Body, reply.Base64Encoded))
}

// onFailed 加载失败：以 error 状态分发
func (o *Observer) onFailed(ev *network.LoadingFailedReply) {
	p := o.take(ev.RequestID)
	if p == nil {
		return
	}
	if !p.typed {
		tr, ok := adapter.TransportOf(ev.Type)
		if !ok {
			return
		}
		p.transport = tr
	}
	p.call.Transport = p.transport
	o.icpt.Fail(p.call, ev.ErrorText)
}

// failPending 观察结束时仍未完成的请求以 error 状态分发，每个请求仍只产生一次捕获
func (o *Observer) failPending(reason string) {
	o.mu.Lock()
	pending := o.pending
	o.pending = make(map[network.RequestID]*pendingCall)
	o.mu.Unlock()

	for id, p := range pending {
		p.call.Transport = p.transport
		o.log.Debug("请求未完成，目标已分离", "requestID", string(id))
		o.icpt.Fail(p.call, reason)
	}
}

func (o *Observer) take(id network.RequestID) *pendingCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.pending[id]
	if ok {
		delete(o.pending, id)
	}
	return p
}

// Pending 仍在跟踪中的请求数
func (o *Observer) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}
