package interceptor

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"rewardwatch/internal/logger"
	"rewardwatch/internal/metrics"
	"rewardwatch/internal/rules"
	"rewardwatch/pkg/model"
	"rewardwatch/pkg/traffic"
)

// 非 JSON 响应保留的最大字符数
const rawPreviewChars = 200

// CaptureHandler 接收捕获事件
type CaptureHandler func(model.CapturedCall)

// Interceptor 目标调用拦截器：匹配、构造捕获记录并分发给订阅者
type Interceptor struct {
	matcher *rules.Matcher
	log     logger.Logger
	now     func() time.Time

	mu       sync.RWMutex
	handlers []CaptureHandler
}

// New 创建拦截器
func New(m *rules.Matcher, l logger.Logger) *Interceptor {
	if l == nil {
		l = logger.NewNop()
	}
	return &Interceptor{matcher: m, log: l, now: time.Now}
}

// OnCapture 注册捕获回调
func (i *Interceptor) OnCapture(h CaptureHandler) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.handlers = append(i.handlers, h)
}

// Matches 判断调用是否为目标调用
func (i *Interceptor) Matches(url string, body []byte) bool {
	return i.matcher.Match(url, body)
}

// MatchesURL 仅按 URL 快速判断
func (i *Interceptor) MatchesURL(url string) bool {
	return i.matcher.MatchURL(url)
}

// Begin 为命中的请求创建捕获记录骨架
func (i *Interceptor) Begin(transport model.Transport, req *traffic.Request) model.CapturedCall {
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	ts := req.StartedAtMs
	if ts == 0 {
		ts = i.now().UnixMilli()
	}
	return model.CapturedCall{
		ID:          id,
		Transport:   transport,
		URL:         req.URL,
		Method:      req.Method,
		RequestBody: string(req.Body),
		TimestampMs: ts,
	}
}

// Complete 以响应填充捕获记录并分发
func (i *Interceptor) Complete(call model.CapturedCall, res *traffic.Response) {
	call.Status = model.CallStatus(res.StatusCode)
	call.ResponseBody, call.ResponseJSON = captureBody(res.Body)
	i.emit(call)
}

// Fail 以网络错误填充捕获记录并分发
func (i *Interceptor) Fail(call model.CapturedCall, errText string) {
	call.Status = model.StatusError
	call.Error = errText
	i.emit(call)
}

func (i *Interceptor) emit(call model.CapturedCall) {
	metrics.ObserveCapture(string(call.Transport), call.Status.Failed())
	i.log.Debug("捕获目标调用", "id", call.ID, "transport", call.Transport, "url", call.URL, "status", int(call.Status))

	i.mu.RLock()
	handlers := make([]CaptureHandler, len(i.handlers))
	copy(handlers, i.handlers)
	i.mu.RUnlock()

	for _, h := range handlers {
		h(call)
	}
}

// captureBody 合法 JSON 原样保留，否则截取前 200 个字符
func captureBody(body []byte) ([]byte, bool) {
	if gjson.ValidBytes(body) {
		return append([]byte(nil), body...), true
	}
	return truncateChars(body, rawPreviewChars), false
}

func truncateChars(b []byte, n int) []byte {
	count := 0
	for idx := range string(b) {
		if count == n {
			return append([]byte(nil), b[:idx]...)
		}
		count++
	}
	return append([]byte(nil), b...)
}
