package traffic

import "net/http"

// Request 中立的请求模型，fetch 与 xhr 两种通道共用
type Request struct {
	ID           string // 事务唯一ID（CDP RequestID 或生成的 UUID）
	URL          string // 完整URL
	Method       string // HTTP方法
	Body         []byte // 请求体原始数据
	ResourceType string // 资源类型 (如 XHR, Fetch)
	StartedAtMs  int64  // 请求发起时间（毫秒）
}

// Response 中立的响应模型
type Response struct {
	StatusCode int    // 状态码
	Body       []byte // 响应体数据
}

// NewRequest 创建初始化请求对象
func NewRequest() *Request {
	return &Request{Method: http.MethodGet}
}

// NewResponse 创建初始化响应对象
func NewResponse() *Response {
	return &Response{StatusCode: http.StatusOK}
}
