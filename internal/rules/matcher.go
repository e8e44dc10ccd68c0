package rules

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Matcher 目标接口匹配规则：URL 包含目标端点，且请求体中的 svc 等于目标服务
type Matcher struct {
	urlPattern string
	service    string
}

// NewMatcher 创建匹配器，service 为空时只匹配 URL
func NewMatcher(urlPattern, service string) *Matcher {
	return &Matcher{urlPattern: urlPattern, service: service}
}

// MatchURL 仅判断 URL，供传输层在读取请求体前快速放行
func (m *Matcher) MatchURL(url string) bool {
	return m.urlPattern != "" && strings.Contains(url, m.urlPattern)
}

// Match 判断一次调用是否为目标调用。无请求体但 URL 命中时视为命中
func (m *Matcher) Match(url string, body []byte) bool {
	if !m.MatchURL(url) {
		return false
	}
	if len(body) == 0 || m.service == "" {
		return true
	}
	return m.matchService(body)
}

func (m *Matcher) matchService(body []byte) bool {
	if gjson.ValidBytes(body) {
		svc := gjson.GetBytes(body, "svc")
		return svc.Type == gjson.String && svc.Str == m.service
	}
	// 非 JSON（如表单编码）时退化为子串匹配
	return strings.Contains(string(body), m.service)
}
