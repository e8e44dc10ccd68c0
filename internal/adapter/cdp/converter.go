package cdp

import (
	"encoding/base64"
	"time"

	"rewardwatch/pkg/model"
	"rewardwatch/pkg/traffic"

	"github.com/mafredri/cdp/protocol/network"
)

// ToNeutralRequest 将 CDP requestWillBeSent 事件转换为中立 Request 模型
func ToNeutralRequest(ev *network.RequestWillBeSentReply, now time.Time) *traffic.Request {
	req := traffic.NewRequest()
	req.ID = string(ev.RequestID)
	req.URL = ev.Request.URL
	if ev.Request.Method != "" {
		req.Method = ev.Request.Method
	}
	if ev.Request.PostData != nil {
		req.Body = []byte(*ev.Request.PostData)
	}
	req.StartedAtMs = now.UnixMilli()
	return req
}

// ToNeutralResponse 将 getResponseBody 结果转换为中立 Response 模型
func ToNeutralResponse(status int, body string, base64Encoded bool) *traffic.Response {
	res := traffic.NewResponse()
	res.StatusCode = status
	if base64Encoded {
		if b, err := base64.StdEncoding.DecodeString(body); err == nil {
			res.Body = b
			return res
		}
	}
	res.Body = []byte(body)
	return res
}

// TransportOf 资源类型映射为捕获通道，非 XHR/Fetch 的资源不关心
func TransportOf(rt network.ResourceType) (model.Transport, bool) {
	switch rt {
	case network.ResourceTypeXHR:
		return model.TransportXHR, true
	case network.ResourceTypeFetch:
		return model.TransportFetch, true
	default:
		return "", false
	}
}
