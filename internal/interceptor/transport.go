package interceptor

import (
	"bytes"
	"io"
	"net/http"

	"rewardwatch/pkg/model"
	"rewardwatch/pkg/traffic"
)

// transport 包装 http.RoundTripper 的 fetch 通道，未命中的调用原样透传
type transport struct {
	base http.RoundTripper
	i    *Interceptor
}

// Install 包装底层传输，返回可注入到 http.Client 的 RoundTripper
func (i *Interceptor) Install(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &transport{base: base, i: i}
}

// WrapClient 返回使用拦截传输的客户端副本，原客户端不受影响
func (i *Interceptor) WrapClient(c *http.Client) *http.Client {
	if c == nil {
		c = http.DefaultClient
	}
	wrapped := *c
	wrapped.Transport = i.Install(c.Transport)
	return &wrapped
}

// RoundTrip 实现 http.RoundTripper
func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	url := req.URL.String()
	if !t.i.MatchesURL(url) {
		return t.base.RoundTrip(req)
	}

	out, body := peekRequestBody(req)
	if !t.i.Matches(url, body) {
		return t.base.RoundTrip(out)
	}

	neutral := traffic.NewRequest()
	neutral.URL = url
	neutral.Method = req.Method
	neutral.Body = body
	neutral.ResourceType = string(model.TransportFetch)
	call := t.i.Begin(model.TransportFetch, neutral)

	resp, err := t.base.RoundTrip(out)
	if err != nil {
		t.i.Fail(call, err.Error())
		return nil, err
	}

	data, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	resp.Body = &replayBody{r: bytes.NewReader(data), err: readErr}

	res := traffic.NewResponse()
	res.StatusCode = resp.StatusCode
	res.Body = data
	t.i.Complete(call, res)
	return resp, nil
}

// peekRequestBody 读取请求体用于匹配，返回的请求保证仍可完整发送
func peekRequestBody(req *http.Request) (*http.Request, []byte) {
	if req.Body == nil || req.Body == http.NoBody {
		return req, nil
	}
	if req.GetBody != nil {
		rc, err := req.GetBody()
		if err == nil {
			defer rc.Close()
			if b, err := io.ReadAll(rc); err == nil {
				return req, b
			}
		}
	}

	b, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	out := req.Clone(req.Context())
	out.Body = &replayBody{r: bytes.NewReader(b), err: err}
	if err == nil {
		out.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(b)), nil
		}
	}
	return out, b
}

// replayBody 回放已缓冲的数据，缓冲时遇到的读错误在相同位置重新返回
type replayBody struct {
	r   *bytes.Reader
	err error
}

func (b *replayBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err == io.EOF && b.err != nil {
		return n, b.err
	}
	return n, err
}

func (b *replayBody) Close() error { return nil }
