package cdp

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rewardwatch/internal/interceptor"
	"rewardwatch/internal/rules"
	"rewardwatch/pkg/model"
)

const (
	testURL = "https://svc-drcn.developer.huawei.com/codeserver/Common/v1/delegate"
	testSvc = "partnerActivityService/v1/developer/queryDeveloperRewardInfo"
)

type fakeBodies struct {
	mu     sync.Mutex
	bodies map[network.RequestID]*network.GetResponseBodyReply
	err    error
}

func (f *fakeBodies) GetResponseBody(_ context.Context, args *network.GetResponseBodyArgs) (*network.GetResponseBodyReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.bodies[args.RequestID]
	if !ok {
		return nil, errors.New("no resource with given identifier found")
	}
	return r, nil
}

type sink struct {
	mu    sync.Mutex
	calls []model.CapturedCall
}

func (s *sink) handle(c model.CapturedCall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
}

func (s *sink) all() []model.CapturedCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.CapturedCall(nil), s.calls...)
}

func newTestObserver(t *testing.T, bodies bodySource) (*Observer, *sink) {
	t.Helper()
	icpt := interceptor.New(rules.NewMatcher(testURL, testSvc), nil)
	s := &sink{}
	icpt.OnCapture(s.handle)
	o := newObserver("page-1", icpt, bodies, time.Second, nil)
	o.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return o, s
}

func sent(id, url, body string) *network.RequestWillBeSentReply {
	ev := &network.RequestWillBeSentReply{
		RequestID: network.RequestID(id),
		Request:   network.Request{URL: url, Method: "POST"},
	}
	if body != "" {
		ev.Request.PostData = &body
	}
	return ev
}

func received(id string, rt network.ResourceType, status int) *network.ResponseReceivedReply {
	return &network.ResponseReceivedReply{
		RequestID: network.RequestID(id),
		Type:      rt,
		Response:  network.Response{Status: status},
	}
}

func TestObserverCapturesXHR(t *testing.T) {
	payload := `{"resJson":"{}"}`
	bodies := &fakeBodies{bodies: map[network.RequestID]*network.GetResponseBodyReply{
		"r1": {Body: base64.StdEncoding.EncodeToString([]byte(payload)), Base64Encoded: true},
	}}
	o, s := newTestObserver(t, bodies)

	o.onRequest(sent("r1", testURL, `{"svc":"`+testSvc+`"}`))
	require.Equal(t, 1, o.Pending())
	o.onResponse(received("r1", network.ResourceTypeXHR, 200))
	o.onFinished(context.Background(), &network.LoadingFinishedReply{RequestID: "r1"})
	o.wg.Wait()

	calls := s.all()
	require.Len(t, calls, 1)
	c := calls[0]
	assert.Equal(t, "r1", c.ID)
	assert.Equal(t, model.TransportXHR, c.Transport)
	assert.Equal(t, "POST", c.Method)
	assert.Equal(t, model.CallStatus(200), c.Status)
	assert.True(t, c.ResponseJSON)
	assert.JSONEq(t, payload, string(c.ResponseBody))
	assert.Equal(t, int64(1700000000000), c.TimestampMs)
	assert.Zero(t, o.Pending())
}

func TestObserverFetchTransport(t *testing.T) {
	bodies := &fakeBodies{bodies: map[network.RequestID]*network.GetResponseBodyReply{
		"r2": {Body: `{}`},
	}}
	o, s := newTestObserver(t, bodies)

	o.onRequest(sent("r2", testURL, `{"svc":"`+testSvc+`"}`))
	o.onResponse(received("r2", network.ResourceTypeFetch, 200))
	o.onFinished(context.Background(), &network.LoadingFinishedReply{RequestID: "r2"})
	o.wg.Wait()

	calls := s.all()
	require.Len(t, calls, 1)
	assert.Equal(t, model.TransportFetch, calls[0].Transport)
}

func TestObserverIgnoresUnrelatedTraffic(t *testing.T) {
	o, s := newTestObserver(t, &fakeBodies{})

	o.onRequest(sent("a", "https://example.com/other", `{"svc":"`+testSvc+`"}`))
	o.onRequest(sent("b", testURL, `{"svc":"someOtherService"}`))
	assert.Zero(t, o.Pending())

	// 非 XHR/Fetch 资源不跟踪
	o.onRequest(sent("c", testURL, `{"svc":"`+testSvc+`"}`))
	o.onResponse(received("c", network.ResourceTypeDocument, 200))
	assert.Zero(t, o.Pending())
	o.onFinished(context.Background(), &network.LoadingFinishedReply{RequestID: "c"})
	o.wg.Wait()

	assert.Empty(t, s.all())
}

func TestObserverLoadingFailed(t *testing.T) {
	o, s := newTestObserver(t, &fakeBodies{})

	o.onRequest(sent("f", testURL, `{"svc":"`+testSvc+`"}`))
	o.onFailed(&network.LoadingFailedReply{RequestID: "f", Type: network.ResourceTypeXHR, ErrorText: "net::ERR_CONNECTION_RESET"})

	calls := s.all()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].Status.Failed())
	assert.Equal(t, "net::ERR_CONNECTION_RESET", calls[0].Error)
	assert.Equal(t, model.TransportXHR, calls[0].Transport)
}

func TestObserverFailsPendingOnExit(t *testing.T) {
	o, s := newTestObserver(t, &fakeBodies{})

	o.onRequest(sent("p1", testURL, `{"svc":"`+testSvc+`"}`))
	o.onRequest(sent("p2", testURL, `{"svc":"`+testSvc+`"}`))
	o.onResponse(received("p2", network.ResourceTypeFetch, 200))
	require.Equal(t, 2, o.Pending())

	o.failPending(errDetached)
	assert.Zero(t, o.Pending())

	calls := s.all()
	require.Len(t, calls, 2)
	byTransport := map[model.Transport]model.CapturedCall{}
	for _, c := range calls {
		assert.True(t, c.Status.Failed())
		assert.Equal(t, errDetached, c.Error)
		byTransport[c.Transport] = c
	}
	assert.Contains(t, byTransport, model.TransportXHR)
	assert.Contains(t, byTransport, model.TransportFetch)

	// 已分发的请求后续事件不再产生捕获
	o.onFinished(context.Background(), &network.LoadingFinishedReply{RequestID: "p1"})
	o.onFailed(&network.LoadingFailedReply{RequestID: "p2", Type: network.ResourceTypeFetch})
	o.wg.Wait()
	assert.Len(t, s.all(), 2)
}

func TestObserverBodyUnavailable(t *testing.T) {
	o, s := newTestObserver(t, &fakeBodies{err: errors.New("evicted")})

	o.onRequest(sent("e", testURL, `{"svc":"`+testSvc+`"}`))
	o.onResponse(received("e", network.ResourceTypeXHR, 200))
	o.onFinished(context.Background(), &network.LoadingFinishedReply{RequestID: "e"})
	o.wg.Wait()

	calls := s.all()
	require.Len(t, calls, 1)
	assert.Equal(t, model.CallStatus(200), calls[0].Status)
	assert.False(t, calls[0].ResponseJSON)
	assert.Empty(t, calls[0].ResponseBody)
}

func TestRunWithoutAttach(t *testing.T) {
	o, _ := newTestObserver(t, &fakeBodies{})
	assert.Error(t, o.Run(context.Background()))
	assert.NoError(t, o.Close())
}

func TestSelectTarget(t *testing.T) {
	targets := []*devtool.Target{
		{ID: "w1", Type: devtool.Type("service_worker"), URL: "https://developer.huawei.com/sw.js"},
		{ID: "p1", Type: devtool.Page, URL: "https://example.com/"},
		{ID: "p2", Type: devtool.Page, URL: "https://developer.huawei.com/consumer/cn/reward"},
	}
	assert.Equal(t, "p1", selectTarget(targets, "").ID)
	assert.Equal(t, "p2", selectTarget(targets, "p2").ID)
	assert.Equal(t, "p2", selectTarget(targets, "developer.huawei.com").ID)
	assert.Nil(t, selectTarget(targets, "nothing"))
}
