package interceptor

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rewardwatch/internal/rules"
	"rewardwatch/pkg/model"
)

const testSvc = "partnerActivityService/v1/developer/queryDeveloperRewardInfo"

type recorder struct {
	mu    sync.Mutex
	calls []model.CapturedCall
}

func (r *recorder) handle(c model.CapturedCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

func (r *recorder) all() []model.CapturedCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.CapturedCall(nil), r.calls...)
}

func newTestInterceptor(t *testing.T) (*Interceptor, *recorder) {
	t.Helper()
	i := New(rules.NewMatcher("/delegate", testSvc), nil)
	rec := &recorder{}
	i.OnCapture(rec.handle)
	return i, rec
}

func TestRoundTripNonMatchingPassthrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "hello")
	}))
	defer srv.Close()

	i, rec := newTestInterceptor(t)
	client := i.WrapClient(srv.Client())

	resp, err := client.Get(srv.URL + "/other")
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "hello", string(b))
	assert.Empty(t, rec.all())
}

func TestRoundTripCapturesJSONAndKeepsBodyReadable(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"resJson":"{}"}`)
	}))
	defer srv.Close()

	i, rec := newTestInterceptor(t)
	client := i.WrapClient(srv.Client())

	reqBody := `{"svc":"` + testSvc + `","reqJson":"{}"}`
	resp, err := client.Post(srv.URL+"/delegate", "application/json", strings.NewReader(reqBody))
	require.NoError(t, err)
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"resJson":"{}"}`, string(b), "caller still sees the full body")
	assert.Equal(t, reqBody, gotBody, "server receives the untouched request body")

	calls := rec.all()
	require.Len(t, calls, 1)
	c := calls[0]
	assert.Equal(t, model.TransportFetch, c.Transport)
	assert.Equal(t, http.MethodPost, c.Method)
	assert.Equal(t, reqBody, c.RequestBody)
	assert.Equal(t, model.CallStatus(200), c.Status)
	assert.True(t, c.ResponseJSON)
	assert.JSONEq(t, `{"resJson":"{}"}`, string(c.ResponseBody))
	assert.NotEmpty(t, c.ID)
	assert.NotZero(t, c.TimestampMs)
}

func TestRoundTripSkipsOtherService(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		if string(b) == `{"svc":"other"}` {
			hits++
		}
	}))
	defer srv.Close()

	i, rec := newTestInterceptor(t)
	resp, err := i.WrapClient(srv.Client()).Post(srv.URL+"/delegate", "application/json", strings.NewReader(`{"svc":"other"}`))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, 1, hits, "peeked body is still delivered")
	assert.Empty(t, rec.all())
}

func TestRoundTripTruncatesNonJSON(t *testing.T) {
	long := strings.Repeat("界", 300)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, long)
	}))
	defer srv.Close()

	i, rec := newTestInterceptor(t)
	resp, err := i.WrapClient(srv.Client()).Get(srv.URL + "/delegate")
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, long, string(b))

	calls := rec.all()
	require.Len(t, calls, 1)
	assert.False(t, calls[0].ResponseJSON)
	assert.Equal(t, model.CallStatus(http.StatusBadGateway), calls[0].Status)
	assert.Equal(t, strings.Repeat("界", 200), string(calls[0].ResponseBody))
}

type failingTransport struct{ err error }

func (f failingTransport) RoundTrip(*http.Request) (*http.Response, error) { return nil, f.err }

func TestRoundTripNetworkFailurePropagates(t *testing.T) {
	netErr := errors.New("connection refused")
	i, rec := newTestInterceptor(t)
	rt := i.Install(failingTransport{err: netErr})

	req, err := http.NewRequest(http.MethodGet, "http://127.0.0.1:1/delegate", nil)
	require.NoError(t, err)
	resp, err := rt.RoundTrip(req)
	assert.Nil(t, resp)
	assert.Same(t, netErr, err, "the original error is returned unchanged")

	calls := rec.all()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].Status.Failed())
	assert.Equal(t, "connection refused", calls[0].Error)
}

type errBody struct {
	data string
	err  error
	done bool
}

func (b *errBody) Read(p []byte) (int, error) {
	if b.done {
		return 0, b.err
	}
	b.done = true
	return copy(p, b.data), nil
}

func (b *errBody) Close() error { return nil }

type bodyTransport struct{ body io.ReadCloser }

func (t bodyTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return &http.Response{StatusCode: 200, Body: t.body, Header: http.Header{}}, nil
}

func TestRoundTripReplaysBodyReadError(t *testing.T) {
	readErr := errors.New("stream reset")
	i, rec := newTestInterceptor(t)
	rt := i.Install(bodyTransport{body: &errBody{data: "partial", err: readErr}})

	req, _ := http.NewRequest(http.MethodGet, "http://x/delegate", nil)
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)

	b, err := io.ReadAll(resp.Body)
	assert.Equal(t, "partial", string(b))
	assert.ErrorIs(t, err, readErr)

	calls := rec.all()
	require.Len(t, calls, 1)
	assert.Equal(t, "partial", string(calls[0].ResponseBody))
}
