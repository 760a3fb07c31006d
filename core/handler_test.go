package core

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/wirecap/wirecap/core/capture"
	"github.com/wirecap/wirecap/core/engine"
	"github.com/wirecap/wirecap/core/modifier"
	"github.com/wirecap/wirecap/mocks"
	"github.com/wirecap/wirecap/pkg/metrics"
	"github.com/wirecap/wirecap/testutils"
)

func newTestFlow(method, target string, body []byte) *engine.Flow {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	return &engine.Flow{
		ID:          uuid.New(),
		Request:     httptest.NewRequest(method, target, r),
		RequestBody: body,
		Metadata:    make(map[string]any),
	}
}

func respond(f *engine.Flow, status int, body string) {
	f.Response = &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     http.Header{"Content-Type": {"text/plain"}},
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Request:    f.Request,
	}
	f.ResponseBody = []byte(body)
}

func flows(s *Server, stage, outcome string) float64 {
	return testutil.ToFloat64(s.metrics.FlowsTotal.WithLabelValues(stage, outcome))
}

func TestInterceptHandler_StoresRequestAndResponse(t *testing.T) {
	s := newTestServer(t, memoryOptions(t))
	h := newInterceptHandler(s)

	f := newTestFlow(http.MethodGet, "http://origin.test/page?q=1", nil)
	f.Request.Header.Set("Accept", "text/html")
	h.Request(f)

	stored := storedRequests(t, s)
	require.Len(t, stored, 1)
	assert.Equal(t, f.ID.String(), stored[0].ID)
	assert.Equal(t, "http://origin.test/page?q=1", stored[0].URL)
	assert.Equal(t, "text/html", stored[0].Headers.Get("Accept"))
	assert.Nil(t, stored[0].Response)

	respond(f, http.StatusOK, "hello")
	h.Response(f)

	got, err := s.Storage().LoadRequest(f.ID.String())
	require.NoError(t, err)
	require.NotNil(t, got.Response)
	assert.Equal(t, http.StatusOK, got.Response.StatusCode)
	assert.Equal(t, "OK", got.Response.Reason)
	assert.Equal(t, []byte("hello"), got.Response.Body)

	assert.Equal(t, 1.0, flows(s, stageRequest, metrics.OutcomeStored))
	assert.Equal(t, 1.0, flows(s, stageResponse, metrics.OutcomeStored))
}

func TestInterceptHandler_ModifierRunsBeforeInterceptor(t *testing.T) {
	s := newTestServer(t, memoryOptions(t))
	h := newInterceptHandler(s)

	value := "from-modifier"
	require.NoError(t, s.Modifier().SetHeaders(modifier.HeaderRule{Headers: map[string]*string{"X-Trace": &value}}))

	var seen string
	s.SetRequestInterceptor(func(req *capture.Request) error {
		seen = req.Headers.Get("X-Trace")
		req.Headers.Set("X-Trace", "from-interceptor")
		return nil
	})

	f := newTestFlow(http.MethodGet, "http://origin.test/", nil)
	h.Request(f)

	assert.Equal(t, "from-modifier", seen)
	assert.Equal(t, "from-interceptor", f.Request.Header.Get("X-Trace"))
}

func TestInterceptHandler_RequestMutationsReachTheWire(t *testing.T) {
	s := newTestServer(t, memoryOptions(t))
	h := newInterceptHandler(s)
	s.SetRequestInterceptor(func(req *capture.Request) error {
		req.Method = http.MethodPost
		req.URL = "http://other.test/new?x=1"
		req.Body = []byte("changed")
		return nil
	})

	f := newTestFlow(http.MethodGet, "http://origin.test/old", nil)
	h.Request(f)

	r := f.Request
	assert.Equal(t, http.MethodPost, r.Method)
	assert.Equal(t, "http://other.test/new?x=1", r.URL.String())
	assert.Equal(t, "other.test", r.Host)
	assert.EqualValues(t, 7, r.ContentLength)
	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	assert.Equal(t, "changed", string(body))
	assert.Nil(t, f.Response)
}

func TestInterceptHandler_InvalidRewrittenURLIgnored(t *testing.T) {
	s := newTestServer(t, memoryOptions(t))
	h := newInterceptHandler(s)
	s.SetRequestInterceptor(func(req *capture.Request) error {
		req.URL = "not a url"
		return nil
	})

	f := newTestFlow(http.MethodGet, "http://origin.test/", nil)
	h.Request(f)
	assert.Equal(t, "http://origin.test/", f.Request.URL.String())
}

func TestInterceptHandler_CreateResponseShortCircuits(t *testing.T) {
	s := newTestServer(t, memoryOptions(t))
	h := newInterceptHandler(s)
	s.SetRequestInterceptor(func(req *capture.Request) error {
		req.CreateResponse(http.StatusTeapot, http.Header{"X-Mock": {"1"}}, []byte("mocked"))
		return nil
	})

	f := newTestFlow(http.MethodGet, "http://origin.test/", nil)
	h.Request(f)

	require.NotNil(t, f.Response)
	assert.Equal(t, http.StatusTeapot, f.Response.StatusCode)
	assert.Equal(t, "418 I'm a teapot", f.Response.Status)
	assert.Equal(t, "1", f.Response.Header.Get("X-Mock"))
	assert.EqualValues(t, 6, f.Response.ContentLength)
	body, err := io.ReadAll(f.Response.Body)
	require.NoError(t, err)
	assert.Equal(t, "mocked", string(body))

	last, err := s.Storage().LoadLastRequest()
	require.NoError(t, err)
	require.NotNil(t, last.Response)
	assert.Equal(t, http.StatusTeapot, last.Response.StatusCode)
}

func TestInterceptHandler_RefusedUpgradeIsStored(t *testing.T) {
	s := newTestServer(t, memoryOptions(t))
	h := newInterceptHandler(s)

	f := newTestFlow(http.MethodGet, "http://origin.test/ws", nil)
	f.WebSocket = true
	respond(f, http.StatusBadGateway, "websocket streaming is disabled\n")
	refusal := f.Response
	h.Request(f)

	assert.Same(t, refusal, f.Response, "the refusal is kept")
	stored := storedRequests(t, s)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].WebSocket)

	h.Response(f)
	got, err := s.Storage().LoadRequest(f.ID.String())
	require.NoError(t, err)
	require.NotNil(t, got.Response)
	assert.Equal(t, http.StatusBadGateway, got.Response.StatusCode)
}

func TestInterceptHandler_AbortDefaultsToForbidden(t *testing.T) {
	s := newTestServer(t, memoryOptions(t))
	h := newInterceptHandler(s)
	s.SetRequestInterceptor(func(req *capture.Request) error {
		req.Abort(0)
		return nil
	})

	f := newTestFlow(http.MethodGet, "http://origin.test/", nil)
	h.Request(f)

	require.NotNil(t, f.Response)
	assert.Equal(t, http.StatusForbidden, f.Response.StatusCode)
	assert.Zero(t, f.Response.ContentLength)
}

func TestInterceptHandler_InterceptorErrorKeepsMutations(t *testing.T) {
	logger := testutils.NewRecordingLogger()
	s := newLoggedServer(t, memoryOptions(t), logger)
	h := newInterceptHandler(s)
	s.SetRequestInterceptor(func(req *capture.Request) error {
		req.Headers.Set("X-Partial", "yes")
		return errors.New("lookup failed")
	})

	f := newTestFlow(http.MethodGet, "http://origin.test/", nil)
	h.Request(f)

	assert.Equal(t, "yes", f.Request.Header.Get("X-Partial"))
	stored := storedRequests(t, s)
	require.Len(t, stored, 1, "a faulting interceptor does not stop capture")
	assert.Equal(t, "yes", stored[0].Headers.Get("X-Partial"))

	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.InterceptorFaultsTotal.WithLabelValues(stageRequest)))
	faults := logger.EntriesAt("error")
	require.Len(t, faults, 1)
	assert.Equal(t, "interceptor failed", faults[0].Msg)
	assert.Contains(t, faults[0].KeysAndValues, f.ID.String())
}

func TestInterceptHandler_ResponseInterceptorPanicIsContained(t *testing.T) {
	s := newTestServer(t, memoryOptions(t))
	h := newInterceptHandler(s)
	s.SetResponseInterceptor(func(req *capture.Request, resp *capture.Response) error {
		resp.Headers.Set("X-Before-Panic", "1")
		panic("interceptor bug")
	})

	f := newTestFlow(http.MethodGet, "http://origin.test/", nil)
	h.Request(f)
	respond(f, http.StatusOK, "body")

	assert.NotPanics(t, func() { h.Response(f) })
	assert.Equal(t, "1", f.Response.Header.Get("X-Before-Panic"))

	got, err := s.Storage().LoadRequest(f.ID.String())
	require.NoError(t, err)
	require.NotNil(t, got.Response)
	assert.Equal(t, "1", got.Response.Headers.Get("X-Before-Panic"))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.InterceptorFaultsTotal.WithLabelValues(stageResponse)))
}

func TestInterceptHandler_ResponseMutationsReachTheClient(t *testing.T) {
	s := newTestServer(t, memoryOptions(t))
	h := newInterceptHandler(s)
	value := "override"
	require.NoError(t, s.Modifier().SetResponseHeaders(modifier.HeaderRule{Headers: map[string]*string{"Cache-Control": &value}}))
	s.SetResponseInterceptor(func(req *capture.Request, resp *capture.Response) error {
		resp.StatusCode = http.StatusNotFound
		resp.Reason = "Not Found"
		resp.Body = []byte("replaced")
		return nil
	})

	f := newTestFlow(http.MethodGet, "http://origin.test/", nil)
	h.Request(f)
	respond(f, http.StatusOK, "original")
	h.Response(f)

	r := f.Response
	assert.Equal(t, http.StatusNotFound, r.StatusCode)
	assert.Equal(t, "404 Not Found", r.Status)
	assert.Equal(t, "override", r.Header.Get("Cache-Control"))
	assert.EqualValues(t, 8, r.ContentLength)
	assert.Equal(t, "8", r.Header.Get("Content-Length"))
	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	assert.Equal(t, "replaced", string(body))
}

func TestInterceptHandler_BodylessResponsesKeepFraming(t *testing.T) {
	tests := []struct {
		name   string
		method string
		status int
		length int64
		header string
	}{
		{name: "HEAD", method: http.MethodHead, status: http.StatusOK, length: 1234, header: "1234"},
		{name: "NoContent", method: http.MethodDelete, status: http.StatusNoContent},
		{name: "NotModified", method: http.MethodGet, status: http.StatusNotModified, length: 42, header: "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, memoryOptions(t))
			h := newInterceptHandler(s)

			f := newTestFlow(tt.method, "http://origin.test/file", nil)
			h.Request(f)
			header := http.Header{}
			if tt.header != "" {
				header.Set("Content-Length", tt.header)
			}
			f.Response = &http.Response{
				StatusCode:    tt.status,
				Status:        http.StatusText(tt.status),
				Header:        header,
				ContentLength: tt.length,
				Body:          http.NoBody,
				Request:       f.Request,
			}
			h.Response(f)

			r := f.Response
			assert.Equal(t, tt.status, r.StatusCode)
			assert.Equal(t, tt.length, r.ContentLength)
			assert.Equal(t, tt.header, r.Header.Get("Content-Length"))
			assert.Equal(t, http.NoBody, r.Body)
		})
	}
}

func TestInterceptHandler_BodylessResponseTakesSuppliedBody(t *testing.T) {
	s := newTestServer(t, memoryOptions(t))
	h := newInterceptHandler(s)
	s.SetResponseInterceptor(func(req *capture.Request, resp *capture.Response) error {
		resp.StatusCode = http.StatusOK
		resp.Reason = "OK"
		resp.Body = []byte("filled")
		return nil
	})

	f := newTestFlow(http.MethodGet, "http://origin.test/", nil)
	h.Request(f)
	f.Response = &http.Response{
		StatusCode: http.StatusNoContent,
		Header:     http.Header{},
		Body:       http.NoBody,
		Request:    f.Request,
	}
	h.Response(f)

	assert.EqualValues(t, 6, f.Response.ContentLength)
	body, err := io.ReadAll(f.Response.Body)
	require.NoError(t, err)
	assert.Equal(t, "filled", string(body))
}

func TestInterceptHandler_TruncatedBodyKeepsStreaming(t *testing.T) {
	s := newTestServer(t, memoryOptions(t))
	h := newInterceptHandler(s)

	f := newTestFlow(http.MethodPost, "http://origin.test/upload", nil)
	f.Request.Body = io.NopCloser(bytes.NewReader([]byte("large upload")))
	f.RequestBodyTruncated = true
	h.Request(f)

	body, err := io.ReadAll(f.Request.Body)
	require.NoError(t, err)
	assert.Equal(t, "large upload", string(body))
}

func TestInterceptHandler_OutOfScopeBypassed(t *testing.T) {
	s := newTestServer(t, memoryOptions(t))
	h := newInterceptHandler(s)
	require.NoError(t, s.SetScopes(`^http://keep\.test/`))

	called := false
	s.SetRequestInterceptor(func(*capture.Request) error {
		called = true
		return nil
	})

	f := newTestFlow(http.MethodGet, "http://skip.test/", nil)
	h.Request(f)
	respond(f, http.StatusOK, "ok")
	h.Response(f)

	assert.False(t, called)
	assert.Empty(t, storedRequests(t, s))
	assert.NotContains(t, f.Metadata, capturedKey)
	assert.Equal(t, 1.0, flows(s, stageRequest, metrics.OutcomeBypassed))
	assert.Equal(t, 1.0, flows(s, stageResponse, metrics.OutcomeBypassed))

	h.Request(newTestFlow(http.MethodGet, "http://keep.test/a", nil))
	assert.Len(t, storedRequests(t, s), 1)
}

func TestInterceptHandler_TransportFaultNotStored(t *testing.T) {
	s := newTestServer(t, memoryOptions(t))
	h := newInterceptHandler(s)

	called := false
	s.SetResponseInterceptor(func(*capture.Request, *capture.Response) error {
		called = true
		return nil
	})

	f := newTestFlow(http.MethodGet, "http://origin.test/", nil)
	h.Request(f)
	respond(f, http.StatusBadGateway, "")
	f.Error = errors.New("connection refused")
	h.Response(f)

	assert.False(t, called)
	got, err := s.Storage().LoadRequest(f.ID.String())
	require.NoError(t, err)
	assert.Nil(t, got.Response)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.TransportFaultsTotal))
	assert.Equal(t, 1.0, flows(s, stageResponse, metrics.OutcomeFailed))
}

func TestInterceptHandler_StorageErrorsDoNotBreakFlows(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStorage(ctrl)
	store.EXPECT().HomeDir().Return(t.TempDir()).AnyTimes()
	store.EXPECT().SaveRequest(gomock.Any()).Return(errors.New("disk full"))
	store.EXPECT().SaveResponse(gomock.Any(), gomock.Any()).Return(capture.ErrNotFound)
	store.EXPECT().Cleanup().Return(nil)

	s := newTestServer(t, memoryOptions(t), WithStorageFactory(func(capture.Options) (capture.Storage, error) {
		return store, nil
	}))
	h := newInterceptHandler(s)

	f := newTestFlow(http.MethodGet, "http://origin.test/", nil)
	h.Request(f)
	assert.Contains(t, f.Metadata, capturedKey)

	respond(f, http.StatusOK, "ok")
	h.Response(f)
	assert.Equal(t, http.StatusOK, f.Response.StatusCode)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.StorageErrorsTotal.WithLabelValues("save_request")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.StorageErrorsTotal.WithLabelValues("save_response")))
}

func TestInterceptHandler_InterceptorSwapTakesEffectNextFlow(t *testing.T) {
	s := newTestServer(t, memoryOptions(t))
	h := newInterceptHandler(s)

	s.SetRequestInterceptor(func(req *capture.Request) error {
		req.Headers.Set("X-Gen", "1")
		return nil
	})
	first := newTestFlow(http.MethodGet, "http://origin.test/1", nil)
	h.Request(first)

	s.SetRequestInterceptor(nil)
	second := newTestFlow(http.MethodGet, "http://origin.test/2", nil)
	h.Request(second)

	assert.Equal(t, "1", first.Request.Header.Get("X-Gen"))
	assert.Empty(t, second.Request.Header.Get("X-Gen"))
}

func TestScopeSet(t *testing.T) {
	var nilSet *scopeSet
	assert.True(t, nilSet.contains("http://any.test/"))

	all, err := compileScopes(nil)
	require.NoError(t, err)
	assert.True(t, all.contains("http://any.test/"))

	set, err := compileScopes([]string{`\.js$`, `^https://api\.`})
	require.NoError(t, err)
	assert.True(t, set.contains("http://cdn.test/app.js"))
	assert.True(t, set.contains("https://api.test/v1"))
	assert.False(t, set.contains("http://www.test/"))

	_, err = compileScopes([]string{"("})
	assert.ErrorContains(t, err, "invalid scope")
}
