package core

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wirecap/wirecap/core/capture"
	"github.com/wirecap/wirecap/core/engine"
	"github.com/wirecap/wirecap/pkg/logging"
	"github.com/wirecap/wirecap/pkg/metrics"
)

// RequestInterceptor is called for every in-scope request. It may mutate
// req in place, or answer it through req.CreateResponse or req.Abort.
// A returned error is logged and the flow carries on.
type RequestInterceptor func(req *capture.Request) error

// ResponseInterceptor is called for every in-scope response and may mutate
// resp in place.
type ResponseInterceptor func(req *capture.Request, resp *capture.Response) error

const (
	stageRequest  = "request"
	stageResponse = "response"

	// capturedKey holds the flow's capture.Request in engine.Flow.Metadata.
	capturedKey = "wirecap.request"
)

// interceptHandler bridges engine flows to the modifier, the interceptors
// and the capture store.
type interceptHandler struct {
	server *Server
	logger logging.Logger
}

var (
	_ engine.RequestAddon  = (*interceptHandler)(nil)
	_ engine.ResponseAddon = (*interceptHandler)(nil)
)

func newInterceptHandler(s *Server) *interceptHandler {
	return &interceptHandler{server: s, logger: s.baseLogger.With("component", "interceptor")}
}

func (h *interceptHandler) Name() string { return "intercept" }

func (h *interceptHandler) Request(f *engine.Flow) {
	s := h.server
	if !s.inScope(f.Request.URL.String()) {
		s.metrics.Flow(stageRequest, metrics.OutcomeBypassed)
		return
	}

	req := captureRequest(f)
	s.modifier.ModifyRequest(req)
	if fn := s.requestInterceptor.Load(); fn != nil {
		h.intercept(stageRequest, f, func() error { return (*fn)(req) })
	}
	h.applyRequest(f, req)
	f.Metadata[capturedKey] = req

	if err := s.storage.SaveRequest(req); err != nil {
		h.logger.Warn("failed to store request", "flow_id", req.ID, "error", err)
		s.metrics.StorageError("save_request")
	}
	s.metrics.Flow(stageRequest, metrics.OutcomeStored)
}

func (h *interceptHandler) Response(f *engine.Flow) {
	s := h.server
	if f.Error != nil {
		s.metrics.TransportFault()
		s.metrics.Flow(stageResponse, metrics.OutcomeFailed)
		return
	}
	req, ok := f.Metadata[capturedKey].(*capture.Request)
	if !ok {
		s.metrics.Flow(stageResponse, metrics.OutcomeBypassed)
		return
	}

	resp := captureResponse(f)
	s.modifier.ModifyResponse(req, resp)
	if fn := s.responseInterceptor.Load(); fn != nil {
		h.intercept(stageResponse, f, func() error { return (*fn)(req, resp) })
	}
	applyResponse(f, resp)
	req.Response = resp

	if err := s.storage.SaveResponse(req.ID, resp); err != nil {
		h.logger.Warn("failed to store response", "flow_id", req.ID, "error", err)
		s.metrics.StorageError("save_response")
	}
	s.metrics.Flow(stageResponse, metrics.OutcomeStored)
}

// intercept runs an interceptor, turning errors and panics into logged
// faults. Mutations made before the fault are kept.
func (h *interceptHandler) intercept(stage string, f *engine.Flow, call func() error) {
	defer func() {
		if r := recover(); r != nil {
			h.fault(stage, f, fmt.Errorf("interceptor panicked: %v", r))
		}
	}()
	if err := call(); err != nil {
		h.fault(stage, f, err)
	}
}

func (h *interceptHandler) fault(stage string, f *engine.Flow, err error) {
	h.logger.Error("interceptor failed", "stage", stage, "flow_id", f.ID.String(), "url", f.Request.URL.String(), "error", err)
	h.server.metrics.InterceptorFault(stage)
}

func captureRequest(f *engine.Flow) *capture.Request {
	headers := f.Request.Header.Clone()
	if headers == nil {
		headers = make(http.Header)
	}
	return &capture.Request{
		ID:        f.ID.String(),
		Method:    f.Request.Method,
		URL:       f.Request.URL.String(),
		Headers:   headers,
		Body:      append([]byte(nil), f.RequestBody...),
		Date:      time.Now(),
		WebSocket: f.WebSocket,
	}
}

// applyRequest writes the captured request back to the in-flight one.
func (h *interceptHandler) applyRequest(f *engine.Flow, req *capture.Request) {
	r := f.Request
	r.Method = req.Method
	r.Header = req.Headers

	if req.URL != r.URL.String() {
		u, err := url.Parse(req.URL)
		if err != nil || u.Host == "" {
			h.logger.Warn("ignoring invalid rewritten url", "flow_id", req.ID, "url", req.URL)
		} else {
			r.URL = u
			r.Host = u.Host
		}
	}

	// A truncated body was never buffered; keep streaming it unless someone
	// supplied a replacement.
	if !f.RequestBodyTruncated || req.Body != nil {
		r.ContentLength = int64(len(req.Body))
		if len(req.Body) == 0 {
			r.Body = http.NoBody
		} else {
			r.Body = io.NopCloser(bytes.NewReader(req.Body))
		}
	}

	if req.Response != nil {
		f.Response = httpResponse(r, req.Response)
	}
}

func captureResponse(f *engine.Flow) *capture.Response {
	resp := f.Response
	headers := resp.Header.Clone()
	if headers == nil {
		headers = make(http.Header)
	}
	reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if reason == "" {
		reason = http.StatusText(resp.StatusCode)
	}
	return &capture.Response{
		StatusCode: resp.StatusCode,
		Reason:     reason,
		Headers:    headers,
		Body:       append([]byte(nil), f.ResponseBody...),
		Date:       time.Now(),
	}
}

// applyResponse writes resp back to the flow's response. Bodyless replies
// keep their framing, such as a HEAD reply's Content-Length, unless a body
// was supplied.
func applyResponse(f *engine.Flow, resp *capture.Response) {
	r := f.Response
	bodyless := f.Request.Method == http.MethodHead || bodylessStatus(r.StatusCode)

	r.StatusCode = resp.StatusCode
	r.Status = fmt.Sprintf("%d %s", resp.StatusCode, resp.Reason)
	r.Header = resp.Headers

	switch {
	case f.ResponseBodyTruncated && resp.Body == nil:
	case bodyless && bytes.Equal(resp.Body, f.ResponseBody):
	default:
		setBody(r, resp.Body)
	}
}

func bodylessStatus(code int) bool {
	return code/100 == 1 || code == http.StatusNoContent || code == http.StatusNotModified
}

func httpResponse(req *http.Request, resp *capture.Response) *http.Response {
	headers := resp.Headers.Clone()
	if headers == nil {
		headers = make(http.Header)
	}
	reason := resp.Reason
	if reason == "" {
		reason = http.StatusText(resp.StatusCode)
	}
	r := &http.Response{
		StatusCode: resp.StatusCode,
		Status:     fmt.Sprintf("%d %s", resp.StatusCode, reason),
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     headers,
		Request:    req,
	}
	setBody(r, resp.Body)
	return r
}

func setBody(r *http.Response, body []byte) {
	r.Body = io.NopCloser(bytes.NewReader(body))
	r.ContentLength = int64(len(body))
	r.TransferEncoding = nil
	r.Header.Set("Content-Length", strconv.Itoa(len(body)))
}
