package capture

import (
	"net/http"
	"time"
)

// Request is a captured request. Interceptors may mutate it in place; the
// pipeline writes the mutations back to the in-flight request.
type Request struct {
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	URL     string      `json:"url"`
	Headers http.Header `json:"headers"`
	Body    []byte      `json:"body,omitempty"`
	Date    time.Time   `json:"date"`

	// Response is set once the response stage has run, or by an interceptor
	// through CreateResponse or Abort.
	Response *Response `json:"response,omitempty"`

	// WebSocket marks an upgrade handshake. Frames relayed after the
	// upgrade are not captured.
	WebSocket bool `json:"websocket,omitempty"`
}

// Response is a captured response.
type Response struct {
	StatusCode int         `json:"status_code"`
	Reason     string      `json:"reason"`
	Headers    http.Header `json:"headers"`
	Body       []byte      `json:"body,omitempty"`
	Date       time.Time   `json:"date"`
}

// CreateResponse makes the proxy answer the request itself. The upstream
// server is not contacted.
func (r *Request) CreateResponse(statusCode int, headers http.Header, body []byte) {
	if headers == nil {
		headers = make(http.Header)
	}
	r.Response = &Response{
		StatusCode: statusCode,
		Reason:     http.StatusText(statusCode),
		Headers:    headers,
		Body:       body,
		Date:       time.Now(),
	}
}

// Abort answers the request with an empty error response, 403 when
// statusCode is zero.
func (r *Request) Abort(statusCode int) {
	if statusCode == 0 {
		statusCode = http.StatusForbidden
	}
	r.CreateResponse(statusCode, nil, nil)
}

// Clone returns a deep copy of the request, including its response.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	c.Headers = r.Headers.Clone()
	c.Body = cloneBytes(r.Body)
	c.Response = r.Response.Clone()
	return &c
}

// Clone returns a deep copy of the response.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	c := *r
	c.Headers = r.Headers.Clone()
	c.Body = cloneBytes(r.Body)
	return &c
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
