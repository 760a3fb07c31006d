package engine

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/elazarl/goproxy"
)

// DefaultAddons returns the addons that set up core flow state. They must be
// registered before anything that reads flow bodies.
func DefaultAddons(opts *Options) []Addon {
	return []Addon{
		&bodyBuffer{limit: opts.BodySizeLimit},
		&websocketPolicy{stream: opts.StreamWebSockets},
	}
}

// bodyBuffer reads request and response bodies into the flow so later
// addons can inspect and rewrite them.
type bodyBuffer struct {
	limit int64
}

func (b *bodyBuffer) Name() string { return "body" }

func (b *bodyBuffer) Request(f *Flow) {
	if f.WebSocket || f.Request.Body == nil || f.Request.Body == http.NoBody {
		return
	}
	f.RequestBody, f.RequestBodyTruncated, f.Request.Body = b.buffer(f.Request.Body)
}

func (b *bodyBuffer) Response(f *Flow) {
	resp := f.Response
	if resp.Body == nil || resp.Body == http.NoBody {
		return
	}
	// Event streams never end; buffering would stall the client.
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		f.ResponseBodyTruncated = true
		return
	}
	f.ResponseBody, f.ResponseBodyTruncated, resp.Body = b.buffer(resp.Body)
}

type readCloser struct {
	io.Reader
	io.Closer
}

// buffer reads body up to the limit. When the body is larger, or reading
// fails, the bytes already read are stitched back in front of the rest so
// the peer still receives the complete stream.
func (b *bodyBuffer) buffer(body io.ReadCloser) ([]byte, bool, io.ReadCloser) {
	src := io.Reader(body)
	if b.limit > 0 {
		src = io.LimitReader(body, b.limit+1)
	}
	data, err := io.ReadAll(src)
	if err != nil || (b.limit > 0 && int64(len(data)) > b.limit) {
		return nil, true, readCloser{Reader: io.MultiReader(bytes.NewReader(data), body), Closer: body}
	}
	body.Close()
	return data, false, io.NopCloser(bytes.NewReader(data))
}

// websocketPolicy refuses websocket upgrades when streaming is disabled.
type websocketPolicy struct {
	stream bool
}

func (w *websocketPolicy) Name() string { return "websocket" }

func (w *websocketPolicy) Request(f *Flow) {
	if f.WebSocket && !w.stream {
		f.Response = goproxy.NewResponse(f.Request, goproxy.ContentTypeText, http.StatusBadGateway, "websocket streaming is disabled\n")
	}
}
