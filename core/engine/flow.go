package engine

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Log levels carried by LogEntry.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// LogEntry is a message emitted by the engine.
type LogEntry struct {
	Level string
	Msg   string
}

// Flow is one request/response exchange through the proxy. Addons for a
// flow run sequentially on the client connection's goroutine.
type Flow struct {
	ID      uuid.UUID
	Session int64

	Request *http.Request
	// Response is nil during the request stage unless an addon sets it to
	// answer the client without contacting the origin.
	Response *http.Response

	// RequestBody and ResponseBody hold buffered bodies when they fit the
	// body size limit. The matching Truncated flag is set otherwise.
	RequestBody           []byte
	RequestBodyTruncated  bool
	ResponseBody          []byte
	ResponseBodyTruncated bool

	WebSocket bool
	// Error is the transport fault that produced a synthetic 502, if any.
	Error error

	// Metadata is free for addons to share state across stages.
	Metadata map[string]any
}

func newFlow(req *http.Request, session int64) *Flow {
	return &Flow{
		ID:        uuid.New(),
		Session:   session,
		Request:   req,
		WebSocket: isWebSocket(req),
		Metadata:  make(map[string]any),
	}
}

func isWebSocket(req *http.Request) bool {
	return headerContains(req.Header, "Connection", "upgrade") &&
		strings.EqualFold(req.Header.Get("Upgrade"), "websocket")
}

func headerContains(h http.Header, name, token string) bool {
	for _, v := range h.Values(name) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}

// Addon is anything registered with Engine.AddAddons. An addon takes part
// in the stages whose interfaces it implements.
type Addon interface {
	Name() string
}

// LogAddon receives every engine log entry.
type LogAddon interface {
	Addon
	Log(entry LogEntry)
}

// RequestAddon is invoked once the client request has been read. An
// earlier addon may already have set f.Response.
type RequestAddon interface {
	Addon
	Request(f *Flow)
}

// ResponseAddon is invoked once the response is available.
type ResponseAddon interface {
	Addon
	Response(f *Flow)
}
