// Package wirecap is an intercepting HTTP(S) proxy that captures the
// traffic passing through it and lets callers rewrite it on the fly.
package wirecap

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wirecap/wirecap/core"
	"github.com/wirecap/wirecap/core/capture"
	"github.com/wirecap/wirecap/core/config"
	"github.com/wirecap/wirecap/interfaces"
	"github.com/wirecap/wirecap/pkg/logging"
)

type (
	// Options configures a proxy. See config.Options.
	Options = config.Options
	// ProxyOptions describes the upstream proxies.
	ProxyOptions = config.ProxyOptions
	// Request is a captured request.
	Request = capture.Request
	// Response is a captured response.
	Response = capture.Response
	// RequestInterceptor is called for every in-scope request.
	RequestInterceptor = core.RequestInterceptor
	// ResponseInterceptor is called for every in-scope response.
	ResponseInterceptor = core.ResponseInterceptor
	// ServerOption customizes NewServer.
	ServerOption = core.ServerOption
)

// Errors returned by NewServer and the proxy.
var (
	ErrConfiguration   = core.ErrConfiguration
	ErrResource        = core.ErrResource
	ErrAlreadyRunning  = core.ErrAlreadyRunning
	ErrCaptureDisabled = core.ErrCaptureDisabled
)

var _ interfaces.Proxy = (*core.Server)(nil)

// NewServer creates a proxy listening on host:port. Port 0 picks a free
// port. An empty host listens on 127.0.0.1 only. The proxy logs through the
// global logger.
func NewServer(host string, port int, opts *Options, options ...ServerOption) (interfaces.Proxy, error) {
	return core.NewServer(host, port, opts, logging.GetLogger(), options...)
}

// LoadOptions reads proxy options from a YAML file.
func LoadOptions(path string) (*Options, error) {
	return config.LoadOptionsFile(path)
}

// WithRegisterer registers the proxy metrics with reg.
func WithRegisterer(reg prometheus.Registerer) ServerOption {
	return core.WithRegisterer(reg)
}

// WithEnvironment replaces os.Getenv for the HTTP_PROXY, HTTPS_PROXY and
// NO_PROXY fallback. nil disables the fallback.
func WithEnvironment(getenv func(string) string) ServerOption {
	return core.WithEnvironment(getenv)
}

// Bool returns a pointer to v, for optional boolean options.
func Bool(v bool) *bool {
	return config.Bool(v)
}
