// Package engine wraps goproxy as the embedded MITM proxy. It owns the
// listener, the origin transport and a closed set of addon hooks the
// orchestrator registers in order.
package engine

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elazarl/goproxy"
	"golang.org/x/time/rate"

	"github.com/wirecap/wirecap/core/certs"
)

// ErrServing is returned by Serve when the engine is already serving.
var ErrServing = errors.New("engine is already serving")

// Engine is a MITM proxy bound to a local address.
type Engine struct {
	opts      *Options
	ca        tls.Certificate
	proxy     *goproxy.ProxyHttpServer
	transport *http.Transport
	upstream  *url.URL
	server    *http.Server
	listener  *trackingListener

	addonsMu sync.RWMutex
	addons   []Addon

	suppressed atomic.Int64
	summary    rate.Sometimes

	serving   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New builds an engine and binds its listener. Serve must be called to
// start accepting connections.
func New(opts *Options) (*Engine, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := opts.Clone()

	ca, err := loadCA(o.ConfDir)
	if err != nil {
		return nil, err
	}
	tr, target, err := buildTransport(o)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		opts:      o,
		ca:        ca,
		transport: tr,
		upstream:  target,
		summary:   rate.Sometimes{First: 1, Interval: time.Minute},
	}

	proxy := goproxy.NewProxyHttpServer()
	proxy.Tr = tr
	proxy.Verbose = o.Verbose
	proxy.KeepDestinationHeaders = o.KeepDestinationHeaders
	proxy.Logger = printfSink{e: e}

	mitm := &goproxy.ConnectAction{Action: goproxy.ConnectMitm, TLSConfig: goproxy.TLSConfigFromCA(&e.ca)}
	proxy.OnRequest().HandleConnectFunc(func(host string, _ *goproxy.ProxyCtx) (*goproxy.ConnectAction, string) {
		return mitm, host
	})
	proxy.OnRequest().DoFunc(e.handleRequest)
	proxy.OnResponse().DoFunc(e.handleResponse)
	e.proxy = proxy

	addr := net.JoinHostPort(o.ListenHost, strconv.Itoa(o.ListenPort))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		tr.CloseIdleConnections()
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	e.listener = newTrackingListener(ln)
	e.server = &http.Server{
		Handler:           proxy,
		ReadHeaderTimeout: 30 * time.Second,
		ErrorLog:          log.New(logWriter{e: e}, "", 0),
	}
	return e, nil
}

func loadCA(confDir string) (tls.Certificate, error) {
	if confDir != "" {
		return certs.Load(confDir)
	}
	ca, err := tls.X509KeyPair(goproxy.CA_CERT, goproxy.CA_KEY)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to load bundled CA: %w", err)
	}
	if ca.Leaf, err = x509.ParseCertificate(ca.Certificate[0]); err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to parse bundled CA: %w", err)
	}
	return ca, nil
}

// Options returns a copy of the options the engine was built with.
func (e *Engine) Options() *Options {
	return e.opts.Clone()
}

// Upstream is the upstream proxy target, or nil in regular mode.
func (e *Engine) Upstream() *url.URL {
	return e.upstream
}

// Addr is the bound listen address.
func (e *Engine) Addr() *net.TCPAddr {
	return e.listener.Addr().(*net.TCPAddr)
}

// AddAddons appends addons to the chain. Stages run addons in the order
// they were added.
func (e *Engine) AddAddons(addons ...Addon) {
	e.addonsMu.Lock()
	defer e.addonsMu.Unlock()
	e.addons = append(e.addons, addons...)
}

// Addons returns the registered chain.
func (e *Engine) Addons() []Addon {
	e.addonsMu.RLock()
	defer e.addonsMu.RUnlock()
	return append([]Addon(nil), e.addons...)
}

// Serve accepts connections until Close. It returns nil once the engine has
// been closed.
func (e *Engine) Serve() error {
	if !e.serving.CompareAndSwap(false, true) {
		return ErrServing
	}
	err := e.server.Serve(e.listener)
	if errors.Is(err, http.ErrServerClosed) || e.closed.Load() {
		return nil
	}
	return err
}

// Close stops the listener and drops every client connection, including
// hijacked tunnels. In-flight flows are abandoned. It is safe to call from
// any goroutine and more than once.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		srvErr := e.server.Close()
		lnErr := e.listener.Close()
		if errors.Is(lnErr, net.ErrClosed) {
			lnErr = nil
		}
		e.listener.closeAll()
		e.transport.CloseIdleConnections()
		e.closeErr = errors.Join(srvErr, lnErr)
	})
	return e.closeErr
}

// ActiveConnections reports the client connections currently open.
func (e *Engine) ActiveConnections() int {
	return e.listener.active()
}

func (e *Engine) handleRequest(req *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
	f := newFlow(req, ctx.Session)
	ctx.UserData = f
	ctx.RoundTripper = goproxy.RoundTripperFunc(e.roundTrip)

	// Every request addon runs even once a response is set, so later
	// addons still see refused or answered flows and may replace the answer.
	for _, a := range e.Addons() {
		if ra, ok := a.(RequestAddon); ok {
			e.invoke(a, func() { ra.Request(f) })
		}
	}
	if f.Response != nil && f.Response.Request == nil {
		f.Response.Request = f.Request
	}
	return f.Request, f.Response
}

func (e *Engine) handleResponse(resp *http.Response, ctx *goproxy.ProxyCtx) *http.Response {
	f, ok := ctx.UserData.(*Flow)
	if !ok {
		f = newFlow(ctx.Req, ctx.Session)
		ctx.UserData = f
	}
	if resp == nil {
		if f.Error == nil && ctx.Error != nil {
			f.Error = ctx.Error
			e.connectionError(ctx.Req, ctx.Error)
		}
		resp = badGateway(ctx.Req, f.Error)
	}
	f.Response = resp

	for _, a := range e.Addons() {
		if ra, ok := a.(ResponseAddon); ok {
			e.invoke(a, func() { ra.Response(f) })
		}
	}
	return f.Response
}

// invoke runs one addon hook, keeping a panicking addon from taking the
// connection down with it.
func (e *Engine) invoke(a Addon, hook func()) {
	defer func() {
		if r := recover(); r != nil {
			e.log(LevelError, fmt.Sprintf("addon %s panicked: %v", a.Name(), r))
		}
	}()
	hook()
}

func (e *Engine) log(level, msg string) {
	entry := LogEntry{Level: level, Msg: msg}
	for _, a := range e.Addons() {
		if la, ok := a.(LogAddon); ok {
			la.Log(entry)
		}
	}
}

// goproxy prefixes its lines with the session number and a level tag.
var goproxyLine = regexp.MustCompile(`(?s)^\[\d+\] (DEBUG|INFO|WARN|ERROR): (.*)$`)

// printfSink turns goproxy's Printf logging into LogEntry values.
type printfSink struct {
	e *Engine
}

func (s printfSink) Printf(format string, v ...any) {
	line := strings.TrimRight(fmt.Sprintf(format, v...), "\n")
	level, msg := LevelInfo, line
	if m := goproxyLine.FindStringSubmatch(line); m != nil {
		level, msg = strings.ToLower(m[1]), m[2]
	}
	s.e.log(level, msg)
}

// logWriter receives net/http server errors, which are mostly clients
// hanging up mid-handshake.
type logWriter struct {
	e *Engine
}

func (w logWriter) Write(p []byte) (int, error) {
	w.e.log(LevelDebug, strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
