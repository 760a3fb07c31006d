package engine

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/elazarl/goproxy"

	"github.com/wirecap/wirecap/core/upstream"
)

// buildTransport creates the round tripper used to reach origins, routed
// through the upstream proxy when the mode asks for one.
func buildTransport(o *Options) (*http.Transport, *url.URL, error) {
	dialer := &net.Dialer{Timeout: o.ConnectTimeout, KeepAlive: 30 * time.Second}
	tr := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: o.SSLInsecure}, //nolint:gosec // ssl_insecure is an explicit option
		TLSHandshakeTimeout:   10 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		ExpectContinueTimeout: time.Second,
	}

	target, ok, err := upstream.ParseMode(o.Mode)
	if err != nil {
		return nil, nil, fmt.Errorf("%w %q: %v", ErrInvalidOption, "mode", err)
	}
	if ok {
		tr.Proxy = upstream.ProxyFunc(target, o.UpstreamAuth, o.UpstreamCustomAuth, o.NoProxy)
		tr.ProxyConnectHeader = upstream.ConnectHeader(o.UpstreamCustomAuth)
	}

	if o.TLSFingerprint != "" {
		dialTLS, err := upstream.FingerprintDialer(o.TLSFingerprint, o.SSLInsecure, dialer.DialContext)
		if err != nil {
			return nil, nil, fmt.Errorf("%w %q: %v", ErrInvalidOption, "tls_fingerprint", err)
		}
		tr.DialTLSContext = dialTLS
	}
	return tr, target, nil
}

// roundTrip sends a flow's request to the origin. Transport faults never
// reach goproxy: the client gets a 502 and the fault is logged according to
// the suppression policy.
func (e *Engine) roundTrip(req *http.Request, ctx *goproxy.ProxyCtx) (*http.Response, error) {
	e.applyCustomAuth(req)

	resp, err := e.transport.RoundTrip(req)
	if err == nil {
		return resp, nil
	}
	if f, ok := ctx.UserData.(*Flow); ok {
		f.Error = err
	}
	e.connectionError(req, err)
	return badGateway(req, err), nil
}

// applyCustomAuth sets Proxy-Authorization on plain HTTP requests sent to an
// HTTP upstream. CONNECT tunnels carry it through ProxyConnectHeader instead.
func (e *Engine) applyCustomAuth(req *http.Request) {
	if e.opts.UpstreamCustomAuth == "" || e.transport.Proxy == nil || req.URL.Scheme != "http" {
		return
	}
	proxyURL, err := e.transport.Proxy(req)
	if err != nil || proxyURL == nil {
		return
	}
	if proxyURL.Scheme == "http" || proxyURL.Scheme == "https" {
		req.Header.Set("Proxy-Authorization", e.opts.UpstreamCustomAuth)
	}
}

func (e *Engine) connectionError(req *http.Request, err error) {
	msg := fmt.Sprintf("upstream request failed: %s %s: %v", req.Method, req.URL.Redacted(), err)
	if !e.opts.SuppressConnectionErrors {
		e.log(LevelWarn, msg)
		return
	}

	n := e.suppressed.Add(1)
	e.log(LevelDebug, msg)
	e.summary.Do(func() {
		e.log(LevelInfo, fmt.Sprintf("suppressing upstream connection errors (%d so far); enable debug logging to see them", n))
	})
}

func badGateway(req *http.Request, err error) *http.Response {
	body := "Bad Gateway"
	if err != nil {
		body = fmt.Sprintf("Bad Gateway: %v", err)
	}
	return goproxy.NewResponse(req, goproxy.ContentTypeText, http.StatusBadGateway, body+"\n")
}
