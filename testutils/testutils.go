package testutils

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/armon/go-socks5"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/proxy"
)

// TestTimeout is the default timeout for operations in tests.
const TestTimeout = 5 * time.Second

// TestInterval is the default interval for polling in tests.
const TestInterval = 10 * time.Millisecond

// NewOriginServer starts an HTTP server that answers every request with
// "origin:<method> <path>" and echoes the request body in the X-Echo-Body
// header.
func NewOriginServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Echo-Body", string(body))
		w.Header().Set("X-Echo-Query", r.URL.RawQuery)
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintf(w, "origin:%s %s", r.Method, r.URL.Path)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// ProxyClient returns an HTTP client that sends every request through the
// proxy at addr and trusts any certificate it presents.
func ProxyClient(addr string) *http.Client {
	proxyURL := &url.URL{Scheme: "http", Host: addr}
	return &http.Client{
		Timeout: TestTimeout,
		Transport: &http.Transport{
			Proxy:             http.ProxyURL(proxyURL),
			TLSClientConfig:   insecureTLSConfig(),
			DisableKeepAlives: true,
		},
	}
}

// UpstreamProxy is a fake upstream HTTP proxy. It answers plain requests
// itself and records what it received.
type UpstreamProxy struct {
	*httptest.Server

	mu       sync.Mutex
	requests []*http.Request
}

// NewUpstreamProxy starts an UpstreamProxy.
func NewUpstreamProxy(t *testing.T) *UpstreamProxy {
	t.Helper()
	up := &UpstreamProxy{}
	up.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up.mu.Lock()
		up.requests = append(up.requests, r.Clone(context.Background()))
		up.mu.Unlock()
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintf(w, "upstream:%s", r.URL.String())
	}))
	t.Cleanup(up.Close)
	return up
}

// HostPort returns the proxy's listen address.
func (u *UpstreamProxy) HostPort() string {
	return strings.TrimPrefix(u.URL, "http://")
}

// Requests returns the requests received so far.
func (u *UpstreamProxy) Requests() []*http.Request {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]*http.Request(nil), u.requests...)
}

// staticResolver resolves every name to a single IP.
type staticResolver struct {
	ip net.IP
}

func (r staticResolver) Resolve(ctx context.Context, name string) (context.Context, net.IP, error) {
	return ctx, r.ip, nil
}

// NewSOCKS5Upstream starts a SOCKS5 server that resolves every hostname to
// 127.0.0.1, so tests can address local servers by a non-loopback name.
// It returns the listen address.
func NewSOCKS5Upstream(t *testing.T) string {
	t.Helper()
	server, err := socks5.New(&socks5.Config{
		Resolver: staticResolver{ip: net.ParseIP("127.0.0.1")},
	})
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(func() { listener.Close() })
	return listener.Addr().String()
}

// DialSOCKS5 connects to targetAddr through the SOCKS5 server at proxyAddr.
func DialSOCKS5(proxyAddr, targetAddr string) (net.Conn, error) {
	dialer, err := proxy.SOCKS5("tcp", proxyAddr, nil, proxy.Direct)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()
	return dialer.(proxy.ContextDialer).DialContext(ctx, "tcp", targetAddr)
}

// GenerateCA creates a throwaway CA certificate and key in PEM form.
func GenerateCA(t *testing.T) (certPEM, keyPEM []byte) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject: pkix.Name{
			CommonName:   "wirecap test CA",
			Organization: []string{"wirecap"},
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	require.NoError(t, err)

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derBytes})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})
	return certPEM, keyPEM
}
