package upstream

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	utls "github.com/refraction-networking/utls"
)

// DialFunc establishes a network connection.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

var clientHelloIDMap = map[string]utls.ClientHelloID{
	"chrome":  utls.HelloChrome_Auto,
	"firefox": utls.HelloFirefox_Auto,
	"safari":  utls.HelloSafari_Auto,
	"edge":    utls.HelloEdge_Auto,
	"ios":     utls.HelloIOS_Auto,
}

// Fingerprints lists the accepted tls_fingerprint names.
func Fingerprints() []string {
	names := make([]string, 0, len(clientHelloIDMap))
	for name := range clientHelloIDMap {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FingerprintDialer returns a TLS dialer presenting a browser ClientHello to
// origin servers. ALPN is pinned to http/1.1 because the caller hands the
// connection to an HTTP/1 transport.
func FingerprintDialer(name string, insecure bool, dial DialFunc) (DialFunc, error) {
	helloID, ok := clientHelloIDMap[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown tls fingerprint %q (supported: %s)", name, strings.Join(Fingerprints(), ", "))
	}
	if dial == nil {
		d := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
		dial = d.DialContext
	}

	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		rawConn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		sni, _, err := net.SplitHostPort(addr)
		if err != nil {
			sni = addr
		}

		spec, err := utls.UTLSIdToSpec(helloID)
		if err != nil {
			rawConn.Close()
			return nil, fmt.Errorf("failed to build %s client hello: %w", name, err)
		}
		for _, ext := range spec.Extensions {
			if alpn, ok := ext.(*utls.ALPNExtension); ok {
				alpn.AlpnProtocols = []string{"http/1.1"}
			}
		}

		uconn := utls.UClient(rawConn, &utls.Config{
			ServerName:         sni,
			InsecureSkipVerify: insecure,
		}, utls.HelloCustom)
		if err := uconn.ApplyPreset(&spec); err != nil {
			rawConn.Close()
			return nil, fmt.Errorf("failed to apply %s client hello: %w", name, err)
		}

		if deadline, ok := ctx.Deadline(); ok {
			_ = uconn.SetDeadline(deadline)
			defer func() { _ = uconn.SetDeadline(time.Time{}) }()
		}
		if err := uconn.Handshake(); err != nil {
			rawConn.Close()
			return nil, fmt.Errorf("uTLS handshake with %s failed: %w", addr, err)
		}
		return uconn, nil
	}, nil
}
