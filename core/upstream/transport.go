package upstream

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/http/httpproxy"
)

// ProxyFunc builds the http.Transport proxy selector for an upstream target.
// Credentials from auth are embedded in the proxy URL unless customAuth is
// set, in which case the caller sends customAuth as Proxy-Authorization.
// Hosts matched by noProxy connect directly. Loopback destinations go
// through the upstream like any other host.
func ProxyFunc(target *url.URL, auth, customAuth string, noProxy []string) func(*http.Request) (*url.URL, error) {
	if target == nil {
		return nil
	}
	u := *target
	u.User = nil
	if auth != "" && customAuth == "" {
		user, pass, _ := strings.Cut(auth, ":")
		u.User = url.UserPassword(user, pass)
	}

	cfg := &httpproxy.Config{
		HTTPProxy:  u.String(),
		HTTPSProxy: u.String(),
		NoProxy:    strings.Join(noProxy, ","),
	}
	selector := cfg.ProxyFunc()
	return func(req *http.Request) (*url.URL, error) {
		// httpproxy never proxies loopback hosts, whatever NoProxy says.
		if isLoopback(req.URL.Hostname()) {
			if matchNoProxy(noProxy, req.URL) {
				return nil, nil
			}
			proxy := u
			return &proxy, nil
		}
		return selector(req.URL)
	}
}

func isLoopback(host string) bool {
	host = strings.ToLower(host)
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// matchNoProxy reports whether u is excluded by a no_proxy list. Entries
// are "*", CIDR ranges, IPs, or domains with an optional port; a domain
// also matches its subdomains.
func matchNoProxy(noProxy []string, u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "https", "wss":
			port = "443"
		default:
			port = "80"
		}
	}
	ip := net.ParseIP(host)

	for _, entry := range noProxy {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry == "" {
			continue
		}
		if entry == "*" {
			return true
		}
		if _, cidr, err := net.ParseCIDR(entry); err == nil {
			if ip != nil && cidr.Contains(ip) {
				return true
			}
			continue
		}

		name, entryPort := entry, ""
		if h, p, err := net.SplitHostPort(entry); err == nil {
			name, entryPort = h, p
		}
		if entryPort != "" && entryPort != port {
			continue
		}
		if entryIP := net.ParseIP(name); entryIP != nil {
			if ip != nil && entryIP.Equal(ip) {
				return true
			}
			continue
		}

		name = strings.TrimPrefix(name, "*")
		if strings.HasPrefix(name, ".") {
			if strings.HasSuffix(host, name) {
				return true
			}
			continue
		}
		if host == name || strings.HasSuffix(host, "."+name) {
			return true
		}
	}
	return false
}

// ConnectHeader returns the headers sent on CONNECT requests to the upstream.
func ConnectHeader(customAuth string) http.Header {
	if customAuth == "" {
		return nil
	}
	return http.Header{"Proxy-Authorization": []string{customAuth}}
}
