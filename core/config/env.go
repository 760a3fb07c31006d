package config

import "strings"

// MergeEnvironment fills the upstream proxy settings left empty from the
// conventional HTTP_PROXY, HTTPS_PROXY and NO_PROXY variables. Upper case
// names win over lower case ones.
func (p *ProxyOptions) MergeEnvironment(getenv func(string) string) {
	if getenv == nil {
		return
	}
	if p.HTTP == "" {
		p.HTTP = firstEnv(getenv, "HTTP_PROXY", "http_proxy")
	}
	if p.HTTPS == "" {
		p.HTTPS = firstEnv(getenv, "HTTPS_PROXY", "https_proxy")
	}
	if len(p.NoProxy) == 0 {
		for _, part := range strings.Split(firstEnv(getenv, "NO_PROXY", "no_proxy"), ",") {
			if part = strings.TrimSpace(part); part != "" {
				p.NoProxy = append(p.NoProxy, part)
			}
		}
	}
}

func firstEnv(getenv func(string) string, names ...string) string {
	for _, name := range names {
		if v := getenv(name); v != "" {
			return v
		}
	}
	return ""
}
