// Package modifier applies static rewrites to captured requests and
// responses: header overrides, query parameters, bodies and URL rewrite
// rules, each optionally limited to URLs matching a pattern.
//
// Interceptors supersede it; it stays for callers that configure rewrites
// declaratively.
package modifier

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/wirecap/wirecap/core/capture"
)

// HeaderRule overrides headers on requests whose URL matches URL. An empty
// URL matches everything. A nil value removes the header.
type HeaderRule struct {
	URL     string
	Headers map[string]*string
}

// ParamRule overrides query parameters, or form fields for url-encoded
// POST bodies. A nil value removes the parameter.
type ParamRule struct {
	URL    string
	Params map[string]*string
}

// QueryRule replaces the whole query string.
type QueryRule struct {
	URL   string
	Query string
}

// BodyRule replaces the request body.
type BodyRule struct {
	URL  string
	Body []byte
}

// RewriteRule rewrites request URLs with a regular expression. Replacement
// may reference groups as in regexp.Regexp.ReplaceAllString.
type RewriteRule struct {
	Pattern     string
	Replacement string
}

type scoped[T any] struct {
	url   *regexp.Regexp
	value T
}

func (s scoped[T]) matches(rawURL string) bool {
	return s.url == nil || s.url.MatchString(rawURL)
}

// first returns the first rule whose scope matches rawURL.
func first[T any](rules []scoped[T], rawURL string) (T, bool) {
	for _, r := range rules {
		if r.matches(rawURL) {
			return r.value, true
		}
	}
	var zero T
	return zero, false
}

func compileScope(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid url pattern %q: %w", pattern, err)
	}
	return re, nil
}

type rewrite struct {
	re          *regexp.Regexp
	replacement string
}

// Modifier holds the configured rewrites. Setters replace a whole category
// at once. It is safe for concurrent use.
type Modifier struct {
	mu              sync.RWMutex
	headers         []scoped[map[string]*string]
	responseHeaders []scoped[map[string]*string]
	params          []scoped[map[string]*string]
	queries         []scoped[string]
	bodies          []scoped[[]byte]
	rewrites        []rewrite
}

// New returns a Modifier with no rewrites configured.
func New() *Modifier {
	return &Modifier{}
}

func scopeAll[R any, T any](rules []R, get func(R) (string, T)) ([]scoped[T], error) {
	out := make([]scoped[T], 0, len(rules))
	for _, r := range rules {
		pattern, value := get(r)
		re, err := compileScope(pattern)
		if err != nil {
			return nil, err
		}
		out = append(out, scoped[T]{url: re, value: value})
	}
	return out, nil
}

// SetHeaders replaces the request header overrides.
func (m *Modifier) SetHeaders(rules ...HeaderRule) error {
	scopedRules, err := scopeAll(rules, func(r HeaderRule) (string, map[string]*string) { return r.URL, r.Headers })
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.headers = scopedRules
	m.mu.Unlock()
	return nil
}

// SetResponseHeaders replaces the response header overrides. Scopes match
// the request URL.
func (m *Modifier) SetResponseHeaders(rules ...HeaderRule) error {
	scopedRules, err := scopeAll(rules, func(r HeaderRule) (string, map[string]*string) { return r.URL, r.Headers })
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.responseHeaders = scopedRules
	m.mu.Unlock()
	return nil
}

// SetParams replaces the parameter overrides.
func (m *Modifier) SetParams(rules ...ParamRule) error {
	scopedRules, err := scopeAll(rules, func(r ParamRule) (string, map[string]*string) { return r.URL, r.Params })
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.params = scopedRules
	m.mu.Unlock()
	return nil
}

// SetQuerystring replaces the query string overrides.
func (m *Modifier) SetQuerystring(rules ...QueryRule) error {
	scopedRules, err := scopeAll(rules, func(r QueryRule) (string, string) { return r.URL, r.Query })
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.queries = scopedRules
	m.mu.Unlock()
	return nil
}

// SetBody replaces the body overrides.
func (m *Modifier) SetBody(rules ...BodyRule) error {
	scopedRules, err := scopeAll(rules, func(r BodyRule) (string, []byte) { return r.URL, r.Body })
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.bodies = scopedRules
	m.mu.Unlock()
	return nil
}

// SetRewriteRules replaces the URL rewrite rules. Every matching rule is
// applied in order.
func (m *Modifier) SetRewriteRules(rules ...RewriteRule) error {
	rewrites := make([]rewrite, 0, len(rules))
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return fmt.Errorf("invalid rewrite pattern %q: %w", r.Pattern, err)
		}
		rewrites = append(rewrites, rewrite{re: re, replacement: r.Replacement})
	}
	m.mu.Lock()
	m.rewrites = rewrites
	m.mu.Unlock()
	return nil
}

// Reset drops every configured rewrite.
func (m *Modifier) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headers, m.responseHeaders, m.params = nil, nil, nil
	m.queries, m.bodies, m.rewrites = nil, nil, nil
}

// ModifyRequest applies the request rewrites in place. Scopes are matched
// against the URL as it arrived; URL rewrites run last.
func (m *Modifier) ModifyRequest(req *capture.Request) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	original := req.URL

	if headers, ok := first(m.headers, original); ok {
		applyHeaders(req.Headers, headers)
	}
	if body, ok := first(m.bodies, original); ok {
		req.Body = append([]byte(nil), body...)
		req.Headers.Set("Content-Length", strconv.Itoa(len(body)))
	}
	if query, ok := first(m.queries, original); ok {
		req.URL = withRawQuery(req.URL, query)
	}
	if params, ok := first(m.params, original); ok {
		applyParams(req, params)
	}
	for _, r := range m.rewrites {
		if r.re.MatchString(req.URL) {
			req.URL = r.re.ReplaceAllString(req.URL, r.replacement)
		}
	}
}

// ModifyResponse applies the response header overrides in place.
func (m *Modifier) ModifyResponse(req *capture.Request, resp *capture.Response) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if headers, ok := first(m.responseHeaders, req.URL); ok {
		applyHeaders(resp.Headers, headers)
	}
}

func applyHeaders(h http.Header, overrides map[string]*string) {
	for name, value := range overrides {
		if value == nil {
			h.Del(name)
			continue
		}
		h.Set(name, *value)
	}
}

func applyValues(values url.Values, overrides map[string]*string) {
	for name, value := range overrides {
		if value == nil {
			values.Del(name)
			continue
		}
		values.Set(name, *value)
	}
}

func isFormPost(req *capture.Request) bool {
	return req.Method == http.MethodPost &&
		strings.HasPrefix(req.Headers.Get("Content-Type"), "application/x-www-form-urlencoded")
}

func applyParams(req *capture.Request, overrides map[string]*string) {
	if isFormPost(req) {
		values, err := url.ParseQuery(string(req.Body))
		if err != nil {
			return
		}
		applyValues(values, overrides)
		req.Body = []byte(values.Encode())
		req.Headers.Set("Content-Length", strconv.Itoa(len(req.Body)))
		return
	}

	u, err := url.Parse(req.URL)
	if err != nil {
		return
	}
	values := u.Query()
	applyValues(values, overrides)
	u.RawQuery = values.Encode()
	req.URL = u.String()
}

func withRawQuery(rawURL, query string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.RawQuery = query
	return u.String()
}
