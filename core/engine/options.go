package engine

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnknownOption is returned by Options.Update for keys the engine does
	// not recognize.
	ErrUnknownOption = errors.New("unknown engine option")
	// ErrInvalidOption is returned when a value cannot be converted to the
	// option's type.
	ErrInvalidOption = errors.New("invalid engine option value")
)

// ModeRegular proxies directly to the origin.
const ModeRegular = "regular"

// Options configures an Engine. The zero value is not useful; start from
// DefaultOptions.
type Options struct {
	ListenHost string
	ListenPort int
	// ConfDir holds ca.crt and ca.key. Empty uses the CA bundled with goproxy.
	ConfDir string

	SSLInsecure              bool
	StreamWebSockets         bool
	SuppressConnectionErrors bool

	// Mode is "regular" or "upstream:<scheme>://<host:port>".
	Mode               string
	UpstreamAuth       string
	UpstreamCustomAuth string
	NoProxy            []string

	// BodySizeLimit caps how much of a body is buffered for addons. Larger
	// bodies stream through uncaptured. Zero means no limit.
	BodySizeLimit int64

	Verbose                bool
	KeepDestinationHeaders bool
	ConnectTimeout         time.Duration
	// TLSFingerprint selects a browser ClientHello for direct origin TLS.
	TLSFingerprint string
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() *Options {
	return &Options{
		ListenHost:               "127.0.0.1",
		ListenPort:               8080,
		SSLInsecure:              true,
		StreamWebSockets:         true,
		SuppressConnectionErrors: true,
		Mode:                     ModeRegular,
		ConnectTimeout:           30 * time.Second,
	}
}

type optionSetter func(o *Options, v any) error

var optionSetters = map[string]optionSetter{
	"listen_host": func(o *Options, v any) (err error) { o.ListenHost, err = toString(v); return },
	"listen_port": func(o *Options, v any) error {
		port, err := toInt(v)
		if err != nil {
			return err
		}
		if port < 0 || port > 65535 {
			return fmt.Errorf("port %d out of range", port)
		}
		o.ListenPort = port
		return nil
	},
	"confdir":                    func(o *Options, v any) (err error) { o.ConfDir, err = toString(v); return },
	"ssl_insecure":               func(o *Options, v any) (err error) { o.SSLInsecure, err = toBool(v); return },
	"stream_websockets":          func(o *Options, v any) (err error) { o.StreamWebSockets, err = toBool(v); return },
	"suppress_connection_errors": func(o *Options, v any) (err error) { o.SuppressConnectionErrors, err = toBool(v); return },
	"mode": func(o *Options, v any) error {
		mode, err := toString(v)
		if err != nil {
			return err
		}
		if mode != ModeRegular && !strings.HasPrefix(mode, "upstream:") {
			return fmt.Errorf("unsupported mode %q", mode)
		}
		o.Mode = mode
		return nil
	},
	"upstream_auth":            func(o *Options, v any) (err error) { o.UpstreamAuth, err = toString(v); return },
	"upstream_custom_auth":     func(o *Options, v any) (err error) { o.UpstreamCustomAuth, err = toString(v); return },
	"no_proxy":                 func(o *Options, v any) (err error) { o.NoProxy, err = toStringSlice(v); return },
	"body_size_limit":          func(o *Options, v any) (err error) { o.BodySizeLimit, err = toSize(v); return },
	"verbose":                  func(o *Options, v any) (err error) { o.Verbose, err = toBool(v); return },
	"keep_destination_headers": func(o *Options, v any) (err error) { o.KeepDestinationHeaders, err = toBool(v); return },
	"connect_timeout":          func(o *Options, v any) (err error) { o.ConnectTimeout, err = toDuration(v); return },
	"tls_fingerprint":          func(o *Options, v any) (err error) { o.TLSFingerprint, err = toString(v); return },
}

// OptionKeys lists every key Update accepts.
func OptionKeys() []string {
	keys := make([]string, 0, len(optionSetters))
	for k := range optionSetters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Update applies values keyed by option name. Keys are applied in sorted
// order and the first failure stops the update.
func (o *Options) Update(values map[string]any) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		set, ok := optionSetters[k]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownOption, k)
		}
		if err := set(o, values[k]); err != nil {
			return fmt.Errorf("%w %q: %v", ErrInvalidOption, k, err)
		}
	}
	return nil
}

// Clone returns a copy that shares nothing with o.
func (o *Options) Clone() *Options {
	c := *o
	c.NoProxy = append([]string(nil), o.NoProxy...)
	return &c
}

func toString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case fmt.Stringer:
		return t.String(), nil
	case nil:
		return "", nil
	}
	return "", fmt.Errorf("expected string, got %T", v)
}

func toBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		return strconv.ParseBool(t)
	}
	return false, fmt.Errorf("expected bool, got %T", v)
}

func toInt(v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case uint16:
		return int(t), nil
	case float64:
		if t != float64(int(t)) {
			return 0, fmt.Errorf("expected integer, got %v", t)
		}
		return int(t), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(t))
	}
	return 0, fmt.Errorf("expected integer, got %T", v)
}

func toStringSlice(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return append([]string(nil), t...), nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected list of strings, found %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		var out []string
		for _, part := range strings.Split(t, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected list of strings, got %T", v)
}

// toSize accepts a byte count or a string with an optional k, m or g suffix.
func toSize(v any) (int64, error) {
	s, ok := v.(string)
	if !ok {
		n, err := toInt(v)
		if err == nil && n < 0 {
			err = fmt.Errorf("negative size %d", n)
		}
		return int64(n), err
	}

	s = strings.ToLower(strings.TrimSpace(s))
	mult := int64(1)
	if s != "" {
		switch s[len(s)-1] {
		case 'k':
			mult = 1 << 10
		case 'm':
			mult = 1 << 20
		case 'g':
			mult = 1 << 30
		}
		if mult != 1 {
			s = s[:len(s)-1]
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", v)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative size %d", n)
	}
	return n * mult, nil
}

// toDuration accepts a time.Duration, a Go duration string, or a number of
// seconds.
func toDuration(v any) (time.Duration, error) {
	switch t := v.(type) {
	case time.Duration:
		return t, nil
	case string:
		if d, err := time.ParseDuration(t); err == nil {
			return d, nil
		}
		secs, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", t)
		}
		return time.Duration(secs * float64(time.Second)), nil
	case int, int64, float64:
		n, err := toInt(t)
		if err != nil {
			f, _ := t.(float64)
			return time.Duration(f * float64(time.Second)), nil
		}
		return time.Duration(n) * time.Second, nil
	}
	return 0, fmt.Errorf("expected duration, got %T", v)
}
