package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnginePrefix marks keys forwarded verbatim to the proxy engine.
const EnginePrefix = "engine_"

// NeverMatchScope is the scope installed when capture is disabled.
const NeverMatchScope = "$^"

// StorageMemory selects the in-memory capture store.
const StorageMemory = "memory"

// Options configures a proxy server.
type Options struct {
	VerifySSL bool `yaml:"verify_ssl"`
	// SuppressConnectionErrors defaults to true when unset.
	SuppressConnectionErrors *bool `yaml:"suppress_connection_errors,omitempty"`

	RequestStorage        string `yaml:"request_storage"`
	RequestStorageBaseDir string `yaml:"request_storage_base_dir"`
	RequestStorageMaxSize int    `yaml:"request_storage_max_size"`
	DisableCapture        bool   `yaml:"disable_capture"`

	Proxy ProxyOptions `yaml:"proxy"`

	// CACert and CAKey point to a CA pair to use instead of the bundled one.
	// The pair is copied into the storage home dir and stays there for
	// later runs that set neither.
	CACert string `yaml:"ca_cert"`
	CAKey  string `yaml:"ca_key"`

	// Engine holds the engine_ keys with the prefix stripped.
	Engine map[string]any `yaml:"-"`
}

// ProxyOptions describes the upstream proxies. HTTP and HTTPS are URLs of
// the form scheme://[user:pass@]host:port.
type ProxyOptions struct {
	HTTP                string   `yaml:"http"`
	HTTPS               string   `yaml:"https"`
	NoProxy             []string `yaml:"no_proxy"`
	CustomAuthorization string   `yaml:"custom_authorization"`
}

// knownKeys are the top-level keys Options decodes itself.
var knownKeys = map[string]bool{
	"verify_ssl":                 true,
	"suppress_connection_errors": true,
	"request_storage":            true,
	"request_storage_base_dir":   true,
	"request_storage_max_size":   true,
	"disable_capture":            true,
	"proxy":                      true,
	"ca_cert":                    true,
	"ca_key":                     true,
}

// UnmarshalYAML decodes the recognized keys and collects engine_ keys into
// Engine. Any other key is rejected.
func (o *Options) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("options must be a mapping, got %s", nodeKind(value))
	}

	type plain Options
	var decoded plain
	if err := value.Decode(&decoded); err != nil {
		return err
	}

	for i := 0; i+1 < len(value.Content); i += 2 {
		key := value.Content[i].Value
		switch {
		case knownKeys[key]:
		case strings.HasPrefix(key, EnginePrefix) && len(key) > len(EnginePrefix):
			var v any
			if err := value.Content[i+1].Decode(&v); err != nil {
				return fmt.Errorf("failed to decode %s: %w", key, err)
			}
			if decoded.Engine == nil {
				decoded.Engine = make(map[string]any)
			}
			decoded.Engine[strings.TrimPrefix(key, EnginePrefix)] = v
		default:
			return fmt.Errorf("unknown option %q (line %d)", key, value.Content[i].Line)
		}
	}

	*o = Options(decoded)
	return nil
}

func nodeKind(n *yaml.Node) string {
	switch n.Kind {
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.DocumentNode:
		return "document"
	case yaml.AliasNode:
		return "alias"
	}
	return "mapping"
}

// SuppressErrors reports the effective suppress_connection_errors value.
func (o *Options) SuppressErrors() bool {
	return o.SuppressConnectionErrors == nil || *o.SuppressConnectionErrors
}

// MemoryStorage reports whether the in-memory capture store is selected.
func (o *Options) MemoryStorage() bool {
	return o.RequestStorage == StorageMemory
}

// Clone returns a deep copy.
func (o *Options) Clone() *Options {
	c := *o
	if o.SuppressConnectionErrors != nil {
		v := *o.SuppressConnectionErrors
		c.SuppressConnectionErrors = &v
	}
	c.Proxy.NoProxy = append([]string(nil), o.Proxy.NoProxy...)
	if o.Engine != nil {
		c.Engine = make(map[string]any, len(o.Engine))
		for k, v := range o.Engine {
			c.Engine[k] = v
		}
	}
	return &c
}

// Bool returns a pointer to v, for optional fields.
func Bool(v bool) *bool {
	return &v
}
