package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadOptionsFile loads options from a YAML file and validates them.
func LoadOptionsFile(filePath string) (*Options, error) {
	buf, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", filePath, err)
	}
	return ParseOptions(buf)
}

// ParseOptions decodes and validates YAML options. Empty input yields the
// defaults.
func ParseOptions(buf []byte) (*Options, error) {
	var opts Options
	if err := yaml.Unmarshal(buf, &opts); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &opts, nil
}

// FromMap builds options from a plain key/value mapping, as handed over by
// embedding harnesses.
func FromMap(m map[string]any) (*Options, error) {
	if len(m) == 0 {
		return &Options{}, nil
	}
	buf, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode options: %w", err)
	}
	return ParseOptions(buf)
}
