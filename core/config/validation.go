package config

import (
	"fmt"

	"github.com/wirecap/wirecap/core/upstream"
)

// Validate checks option values that can be verified without side effects.
func (o *Options) Validate() error {
	switch o.RequestStorage {
	case "", StorageMemory, "disk":
	default:
		return fmt.Errorf("request_storage must be 'memory' or 'disk', got '%s'", o.RequestStorage)
	}
	if o.RequestStorageMaxSize < 0 {
		return fmt.Errorf("request_storage_max_size must not be negative, got %d", o.RequestStorageMaxSize)
	}
	if (o.CACert == "") != (o.CAKey == "") {
		return fmt.Errorf("ca_cert and ca_key must be set together")
	}
	for scheme, raw := range map[string]string{"http": o.Proxy.HTTP, "https": o.Proxy.HTTPS} {
		if _, err := upstream.ParseDescriptor(raw); err != nil {
			return fmt.Errorf("invalid proxy.%s: %w", scheme, err)
		}
	}
	return nil
}
