package interfaces

import (
	"github.com/wirecap/wirecap/core"
	"github.com/wirecap/wirecap/core/capture"
	"github.com/wirecap/wirecap/core/modifier"
)

// Proxy defines the public interface for the intercepting proxy.
type Proxy interface {
	// Run serves until Shutdown is called.
	Run() error
	// Shutdown stops serving and releases the capture store.
	Shutdown() error
	// Address returns the host and port the proxy is bound to.
	Address() (string, int)

	SetRequestInterceptor(fn core.RequestInterceptor)
	SetResponseInterceptor(fn core.ResponseInterceptor)
	SetScopes(patterns ...string) error
	Scopes() []string

	// Modifier returns the header, query and body rewrite rules.
	Modifier() *modifier.Modifier
	// Storage returns the captured traffic.
	Storage() capture.Storage
	// CACertPath is the certificate clients must trust.
	CACertPath() string
}
