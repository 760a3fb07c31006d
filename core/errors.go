package core

import "errors"

var (
	// ErrConfiguration marks construction failures caused by option values,
	// such as conflicting upstream proxies or unknown engine keys.
	ErrConfiguration = errors.New("configuration error")
	// ErrResource marks construction failures acquiring storage, certificate
	// material or the listener.
	ErrResource = errors.New("resource error")
	// ErrAlreadyRunning is returned by Run when the server is already serving.
	ErrAlreadyRunning = errors.New("server is already running")
	// ErrCaptureDisabled is returned by SetScopes when capture was disabled
	// at construction.
	ErrCaptureDisabled = errors.New("capture is disabled")
)
