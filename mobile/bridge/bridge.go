// Package bridge provides a gomobile-compatible wrapper around the wirecap
// proxy server.
package bridge

//go:generate mockgen -package=mocks -destination=../../mocks/mock_status_updater.go github.com/wirecap/wirecap/mobile/bridge StatusUpdater

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/wirecap/wirecap/core"
	"github.com/wirecap/wirecap/core/config"
	"github.com/wirecap/wirecap/pkg/logging"
)

// Status values passed to StatusUpdater.
const (
	StatusStarting = "STARTING"
	StatusRunning  = "RUNNING"
	StatusStopped  = "STOPPED"
	StatusError    = "ERROR"
)

const listenHost = "127.0.0.1"

var (
	mu sync.Mutex
	// server is the single global proxy instance.
	server *core.Server
	// done is closed when server's Run returns.
	done chan struct{}
)

// StatusUpdater is an interface that native mobile code must implement
// to receive status updates from the Go library.
type StatusUpdater interface {
	// OnStatusUpdate is called with one of the Status values and a
	// descriptive message.
	OnStatusUpdate(status, message string)
}

// StartServer starts the proxy on 127.0.0.1:port. configYAML holds the
// proxy options; an empty string uses the defaults. Port 0 picks a free
// port, reported in the RUNNING message. Mobile hosts configure upstream
// proxies explicitly, so the process environment is not consulted.
func StartServer(configYAML string, port int, updater StatusUpdater) {
	mu.Lock()
	defer mu.Unlock()

	if server != nil {
		updater.OnStatusUpdate(StatusError, "Server already running")
		return
	}

	opts, err := config.ParseOptions([]byte(configYAML))
	if err != nil {
		updater.OnStatusUpdate(StatusError, "Invalid configuration: "+err.Error())
		return
	}

	updater.OnStatusUpdate(StatusStarting, "Starting proxy...")
	s, err := core.NewServer(listenHost, port, opts, logging.GetLogger(), core.WithEnvironment(nil))
	if err != nil {
		updater.OnStatusUpdate(StatusError, "Failed to create server: "+err.Error())
		return
	}

	server = s
	done = make(chan struct{})
	go run(s, done, updater)

	host, boundPort := s.Address()
	updater.OnStatusUpdate(StatusRunning, "Proxy is running on "+net.JoinHostPort(host, strconv.Itoa(boundPort)))
}

func run(s *core.Server, done chan struct{}, updater StatusUpdater) {
	defer close(done)
	if err := s.Run(); err != nil && !errors.Is(err, core.ErrAlreadyRunning) {
		logging.GetLogger().Error("Proxy stopped with error", "error", err)
		updater.OnStatusUpdate(StatusStopped, "Proxy failed: "+err.Error())
	}
}

// StopServer stops the proxy and waits for it to exit.
func StopServer(updater StatusUpdater) {
	mu.Lock()
	defer mu.Unlock()

	if server == nil {
		updater.OnStatusUpdate(StatusError, "Server not running")
		return
	}

	err := server.Shutdown()
	<-done
	server, done = nil, nil
	if err != nil {
		updater.OnStatusUpdate(StatusError, fmt.Sprintf("Server stopped with errors: %v", err))
		return
	}
	updater.OnStatusUpdate(StatusStopped, "Server stopped.")
}

// CACertPath returns the certificate the device must trust, or an empty
// string when no server is running.
func CACertPath() string {
	mu.Lock()
	defer mu.Unlock()
	if server == nil {
		return ""
	}
	return server.CACertPath()
}

// ResetForTesting stops any running server and clears the global state.
func ResetForTesting() {
	mu.Lock()
	defer mu.Unlock()
	if server != nil {
		_ = server.Shutdown()
		<-done
	}
	server, done = nil, nil
}
