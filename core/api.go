package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wirecap/wirecap/core/capture"
	"github.com/wirecap/wirecap/core/certs"
	"github.com/wirecap/wirecap/core/config"
	"github.com/wirecap/wirecap/core/engine"
	"github.com/wirecap/wirecap/core/modifier"
	"github.com/wirecap/wirecap/core/upstream"
	"github.com/wirecap/wirecap/pkg/logging"
	"github.com/wirecap/wirecap/pkg/metrics"
)

// StorageFactory creates the capture store for a server.
type StorageFactory func(opts capture.Options) (capture.Storage, error)

type serverSettings struct {
	registerer prometheus.Registerer
	getenv     func(string) string
	storage    StorageFactory
}

// ServerOption customizes NewServer.
type ServerOption func(*serverSettings)

// WithRegisterer registers the pipeline metrics with reg.
func WithRegisterer(reg prometheus.Registerer) ServerOption {
	return func(s *serverSettings) { s.registerer = reg }
}

// WithEnvironment replaces os.Getenv for the upstream proxy fallback. A nil
// getenv disables the fallback.
func WithEnvironment(getenv func(string) string) ServerOption {
	return func(s *serverSettings) { s.getenv = getenv }
}

// WithStorageFactory replaces capture.Create.
func WithStorageFactory(f StorageFactory) ServerOption {
	return func(s *serverSettings) { s.storage = f }
}

// Server is the intercepting proxy. It owns the capture store, the engine
// and the interception pipeline between them.
type Server struct {
	opts       *config.Options
	// baseLogger is the caller's logger; logger adds the server component.
	baseLogger logging.Logger
	logger     logging.Logger
	storage    capture.Storage
	engine     *engine.Engine
	modifier   *modifier.Modifier
	metrics    *metrics.Metrics

	requestInterceptor  atomic.Pointer[RequestInterceptor]
	responseInterceptor atomic.Pointer[ResponseInterceptor]
	scopes              atomic.Pointer[scopeSet]
	captureDisabled     bool

	running      atomic.Bool
	shutdownOnce sync.Once
}

// NewServer builds a server listening on host:port. Port 0 picks a free
// port; Address reports it. An empty host keeps the engine default of
// 127.0.0.1; pass "0.0.0.0" to listen on every interface. Construction either fully succeeds or leaves
// nothing behind: the capture store is cleaned up on every failure after it
// was created.
func NewServer(host string, port int, opts *config.Options, logger logging.Logger, options ...ServerOption) (*Server, error) {
	if opts == nil {
		opts = &config.Options{}
	}
	opts = opts.Clone()
	if logger == nil {
		logger = logging.GetLogger()
	}
	settings := &serverSettings{getenv: os.Getenv, storage: capture.Create}
	for _, o := range options {
		o(settings)
	}

	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	opts.Proxy.MergeEnvironment(settings.getenv)

	m, err := metrics.New(settings.registerer)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to register metrics: %w", ErrResource, err)
	}

	storage, err := settings.storage(capture.Options{
		MemoryOnly: opts.MemoryStorage(),
		BaseDir:    opts.RequestStorageBaseDir,
		MaxSize:    opts.RequestStorageMaxSize,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create capture storage: %w", ErrResource, err)
	}

	s := &Server{
		opts:       opts,
		baseLogger: logger,
		logger:     logger.With("component", "server"),
		storage:    storage,
		modifier:   modifier.New(),
		metrics:    m,
	}
	if err := s.init(host, port); err != nil {
		if cerr := storage.Cleanup(); cerr != nil {
			s.logger.Warn("failed to clean up capture storage", "error", cerr)
		}
		return nil, err
	}
	return s, nil
}

func (s *Server) init(host string, port int) error {
	home := s.storage.HomeDir()

	var ca *certs.Source
	if s.opts.CACert != "" {
		var err error
		if ca, err = certs.FromFiles(s.opts.CACert, s.opts.CAKey); err != nil {
			return fmt.Errorf("%w: %w", ErrResource, err)
		}
	}
	if err := certs.Extract(home, ca); err != nil {
		return fmt.Errorf("%w: failed to extract certificates: %w", ErrResource, err)
	}

	up, err := s.resolveUpstream()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	engineOpts, err := s.engineOptions(host, port, home, up)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	e, err := engine.New(engineOpts)
	if err != nil {
		if errors.Is(err, engine.ErrInvalidOption) {
			return fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		return fmt.Errorf("%w: failed to start engine: %w", ErrResource, err)
	}
	s.engine = e

	e.AddAddons(engine.DefaultAddons(engineOpts)...)
	e.AddAddons(newLogBridge(s.baseLogger), newInterceptHandler(s))

	if s.opts.DisableCapture {
		s.captureDisabled = true
		set, _ := compileScopes([]string{config.NeverMatchScope})
		s.scopes.Store(set)
	} else {
		s.scopes.Store(&scopeSet{})
	}
	return nil
}

func (s *Server) resolveUpstream() (*upstream.Settings, error) {
	httpProxy, err := upstream.ParseDescriptor(s.opts.Proxy.HTTP)
	if err != nil {
		return nil, fmt.Errorf("http proxy: %w", err)
	}
	httpsProxy, err := upstream.ParseDescriptor(s.opts.Proxy.HTTPS)
	if err != nil {
		return nil, fmt.Errorf("https proxy: %w", err)
	}
	return upstream.Resolve(httpProxy, httpsProxy, s.opts.Proxy.CustomAuthorization, s.opts.Proxy.NoProxy)
}

// engineOptions layers the engine configuration: defaults, then the
// server's own settings, then the resolved upstream, then the engine_
// pass-through options, which win on collision.
func (s *Server) engineOptions(host string, port int, home string, up *upstream.Settings) (*engine.Options, error) {
	values := map[string]any{
		"listen_port":                port,
		"confdir":                    home,
		"ssl_insecure":               !s.opts.VerifySSL,
		"stream_websockets":          true,
		"suppress_connection_errors": s.opts.SuppressErrors(),
	}
	if host != "" {
		values["listen_host"] = host
	}
	for k, v := range up.EngineOptions() {
		values[k] = v
	}
	for k, v := range s.opts.Engine {
		values[k] = v
	}

	o := engine.DefaultOptions()
	if err := o.Update(values); err != nil {
		return nil, err
	}
	return o, nil
}

// Run serves until Shutdown and then returns nil. Only one Run may be
// active; later calls return ErrAlreadyRunning.
func (s *Server) Run() error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	host, port := s.Address()
	s.logger.Info("proxy listening", "host", host, "port", port, "storage", s.storage.HomeDir())
	if err := s.engine.Serve(); err != nil {
		return fmt.Errorf("proxy stopped: %w", err)
	}
	return nil
}

// Address returns the host and port the proxy is bound to.
func (s *Server) Address() (string, int) {
	addr := s.engine.Addr()
	return addr.IP.String(), addr.Port
}

// Shutdown stops the proxy, abandoning in-flight flows, then cleans up the
// capture store. Cleanup runs even when stopping the engine fails. It is
// safe to call from any goroutine; calls after the first return nil.
func (s *Server) Shutdown() error {
	var err error
	s.shutdownOnce.Do(func() {
		engineErr := s.engine.Close()
		if engineErr != nil {
			s.logger.Warn("failed to stop proxy engine", "error", engineErr)
		}
		storageErr := s.storage.Cleanup()
		if storageErr != nil {
			s.logger.Warn("failed to clean up capture storage", "error", storageErr)
		}
		err = errors.Join(engineErr, storageErr)
		s.logger.Info("proxy stopped")
	})
	return err
}

// SetRequestInterceptor installs fn for subsequent requests. nil removes it.
func (s *Server) SetRequestInterceptor(fn RequestInterceptor) {
	if fn == nil {
		s.requestInterceptor.Store(nil)
		return
	}
	s.requestInterceptor.Store(&fn)
}

// SetResponseInterceptor installs fn for subsequent responses. nil removes it.
func (s *Server) SetResponseInterceptor(fn ResponseInterceptor) {
	if fn == nil {
		s.responseInterceptor.Store(nil)
		return
	}
	s.responseInterceptor.Store(&fn)
}

// SetScopes limits capture to URLs matching any of the patterns. No
// patterns captures everything.
func (s *Server) SetScopes(patterns ...string) error {
	if s.captureDisabled {
		return ErrCaptureDisabled
	}
	set, err := compileScopes(patterns)
	if err != nil {
		return err
	}
	s.scopes.Store(set)
	return nil
}

// Scopes returns the current scope patterns.
func (s *Server) Scopes() []string {
	return append([]string(nil), s.scopes.Load().patterns...)
}

func (s *Server) inScope(rawURL string) bool {
	if s.captureDisabled {
		return false
	}
	return s.scopes.Load().contains(rawURL)
}

// Modifier returns the legacy rewrite rules applied before interceptors.
func (s *Server) Modifier() *modifier.Modifier {
	return s.modifier
}

// Storage returns the capture store.
func (s *Server) Storage() capture.Storage {
	return s.storage
}

// CACertPath is the certificate clients must trust to accept intercepted
// TLS connections.
func (s *Server) CACertPath() string {
	return filepath.Join(s.storage.HomeDir(), certs.CertFile)
}
