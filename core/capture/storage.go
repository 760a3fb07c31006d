//go:generate mockgen -package=mocks -destination=../../mocks/mock_storage.go github.com/wirecap/wirecap/core/capture Storage

// Package capture stores requests and responses seen by the proxy. A storage
// also owns the home directory the engine keeps its certificate material in.
package capture

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// HomeDirName is the directory created under the base dir.
const HomeDirName = ".wirecap"

// ErrNotFound is returned when a request id is unknown.
var ErrNotFound = errors.New("request not found")

// Storage is a capture store. Implementations are safe for concurrent use.
type Storage interface {
	// HomeDir is the directory holding certificates and session data.
	HomeDir() string
	SaveRequest(req *Request) error
	SaveResponse(requestID string, resp *Response) error
	// LoadRequests returns all requests in capture order.
	LoadRequests() ([]*Request, error)
	LoadRequest(id string) (*Request, error)
	// LoadLastRequest returns nil when nothing has been captured.
	LoadLastRequest() (*Request, error)
	// FindRequest returns the first request whose URL matches pattern, or nil.
	FindRequest(pattern string) (*Request, error)
	Clear() error
	// Cleanup releases the store. Calling it more than once is safe.
	Cleanup() error
}

// Options configures Create.
type Options struct {
	// MemoryOnly selects the in-memory store.
	MemoryOnly bool
	// BaseDir is the parent of the home dir. Defaults to os.TempDir().
	BaseDir string
	// MaxSize caps the number of stored requests; the oldest are evicted.
	// Zero means unbounded.
	MaxSize int
}

// Create creates the home directory and a store of the requested kind.
func Create(opts Options) (Storage, error) {
	if opts.MaxSize < 0 {
		return nil, fmt.Errorf("invalid max size %d", opts.MaxSize)
	}
	base := opts.BaseDir
	if base == "" {
		base = os.TempDir()
	}
	home := filepath.Join(base, HomeDirName)
	if err := os.MkdirAll(home, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage home %s: %w", home, err)
	}

	if opts.MemoryOnly {
		return NewMemoryStorage(home, opts.MaxSize), nil
	}
	return NewDiskStorage(home, opts.MaxSize)
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid url pattern %q: %w", pattern, err)
	}
	return re, nil
}
