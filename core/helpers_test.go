package core

import (
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wirecap/wirecap/core/capture"
	"github.com/wirecap/wirecap/core/config"
	"github.com/wirecap/wirecap/pkg/logging"
	"github.com/wirecap/wirecap/testutils"
)

func memoryOptions(t *testing.T) *config.Options {
	t.Helper()
	return &config.Options{
		RequestStorage:        config.StorageMemory,
		RequestStorageBaseDir: t.TempDir(),
	}
}

func newTestServer(t *testing.T, opts *config.Options, options ...ServerOption) *Server {
	t.Helper()
	return newLoggedServer(t, opts, testutils.NewTestLogger(), options...)
}

func newLoggedServer(t *testing.T, opts *config.Options, logger logging.Logger, options ...ServerOption) *Server {
	t.Helper()
	options = append([]ServerOption{WithEnvironment(nil)}, options...)
	s, err := NewServer("127.0.0.1", 0, opts, logger, options...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })
	return s
}

// runServer starts s and stops it when the test ends.
func runServer(t *testing.T, s *Server) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- s.Run() }()
	t.Cleanup(func() {
		require.NoError(t, s.Shutdown())
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(testutils.TestTimeout):
			t.Error("Run did not return after Shutdown")
		}
	})
}

func proxyGet(t *testing.T, s *Server, target string) (*http.Response, string) {
	t.Helper()
	host, port := s.Address()
	client := testutils.ProxyClient(net.JoinHostPort(host, strconv.Itoa(port)))
	resp, err := client.Get(target)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func storedRequests(t *testing.T, s *Server) []*capture.Request {
	t.Helper()
	reqs, err := s.Storage().LoadRequests()
	require.NoError(t, err)
	return reqs
}

// waitForResponse waits until the only stored request has its response.
func waitForResponse(t *testing.T, s *Server) *capture.Request {
	t.Helper()
	var req *capture.Request
	require.Eventually(t, func() bool {
		last, err := s.Storage().LoadLastRequest()
		if err != nil || last == nil || last.Response == nil {
			return false
		}
		req = last
		return true
	}, testutils.TestTimeout, testutils.TestInterval)
	return req
}
