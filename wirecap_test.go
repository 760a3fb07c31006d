package wirecap_test

import (
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wirecap/wirecap"
	"github.com/wirecap/wirecap/testutils"
)

func TestServerLifecycle(t *testing.T) {
	origin := testutils.NewOriginServer(t)

	proxy, err := wirecap.NewServer("127.0.0.1", 0, &wirecap.Options{
		RequestStorage:        "memory",
		RequestStorageBaseDir: t.TempDir(),
	}, wirecap.WithEnvironment(nil))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- proxy.Run() }()

	captured := make(chan string, 1)
	proxy.SetRequestInterceptor(func(req *wirecap.Request) error {
		captured <- req.URL
		req.Headers.Set("X-Intercepted", "1")
		return nil
	})

	host, port := proxy.Address()
	client := testutils.ProxyClient(net.JoinHostPort(host, strconv.Itoa(port)))
	resp, err := client.Get(origin.URL + "/lifecycle")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "origin:GET /lifecycle", string(body))
	assert.Equal(t, origin.URL+"/lifecycle", <-captured)

	require.Eventually(t, func() bool {
		last, err := proxy.Storage().LoadLastRequest()
		return err == nil && last != nil && last.Response != nil
	}, testutils.TestTimeout, testutils.TestInterval)

	require.NoError(t, proxy.Shutdown())
	require.NoError(t, <-done)
	assert.ErrorIs(t, proxy.Run(), wirecap.ErrAlreadyRunning)
}

func TestNewServer_Errors(t *testing.T) {
	_, err := wirecap.NewServer("127.0.0.1", 0, &wirecap.Options{RequestStorage: "tape"})
	assert.ErrorIs(t, err, wirecap.ErrConfiguration)
}

func TestLoadOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wirecap.yaml")
	require.NoError(t, os.WriteFile(path, []byte("request_storage: memory\nsuppress_connection_errors: false\n"), 0o600))

	opts, err := wirecap.LoadOptions(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", opts.RequestStorage)
	assert.Equal(t, wirecap.Bool(false), opts.SuppressConnectionErrors)
}
