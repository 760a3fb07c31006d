package testutils

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSOCKS5UpstreamResolvesEveryName(t *testing.T) {
	origin := NewOriginServer(t)
	u, err := url.Parse(origin.URL)
	require.NoError(t, err)

	socksAddr := NewSOCKS5Upstream(t)
	conn, err := DialSOCKS5(socksAddr, "anything.test:"+u.Port())
	require.NoError(t, err)
	defer conn.Close()

	_, err = fmt.Fprint(conn, "GET /socks HTTP/1.1\r\nHost: anything.test\r\nConnection: close\r\n\r\n")
	require.NoError(t, err)
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "origin:GET /socks", string(body))
}

func TestRecordingLoggerSharesEntriesAcrossWith(t *testing.T) {
	root := NewRecordingLogger()
	child := root.With("component", "test")
	child.Warn("careful", "n", 1)
	root.Info("plain")

	entries := root.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, []interface{}{"component", "test", "n", 1}, entries[0].KeysAndValues)
	assert.Len(t, root.EntriesAt("warn"), 1)
}
