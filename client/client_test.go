package client

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/SaraCappelletti/ProgettoRetiUDP/host"
	"github.com/SaraCappelletti/ProgettoRetiUDP/reliable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T) (*Client, string) {
	cfg := host.ConfigForTesting
	cfg.Root = t.TempDir()
	h, err := host.Listen(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return New(h.LocalAddr().String(), Config{Timeout: time.Second}), cfg.Root
}

func TestListEmpty(t *testing.T) {
	c, _ := startServer(t)
	names, err := c.List()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestPutGetList(t *testing.T) {
	c, root := startServer(t)
	dir := t.TempDir()
	content := bytes.Repeat([]byte("The quick brown fox. "), 1000)
	in := filepath.Join(dir, "in.txt")
	require.NoError(t, os.WriteFile(in, content, 0o644))

	n, err := c.Put("fox.txt", in)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), n)
	stored, err := os.ReadFile(filepath.Join(root, "fox.txt"))
	require.NoError(t, err)
	assert.Equal(t, content, stored)

	_, err = c.Put("empty.txt", writeFile(t, dir, "empty", nil))
	require.NoError(t, err)

	names, err := c.List()
	require.NoError(t, err)
	sort.Strings(names)
	assert.Equal(t, []string{"empty.txt", "fox.txt"}, names)

	out := filepath.Join(dir, "out.txt")
	n, err = c.Get("fox.txt", out)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), n)
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestGetMissing(t *testing.T) {
	c, _ := startServer(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "out.txt")

	_, err := c.Get("missing.txt", out)
	require.Error(t, err)
	assert.True(t, reliable.IsRemote(err), "got %v", err)
	assert.Contains(t, err.Error(), "missing.txt")
	assert.NoFileExists(t, out)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no partial files may be left behind")
}

func TestPutInvalidName(t *testing.T) {
	c, _ := startServer(t)
	in := writeFile(t, t.TempDir(), "in", []byte("data"))
	_, err := c.Put("../outside.txt", in)
	require.True(t, reliable.IsRemote(err), "got %v", err)
	assert.Contains(t, err.Error(), "Invalid filename")
}

func TestPutMissingLocalFile(t *testing.T) {
	c, _ := startServer(t)
	_, err := c.Put("x.txt", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestServerSilent(t *testing.T) {
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	c := New(pc.LocalAddr().String(), Config{Timeout: 100 * time.Millisecond})
	_, err = c.List()
	assert.True(t, reliable.IsTimeout(err), "got %v", err)
}

func writeFile(t *testing.T, dir, name string, content []byte) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}
