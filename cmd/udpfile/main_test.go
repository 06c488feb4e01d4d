package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/SaraCappelletti/ProgettoRetiUDP/host"
	"github.com/SaraCappelletti/ProgettoRetiUDP/reliable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, server string, args ...string) (string, error) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	base := []string{"--config", filepath.Join(t.TempDir(), "none.yaml"), "--server", server, "--timeout", "1s"}
	cmd.SetArgs(append(base, args...))
	err := cmd.Execute()
	return out.String(), err
}

func startServer(t *testing.T) (string, string) {
	cfg := host.ConfigForTesting
	cfg.Root = t.TempDir()
	h, err := host.Listen(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h.LocalAddr().String(), cfg.Root
}

func TestPutGetList(t *testing.T) {
	addr, _ := startServer(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "in.txt")
	require.NoError(t, os.WriteFile(in, []byte("hello"), 0o644))

	out, err := run(t, addr, "put", "hello.txt", in)
	require.NoError(t, err)
	assert.Equal(t, "File \"hello.txt\" sent successfully.\n", out)

	out, err = run(t, addr, "list")
	require.NoError(t, err)
	assert.Equal(t, "Available files in the server:\n• hello.txt\n", out)

	dest := filepath.Join(dir, "out.txt")
	out, err = run(t, addr, "get", "hello.txt", dest)
	require.NoError(t, err)
	assert.Equal(t, "File \"hello.txt\" received successfully in \""+dest+"\".\n", out)
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestGetMissing(t *testing.T) {
	addr, _ := startServer(t)
	dest := filepath.Join(t.TempDir(), "out.txt")
	_, err := run(t, addr, "get", "missing.txt", dest)
	require.Error(t, err)
	assert.Contains(t, errorMessage(err), "missing.txt")
	assert.NoFileExists(t, dest)
}

func TestBadArguments(t *testing.T) {
	_, err := run(t, "127.0.0.1:1", "get", "only-one-arg")
	assert.Error(t, err)
	_, err = run(t, "127.0.0.1:1", "list", "--hash", "md5")
	assert.Error(t, err)
}

func TestErrorLine(t *testing.T) {
	var buf bytes.Buffer
	printError(&buf, reliable.TimeoutError{After: time.Second})
	assert.Equal(t, "[ERROR]: The server stopped responding\n", buf.String())

	buf.Reset()
	printError(&buf, reliable.RemoteError{Reason: `File "x" does not exist`})
	assert.Equal(t, "[ERROR]: File \"x\" does not exist\n", buf.String())

	buf.Reset()
	printError(&buf, errors.New("boom"))
	assert.True(t, strings.HasPrefix(buf.String(), "[ERROR]: "))
}
