package fileserver

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/SaraCappelletti/ProgettoRetiUDP/filexfer"
	"github.com/SaraCappelletti/ProgettoRetiUDP/packet"
	"github.com/SaraCappelletti/ProgettoRetiUDP/reliable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startServer runs one command exchange in the background and returns the
// client's end of the channel.
func startServer(t *testing.T, root string) (*reliable.Channel, <-chan error) {
	a, b := reliable.Pipe(time.Second)
	srv := NewServer(Config{Root: root})
	done := make(chan error, 1)
	go func() { done <- srv.Serve(reliable.NewChannel(b, nil), nil) }()
	return reliable.NewChannel(a, nil), done
}

func TestValidName(t *testing.T) {
	valid := []string{"report_v2.txt", "a.txt", "My File-1.bin", ".hidden"}
	invalid := []string{"", "a/b", "../etc", "..", "a..b", "x\x00y", "tab\there", "new\nline", "back\\slash", "ü.txt"}
	for _, name := range valid {
		assert.True(t, ValidName(name), "%q should be valid", name)
	}
	for _, name := range invalid {
		assert.False(t, ValidName(name), "%q should be invalid", name)
	}
}

func TestList(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.bin"), []byte("b"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, stagingDirName), 0o755))

	client, done := startServer(t, root)
	require.NoError(t, client.Send(packet.Command(packet.CmdList)))
	resp, err := client.Receive()
	require.NoError(t, err)
	require.NoError(t, <-done)

	names := strings.Split(resp.Text(), "\n")
	sort.Strings(names)
	assert.Equal(t, []string{"a.txt", "b.bin"}, names)
}

func TestListCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "files")
	client, done := startServer(t, root)
	require.NoError(t, client.Send(packet.Command(packet.CmdList)))
	resp, err := client.Receive()
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Equal(t, "", resp.Text())
	assert.DirExists(t, root)
}

func TestGetMissing(t *testing.T) {
	client, done := startServer(t, t.TempDir())
	require.NoError(t, client.Send(packet.Command(packet.CmdGet)))
	require.NoError(t, client.Send(packet.Text("missing.txt")))

	_, err := client.ReceiveBlock()
	require.True(t, reliable.IsRemote(err), "expected error message, got %v", err)
	assert.Contains(t, err.Error(), "missing.txt")
	assert.Error(t, <-done)
}

func TestGetInvalidName(t *testing.T) {
	for _, name := range []string{"../secret", "a/b", "x\x01"} {
		client, done := startServer(t, t.TempDir())
		require.NoError(t, client.Send(packet.Command(packet.CmdGet)))
		require.NoError(t, client.Send(packet.Text(name)))
		_, err := client.ReceiveBlock()
		require.True(t, reliable.IsRemote(err))
		assert.Contains(t, err.Error(), "Invalid filename")
		<-done
	}
}

func TestGet(t *testing.T) {
	root := t.TempDir()
	content := bytes.Repeat([]byte("0123456789"), 500)
	require.NoError(t, os.WriteFile(filepath.Join(root, "report_v2.txt"), content, 0o644))

	client, done := startServer(t, root)
	require.NoError(t, client.Send(packet.Command(packet.CmdGet)))
	require.NoError(t, client.Send(packet.Text("report_v2.txt")))

	dest := filepath.Join(t.TempDir(), "out.txt")
	_, err := filexfer.ReceiveFile(client, dest, "", nil)
	require.NoError(t, err)
	require.NoError(t, <-done)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestPut(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(t.TempDir(), "in.bin")
	content := bytes.Repeat([]byte{1, 2, 3}, 2000)
	require.NoError(t, os.WriteFile(src, content, 0o644))

	client, done := startServer(t, root)
	require.NoError(t, client.Send(packet.Command(packet.CmdPut)))
	require.NoError(t, client.Send(packet.Text("upload.bin")))
	_, err := filexfer.SendFile(client, src, nil)
	require.NoError(t, err)
	require.NoError(t, <-done)

	got, err := os.ReadFile(filepath.Join(root, "upload.bin"))
	require.NoError(t, err)
	assert.Equal(t, content, got)

	names, err := NewStorage(root).List()
	require.NoError(t, err)
	assert.Equal(t, []string{"upload.bin"}, names, "staging files must not be listed")
}

func TestPutInvalidName(t *testing.T) {
	root := t.TempDir()
	client, done := startServer(t, root)
	require.NoError(t, client.Send(packet.Command(packet.CmdPut)))
	require.NoError(t, client.Send(packet.Text("../escape.txt")))

	// The server answers the first block with an error.
	err := client.Send(packet.Message{Content: []byte("data"), HasMore: true})
	require.True(t, reliable.IsRemote(err), "got %v", err)
	assert.Contains(t, err.Error(), "Invalid filename")
	<-done
	assert.NoFileExists(t, filepath.Join(filepath.Dir(root), "escape.txt"))
}

func TestUnknownCommand(t *testing.T) {
	client, done := startServer(t, t.TempDir())
	require.NoError(t, client.Send(packet.Command("X")))
	_, err := client.Receive()
	require.True(t, reliable.IsRemote(err))
	assert.Contains(t, err.Error(), "Unknown command")
	<-done
}

func TestClientSilentTimesOut(t *testing.T) {
	a, b := reliable.Pipe(100 * time.Millisecond)
	defer a.Close()
	srv := NewServer(Config{Root: t.TempDir()})
	err := srv.Serve(reliable.NewChannel(b, nil), nil)
	assert.True(t, reliable.IsTimeout(err))
}

func TestErrorReason(t *testing.T) {
	assert.Equal(t, "File \"x\" does not exist", errorReason(errNotExist("x")))
	assert.Equal(t, "Hash mismatch. Please try again!", errorReason(reliable.IntegrityError{}))
	assert.Equal(t, "Internal error: disk on fire", errorReason(errors.New("disk on fire")))
	assert.Equal(t, "Unexpected answer", errorReason(reliable.ProtocolError{Msg: "Unexpected answer"}))
}
