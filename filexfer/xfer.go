// Package filexfer streams files over a reliable.Channel.
//
// A file is sent as a chain of blocks of at most packet.MaxBlockSize bytes, each
// flagged MORE, followed by an empty block without MORE. Then the sender sends
// the digest of the file and waits for the receiver's verdict: the OK message
// if the digest matched, an ERROR message otherwise.
package filexfer

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/SaraCappelletti/ProgettoRetiUDP/packet"
	"github.com/SaraCappelletti/ProgettoRetiUDP/reliable"
	"github.com/ethereum/go-ethereum/log"
)

// SendFile sends the file at path. It returns the number of content bytes sent.
func SendFile(ch *reliable.Channel, path string, newHash Hash) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return Send(ch, f, newHash)
}

// Send streams the content of r as a file.
func Send(ch *reliable.Channel, r io.Reader, newHash Hash) (int64, error) {
	if newHash == nil {
		newHash = sha256.New
	}
	var (
		h     = newHash()
		buf   = make([]byte, packet.MaxBlockSize)
		total int64
	)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			h.Write(buf[:n])
			if err := ch.Send(packet.Message{Content: buf[:n], HasMore: true}); err != nil {
				return total, err
			}
			total += int64(n)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		} else if err != nil {
			return total, fmt.Errorf("read error: %w", err)
		}
	}

	// Close the block chain, then send the digest.
	if err := ch.Send(packet.Message{}); err != nil {
		return total, err
	}
	if err := ch.Send(packet.Message{Content: h.Sum(nil)}); err != nil {
		return total, err
	}
	verdict, err := ch.Receive()
	if err != nil {
		return total, err
	}
	if !verdict.IsOK() {
		return total, reliable.IntegrityError{}
	}
	log.Debug("File stream sent", "bytes", total)
	return total, nil
}

// ReceiveFile receives a file and stores it at dest. The content is written to a
// temporary file in stagingDir first, which is renamed to dest only after the
// digest has been verified. If stagingDir is empty, the directory of dest is used.
//
// On failure, dest is left untouched. A digest mismatch is reported as
// reliable.IntegrityError.
func ReceiveFile(ch *reliable.Channel, dest, stagingDir string, newHash Hash) (n int64, err error) {
	if newHash == nil {
		newHash = sha256.New
	}
	if stagingDir == "" {
		stagingDir = filepath.Dir(dest)
	} else if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(stagingDir, "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	var (
		h = newHash()
		w = bufio.NewWriterSize(io.MultiWriter(tmp, h), 64*1024)
	)
	for {
		block, err := ch.ReceiveBlock()
		if err != nil {
			return n, err
		}
		if _, err := w.Write(block.Content); err != nil {
			return n, fmt.Errorf("write error: %w", err)
		}
		n += int64(len(block.Content))
		if !block.HasMore {
			break
		}
	}
	if err := w.Flush(); err != nil {
		return n, fmt.Errorf("write error: %w", err)
	}

	remote, err := ch.Receive()
	if err != nil {
		return n, err
	}
	if !bytes.Equal(remote.Content, h.Sum(nil)) {
		log.Debug("Digest mismatch", "dest", dest, "bytes", n)
		return n, reliable.IntegrityError{}
	}

	if err := tmp.Close(); err != nil {
		return n, err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return n, err
	}
	log.Debug("File stream received", "dest", dest, "bytes", n)

	// The file is in place. Tell the sender.
	if err := ch.Send(packet.OK); err != nil {
		return n, errors.Join(errors.New("file stored, but the confirmation could not be delivered"), err)
	}
	return n, nil
}
