// Package packet implements the wire format of the file exchange protocol.
//
// A packet is one UDP datagram: a single header byte followed by at most
// MaxBlockSize bytes of content.
//
//	bit 0  MORE     more fragments/blocks follow
//	bit 1  COMMAND  content is a command code
//	bit 2  ERROR    content is a human-readable error reason
//	bits 3-7        reserved, zero
package packet

import (
	"errors"
	"time"
)

// Protocol constants.
const (
	HeaderSize   = 1
	MaxRecvSize  = 1 << 16
	MaxBlockSize = 1<<10 - HeaderSize

	// Timeout is how long a blocking receive waits for the next packet.
	Timeout = 5 * time.Second
)

// Compile-time check: a full packet always fits the receive buffer.
var _ [MaxRecvSize - (MaxBlockSize + HeaderSize)]struct{}

const (
	flagMore    = 1 << 0
	flagCommand = 1 << 1
	flagError   = 1 << 2
)

// Command codes, sent as the content of the first message of an exchange.
const (
	CmdList = "L"
	CmdGet  = "G"
	CmdPut  = "P"
)

// ErrEmptyPacket is returned by Decode for a buffer without a header byte.
var ErrEmptyPacket = errors.New("packet: missing header byte")

// Message is a logical message. Content may be arbitrarily long; Split turns it
// into packets.
type Message struct {
	Content   []byte
	IsCommand bool
	IsError   bool
	HasMore   bool
}

// OK is the acknowledgment message. Its content is fixed and it carries no flags.
var OK = Message{Content: []byte("Y")}

// Text creates a message carrying text.
func Text(s string) Message {
	return Message{Content: []byte(s)}
}

// Command creates a command-flagged message.
func Command(code string) Message {
	return Message{Content: []byte(code), IsCommand: true}
}

// Error creates an error-flagged message.
func Error(reason string) Message {
	return Message{Content: []byte(reason), IsError: true}
}

// Text returns the content as a string.
func (m Message) Text() string {
	return string(m.Content)
}

// IsOK reports whether m has the acknowledgment content.
func (m Message) IsOK() bool {
	return len(m.Content) == 1 && m.Content[0] == OK.Content[0]
}

func (m Message) header() byte {
	var h byte
	if m.HasMore {
		h |= flagMore
	}
	if m.IsCommand {
		h |= flagCommand
	}
	if m.IsError {
		h |= flagError
	}
	return h
}

// Encode appends the wire encoding of m to dest.
func Encode(dest []byte, m Message) []byte {
	dest = append(dest, m.header())
	return append(dest, m.Content...)
}

// Decode parses a packet. The returned content is a copy of b.
func Decode(b []byte) (Message, error) {
	if len(b) < HeaderSize {
		return Message{}, ErrEmptyPacket
	}
	h := b[0]
	m := Message{
		Content:   append([]byte{}, b[HeaderSize:]...),
		HasMore:   h&flagMore != 0,
		IsCommand: h&flagCommand != 0,
		IsError:   h&flagError != 0,
	}
	return m, nil
}

// Split fragments m into packets of at most MaxBlockSize content bytes.
// Every fragment carries m's command and error flags. All fragments except the
// last have HasMore set; the last one keeps m.HasMore.
func Split(m Message) []Message {
	if len(m.Content) <= MaxBlockSize {
		return []Message{m}
	}
	n := (len(m.Content) + MaxBlockSize - 1) / MaxBlockSize
	frags := make([]Message, 0, n)
	for off := 0; off < len(m.Content); off += MaxBlockSize {
		end := off + MaxBlockSize
		if end > len(m.Content) {
			end = len(m.Content)
		}
		frags = append(frags, Message{
			Content:   m.Content[off:end],
			IsCommand: m.IsCommand,
			IsError:   m.IsError,
			HasMore:   true,
		})
	}
	frags[len(frags)-1].HasMore = m.HasMore
	return frags
}
