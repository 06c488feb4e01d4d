// Package reliable implements stop-and-wait delivery of logical messages over
// an unreliable packet transport.
//
// Every packet sent by Channel.Send is answered by an acknowledgment before the
// next one goes out, so at most one fragment is ever in flight. There is no
// retransmission: a lost packet surfaces as a timeout.
package reliable

import (
	"github.com/SaraCappelletti/ProgettoRetiUDP/packet"
	"github.com/ethereum/go-ethereum/log"
)

// Unicast is the transport a Channel runs on. It is implemented by the client
// socket and by server-side sessions.
type Unicast interface {
	// SendOnly transmits one packet without waiting for anything.
	SendOnly(m packet.Message) error
	// ReceiveOnly blocks until a packet arrives. It fails with TimeoutError
	// when nothing arrives in time.
	ReceiveOnly() (packet.Message, error)
}

// Channel sends and receives logical messages over a Unicast transport.
type Channel struct {
	conn Unicast
	log  log.Logger
}

// NewChannel creates a channel. If logger is nil, the root logger is used.
func NewChannel(conn Unicast, logger log.Logger) *Channel {
	if logger == nil {
		logger = log.Root()
	}
	return &Channel{conn: conn, log: logger}
}

// Send transmits m, fragmenting it as needed. Each fragment must be acknowledged
// before the next one is sent.
func (c *Channel) Send(m packet.Message) error {
	frags := packet.Split(m)
	for i, f := range frags {
		if err := c.conn.SendOnly(f); err != nil {
			return err
		}
		if err := c.awaitAck(); err != nil {
			return err
		}
		c.log.Trace("Fragment acknowledged", "index", i, "of", len(frags), "size", len(f.Content), "more", f.HasMore)
	}
	return nil
}

func (c *Channel) awaitAck() error {
	ack, err := c.conn.ReceiveOnly()
	if err != nil {
		return err
	}
	if ack.IsError {
		return RemoteError{Reason: ack.Text()}
	}
	if !ack.IsOK() {
		return ProtocolError{Msg: "Unexpected answer"}
	}
	return nil
}

// Receive reads one logical message. Fragments are acknowledged as they arrive
// and concatenated in order until a fragment without the MORE flag. The flags of
// the returned message are those of that final fragment.
func (c *Channel) Receive() (packet.Message, error) {
	var msg packet.Message
	content := make([]byte, 0, packet.MaxBlockSize)
	for {
		frag, err := c.ReceiveBlock()
		if err != nil {
			return packet.Message{}, err
		}
		content = append(content, frag.Content...)
		msg = frag
		if !frag.HasMore {
			break
		}
	}
	msg.Content = content
	return msg, nil
}

// ReceiveBlock reads and acknowledges a single packet. An ERROR packet is not
// acknowledged and is returned as RemoteError.
func (c *Channel) ReceiveBlock() (packet.Message, error) {
	m, err := c.conn.ReceiveOnly()
	if err != nil {
		return packet.Message{}, err
	}
	if m.IsError {
		return packet.Message{}, RemoteError{Reason: m.Text()}
	}
	if err := c.conn.SendOnly(packet.OK); err != nil {
		return packet.Message{}, err
	}
	return m, nil
}

// SendError tells the peer that the current operation failed. The error packet
// is not acknowledged, and reasons longer than one packet are truncated.
func (c *Channel) SendError(reason string) error {
	m := packet.Error(reason)
	if len(m.Content) > packet.MaxBlockSize {
		m.Content = m.Content[:packet.MaxBlockSize]
	}
	return c.conn.SendOnly(m)
}
