package client

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/SaraCappelletti/ProgettoRetiUDP/packet"
	"github.com/SaraCappelletti/ProgettoRetiUDP/reliable"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/net/ipv4"
)

// conn is a UDP socket connected to the server. It implements reliable.Unicast.
type conn struct {
	c       *net.UDPConn
	timeout time.Duration
	buf     []byte
}

func dial(addr string, timeout time.Duration, dscp int) (*conn, error) {
	raddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, err
	}
	c, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		return nil, err
	}
	if dscp != 0 {
		if err := ipv4.NewConn(c).SetTOS(dscp << 2); err != nil {
			c.Close()
			return nil, fmt.Errorf("can't set DSCP %d: %w", dscp, err)
		}
	}
	log.Debug("Connected to server", "laddr", c.LocalAddr(), "raddr", raddr)
	return &conn{c: c, timeout: timeout, buf: make([]byte, packet.MaxRecvSize)}, nil
}

func (c *conn) SendOnly(m packet.Message) error {
	_, err := c.c.Write(packet.Encode(make([]byte, 0, packet.HeaderSize+len(m.Content)), m))
	return err
}

// ReceiveOnly waits for the next packet from the server. Empty packets are
// skipped.
func (c *conn) ReceiveOnly() (packet.Message, error) {
	deadline := time.Now().Add(c.timeout)
	for {
		if err := c.c.SetReadDeadline(deadline); err != nil {
			return packet.Message{}, err
		}
		n, err := c.c.Read(c.buf)
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return packet.Message{}, reliable.TimeoutError{After: c.timeout}
		} else if err != nil {
			return packet.Message{}, err
		}
		m, err := packet.Decode(c.buf[:n])
		if err != nil {
			log.Trace("Ignoring invalid packet", "err", err)
			continue
		}
		return m, nil
	}
}

func (c *conn) Close() error {
	return c.c.Close()
}
