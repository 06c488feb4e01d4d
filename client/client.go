// Package client implements the client side of the file exchange protocol.
package client

import (
	"crypto/sha256"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/SaraCappelletti/ProgettoRetiUDP/filexfer"
	"github.com/SaraCappelletti/ProgettoRetiUDP/packet"
	"github.com/SaraCappelletti/ProgettoRetiUDP/reliable"
	"github.com/ethereum/go-ethereum/log"
)

type Config struct {
	Timeout time.Duration // Receive timeout, defaults to packet.Timeout
	Hash    filexfer.Hash // Digest function, defaults to SHA-256
	DSCP    int           // DiffServ code point of outgoing packets, 0 leaves it unset
}

func (cfg Config) withDefaults() Config {
	if cfg.Timeout == 0 {
		cfg.Timeout = packet.Timeout
	}
	if cfg.Hash == nil {
		cfg.Hash = sha256.New
	}
	return cfg
}

// Client runs commands against a server. Every command uses a fresh socket.
type Client struct {
	addr string
	cfg  Config
}

func New(serverAddr string, cfg Config) *Client {
	return &Client{addr: serverAddr, cfg: cfg.withDefaults()}
}

// Addr returns the server address.
func (c *Client) Addr() string {
	return c.addr
}

// open connects to the server and issues cmd.
func (c *Client) open(cmd string) (*reliable.Channel, func(), error) {
	conn, err := dial(c.addr, c.cfg.Timeout, c.cfg.DSCP)
	if err != nil {
		return nil, nil, err
	}
	logger := log.New("cmd", cmd)
	ch := reliable.NewChannel(conn, logger)
	if err := ch.Send(packet.Command(cmd)); err != nil {
		conn.Close()
		return nil, nil, err
	}
	return ch, func() { conn.Close() }, nil
}

// List returns the names of the files available on the server.
func (c *Client) List() ([]string, error) {
	ch, done, err := c.open(packet.CmdList)
	if err != nil {
		return nil, err
	}
	defer done()

	resp, err := ch.Receive()
	if err != nil {
		return nil, err
	}
	if len(resp.Content) == 0 {
		return []string{}, nil
	}
	return strings.Split(resp.Text(), "\n"), nil
}

// Get downloads the file called name and stores it at out. The output file is
// only created once the transfer has been verified.
func (c *Client) Get(name, out string) (int64, error) {
	ch, done, err := c.open(packet.CmdGet)
	if err != nil {
		return 0, err
	}
	defer done()

	if err := ch.Send(packet.Text(name)); err != nil {
		return 0, err
	}
	n, err := filexfer.ReceiveFile(ch, out, "", c.cfg.Hash)
	if err != nil {
		// Tell the server, so it doesn't wait for an acknowledgement until
		// its timeout.
		if !reliable.IsTransport(err) && !reliable.IsRemote(err) {
			if serr := ch.SendError(err.Error()); serr != nil {
				log.Debug("Could not send error", "err", serr)
			}
		}
		return 0, err
	}
	log.Debug("File received", "name", name, "out", out, "bytes", n)
	return n, nil
}

// Put uploads the file at in under name.
func (c *Client) Put(name, in string) (int64, error) {
	info, err := os.Stat(in)
	if err != nil {
		return 0, fmt.Errorf("File %q does not exist", in)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%q is not a regular file", in)
	}

	ch, done, err := c.open(packet.CmdPut)
	if err != nil {
		return 0, err
	}
	defer done()

	if err := ch.Send(packet.Text(name)); err != nil {
		return 0, err
	}
	n, err := filexfer.SendFile(ch, in, c.cfg.Hash)
	if err != nil {
		return 0, err
	}
	log.Debug("File sent", "name", name, "in", in, "bytes", n)
	return n, nil
}
