// Package host sets up the server side of the protocol on a UDP socket.
package host

import (
	"fmt"
	"net"
	"time"

	"github.com/SaraCappelletti/ProgettoRetiUDP/filexfer"
	"github.com/SaraCappelletti/ProgettoRetiUDP/fileserver"
	"github.com/SaraCappelletti/ProgettoRetiUDP/reliable"
	"github.com/SaraCappelletti/ProgettoRetiUDP/session"
	"github.com/SaraCappelletti/ProgettoRetiUDP/sharedsocket"
	"github.com/ethereum/go-ethereum/common/mclock"
	ethlog "github.com/ethereum/go-ethereum/log"
	"golang.org/x/net/ipv4"
)

// Config is the configuration of Host.
type Config struct {
	ListenAddr string
	Root       string        // Storage directory
	Timeout    time.Duration // Session receive timeout
	Hash       filexfer.Hash
	DSCP       int          // DiffServ code point of outgoing packets, 0 leaves it unset
	Clock      mclock.Clock // For testing
}

var ConfigForTesting = Config{
	ListenAddr: "127.0.0.1:0",
	Timeout:    time.Second,
}

// Host is a running file server.
type Host struct {
	Socket   *sharedsocket.Conn
	Server   *fileserver.Server
	Sessions *session.Store
}

// Listen creates a UDP listener on the configured address, and starts serving
// commands on it.
func Listen(cfg Config) (*Host, error) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":0"
	}

	pc, err := net.ListenPacket("udp4", cfg.ListenAddr)
	if err != nil {
		return nil, err
	}
	if cfg.DSCP != 0 {
		if err := ipv4.NewPacketConn(pc).SetTOS(cfg.DSCP << 2); err != nil {
			pc.Close()
			return nil, fmt.Errorf("can't set DSCP %d: %w", cfg.DSCP, err)
		}
	}
	conn := sharedsocket.NewConn(pc.(*net.UDPConn))

	srv := fileserver.NewServer(fileserver.Config{Root: cfg.Root, Hash: cfg.Hash})
	serve := func(s *session.Session) error {
		return srv.Serve(reliable.NewChannel(s, s.Log()), s.Log())
	}
	sessions := session.NewStore(conn, serve, session.Config{Timeout: cfg.Timeout, Clock: cfg.Clock})
	conn.AddHandler(sessions)

	ethlog.Info("Server listening", "addr", conn.LocalAddr(), "root", srv.Storage().Root())
	return &Host{Socket: conn, Server: srv, Sessions: sessions}, nil
}

// LocalAddr returns the address the server is listening on.
func (h *Host) LocalAddr() *net.UDPAddr {
	return h.Socket.LocalAddr().(*net.UDPAddr)
}

// Close stops the server. It waits for running sessions to end.
func (h *Host) Close() error {
	err := h.Socket.Close()
	h.Sessions.Close()
	return err
}
