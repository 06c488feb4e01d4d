// Package fileserver implements the server side of the file exchange protocol:
// the LIST, GET and PUT commands on a flat storage directory.
package fileserver

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/SaraCappelletti/ProgettoRetiUDP/filexfer"
	"github.com/SaraCappelletti/ProgettoRetiUDP/packet"
	"github.com/SaraCappelletti/ProgettoRetiUDP/reliable"
	"github.com/ethereum/go-ethereum/log"
)

type Config struct {
	Root string        // Storage directory, defaults to "files"
	Hash filexfer.Hash // Digest function, defaults to SHA-256
}

func (cfg Config) withDefaults() Config {
	if cfg.Root == "" {
		cfg.Root = "files"
	}
	if cfg.Hash == nil {
		cfg.Hash = sha256.New
	}
	return cfg
}

// Error is a failure of a command that is reported to the client.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return e.Reason }

func errInvalidName(name string) error {
	return &Error{fmt.Sprintf("Invalid filename %q.", name)}
}

func errNotExist(name string) error {
	return &Error{fmt.Sprintf("File %q does not exist", name)}
}

// Server handles commands. It is safe to run Serve concurrently for many sessions.
type Server struct {
	cfg     Config
	storage *Storage
}

func NewServer(cfg Config) *Server {
	cfg = cfg.withDefaults()
	return &Server{cfg: cfg, storage: NewStorage(cfg.Root)}
}

// Storage returns the storage the server operates on.
func (s *Server) Storage() *Storage {
	return s.storage
}

// Serve runs one command exchange on ch.
//
// Failures of the command are reported to the peer as an ERROR message and
// returned. Transport failures and errors sent by the peer end the exchange
// without a reply.
func (s *Server) Serve(ch *reliable.Channel, logger log.Logger) (err error) {
	if logger == nil {
		logger = log.Root()
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Command handler panicked", "err", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("Internal error: %v", r)
			s.reply(ch, logger, err)
		}
	}()

	err = s.handle(ch, logger)
	if err != nil && !reliable.IsTransport(err) && !reliable.IsRemote(err) {
		s.reply(ch, logger, err)
	}
	return err
}

func (s *Server) reply(ch *reliable.Channel, logger log.Logger, err error) {
	reason := errorReason(err)
	logger.Info("Sent ERROR", "reason", reason)
	if serr := ch.SendError(reason); serr != nil {
		logger.Debug("Could not send error", "err", serr)
	}
}

// errorReason returns the text shown to the client for err.
func errorReason(err error) string {
	var (
		appErr   *Error
		protoErr reliable.ProtocolError
	)
	switch {
	case errors.As(err, &appErr):
		return appErr.Reason
	case errors.As(err, &protoErr), reliable.IsIntegrity(err):
		return err.Error()
	case strings.HasPrefix(err.Error(), "Internal error: "):
		return err.Error()
	default:
		return "Internal error: " + err.Error()
	}
}

func (s *Server) handle(ch *reliable.Channel, logger log.Logger) error {
	cmd, err := ch.Receive()
	if err != nil {
		return err
	}
	switch cmd.Text() {
	case packet.CmdList:
		return s.handleList(ch, logger)
	case packet.CmdGet:
		return s.handleGet(ch, logger)
	case packet.CmdPut:
		return s.handlePut(ch, logger)
	default:
		return &Error{fmt.Sprintf("Unknown command %q", cmd.Text())}
	}
}

func (s *Server) handleList(ch *reliable.Channel, logger log.Logger) error {
	names, err := s.storage.List()
	if err != nil {
		return err
	}
	if err := ch.Send(packet.Text(strings.Join(names, "\n"))); err != nil {
		return err
	}
	logger.Info("File list sent", "files", len(names))
	return nil
}

func (s *Server) handleGet(ch *reliable.Channel, logger log.Logger) error {
	msg, err := ch.Receive()
	if err != nil {
		return err
	}
	name := msg.Text()
	path, err := s.storage.Open(name)
	if err != nil {
		return err
	}
	n, err := filexfer.SendFile(ch, path, s.cfg.Hash)
	if err != nil {
		return err
	}
	logger.Info("File sent", "name", name, "bytes", n)
	return nil
}

func (s *Server) handlePut(ch *reliable.Channel, logger log.Logger) error {
	msg, err := ch.Receive()
	if err != nil {
		return err
	}
	name := msg.Text()
	dest, staging, err := s.storage.Create(name)
	if err != nil {
		return err
	}
	n, err := filexfer.ReceiveFile(ch, dest, staging, s.cfg.Hash)
	if err != nil {
		return err
	}
	logger.Info("File received", "name", name, "bytes", n)
	return nil
}
