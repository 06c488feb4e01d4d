package reliable

import (
	"errors"
	"fmt"
	"net"
	"time"
)

var (
	// ErrClosed is returned when the underlying queue or socket was closed.
	ErrClosed = net.ErrClosed
)

// TimeoutError is returned when no packet arrives within the receive timeout.
type TimeoutError struct {
	After time.Duration
}

func (e TimeoutError) Timeout() bool   { return true }
func (e TimeoutError) Temporary() bool { return false }
func (e TimeoutError) Error() string {
	return fmt.Sprintf("timeout of %v expired", e.After)
}

// ProtocolError is returned when the peer violates the protocol, e.g. by
// answering a fragment with something other than an acknowledgment.
type ProtocolError struct {
	Msg string
}

func (e ProtocolError) Error() string { return e.Msg }

// IntegrityError is returned when the digest of a transferred file does not match.
type IntegrityError struct{}

func (e IntegrityError) Error() string { return "Hash mismatch. Please try again!" }

// RemoteError is returned when the peer sent an ERROR message. Reason is the
// text of that message.
type RemoteError struct {
	Reason string
}

func (e RemoteError) Error() string { return e.Reason }

func IsTimeout(err error) bool {
	if errors.As(err, &TimeoutError{}) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsTransport reports whether err means the transport itself is gone or silent.
// Such errors end a session without any reply to the peer.
func IsTransport(err error) bool {
	return IsTimeout(err) || errors.Is(err, ErrClosed)
}

func IsRemote(err error) bool {
	return errors.As(err, &RemoteError{})
}

func IsIntegrity(err error) bool {
	return errors.As(err, &IntegrityError{})
}
