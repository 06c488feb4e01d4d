package reliable

import (
	"sync"
	"time"

	"github.com/SaraCappelletti/ProgettoRetiUDP/packet"
)

// PipeEnd is one end of an in-memory packet transport created by Pipe.
type PipeEnd struct {
	in      chan packet.Message
	out     chan packet.Message
	timeout time.Duration

	closeOnce sync.Once
	closed    chan struct{}
	peer      *PipeEnd

	// Filter, if set, is applied to every outgoing packet. Returning false
	// drops the packet. It may modify the message.
	Filter func(m *packet.Message) bool
}

// Pipe creates two connected in-memory transports. Packets sent on one end are
// received on the other, in order. ReceiveOnly fails with TimeoutError after
// timeout.
func Pipe(timeout time.Duration) (*PipeEnd, *PipeEnd) {
	ab := make(chan packet.Message, 64)
	ba := make(chan packet.Message, 64)
	a := &PipeEnd{in: ba, out: ab, timeout: timeout, closed: make(chan struct{})}
	b := &PipeEnd{in: ab, out: ba, timeout: timeout, closed: make(chan struct{})}
	a.peer, b.peer = b, a
	return a, b
}

func (p *PipeEnd) SendOnly(m packet.Message) error {
	m.Content = append([]byte{}, m.Content...)
	if p.Filter != nil && !p.Filter(&m) {
		return nil
	}
	select {
	case p.out <- m:
		return nil
	case <-p.closed:
		return ErrClosed
	case <-p.peer.closed:
		// Nobody is listening anymore. Like UDP, the write still succeeds.
		return nil
	}
}

func (p *PipeEnd) ReceiveOnly() (packet.Message, error) {
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case m := <-p.in:
		return m, nil
	case <-timer.C:
		return packet.Message{}, TimeoutError{After: p.timeout}
	case <-p.closed:
		return packet.Message{}, ErrClosed
	}
}

// Close makes pending and future operations on this end fail with ErrClosed.
func (p *PipeEnd) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}
