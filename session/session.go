// Package session demultiplexes the packets arriving on a shared server socket
// into per-peer sessions.
package session

import (
	"net/netip"
	"sync"
	"time"

	"github.com/SaraCappelletti/ProgettoRetiUDP/packet"
	"github.com/SaraCappelletti/ProgettoRetiUDP/reliable"
	"github.com/ethereum/go-ethereum/common/mclock"
	ethlog "github.com/ethereum/go-ethereum/log"
)

// Session is the exchange with a single peer. It implements reliable.Unicast.
type Session struct {
	addr    netip.AddrPort
	out     Writer
	queue   *queue
	timeout time.Duration
	created mclock.AbsTime
	log     ethlog.Logger
}

func newSession(addr netip.AddrPort, out Writer, cfg Config) *Session {
	return &Session{
		addr:    addr,
		out:     out,
		queue:   newQueue(cfg.Clock),
		timeout: cfg.Timeout,
		created: cfg.Clock.Now(),
		log:     ethlog.New("peer", addr),
	}
}

// Addr returns the peer address.
func (s *Session) Addr() netip.AddrPort {
	return s.addr
}

// Log returns the session logger.
func (s *Session) Log() ethlog.Logger {
	return s.log
}

// SendOnly writes m to the peer.
func (s *Session) SendOnly(m packet.Message) error {
	buf := packet.Encode(make([]byte, 0, packet.HeaderSize+len(m.Content)), m)
	_, err := s.out.WriteToUDPAddrPort(buf, s.addr)
	return err
}

// ReceiveOnly returns the next queued packet of the peer. It fails with
// reliable.TimeoutError if nothing arrives within the session timeout, and with
// reliable.ErrClosed once the session has been closed or replaced.
func (s *Session) ReceiveOnly() (packet.Message, error) {
	return s.queue.pop(s.timeout)
}

// queue is an unbounded FIFO of received messages. Pushing never blocks, so the
// socket read loop cannot be held up by a slow session. It supports a single
// consumer.
type queue struct {
	clock  mclock.Clock
	notify chan struct{}

	mu     sync.Mutex
	items  []packet.Message
	closed bool
}

func newQueue(clock mclock.Clock) *queue {
	return &queue{clock: clock, notify: make(chan struct{}, 1)}
}

func (q *queue) push(m packet.Message) {
	q.mu.Lock()
	if !q.closed {
		q.items = append(q.items, m)
	}
	q.mu.Unlock()
	q.wake()
}

func (q *queue) close() {
	q.mu.Lock()
	q.closed = true
	q.items = nil
	q.mu.Unlock()
	q.wake()
}

func (q *queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *queue) pop(timeout time.Duration) (packet.Message, error) {
	var timer mclock.ChanTimer
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return packet.Message{}, reliable.ErrClosed
		}
		if len(q.items) > 0 {
			m := q.items[0]
			q.items[0] = packet.Message{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return m, nil
		}
		q.mu.Unlock()

		if timer == nil {
			timer = q.clock.NewTimer(timeout)
			defer timer.Stop()
		}
		select {
		case <-q.notify:
		case <-timer.C():
			return packet.Message{}, reliable.TimeoutError{After: timeout}
		}
	}
}
