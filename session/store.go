package session

import (
	"net/netip"
	"sync"
	"time"

	"github.com/SaraCappelletti/ProgettoRetiUDP/packet"
	"github.com/ethereum/go-ethereum/common/mclock"
	ethlog "github.com/ethereum/go-ethereum/log"
)

type Config struct {
	Timeout time.Duration // Receive timeout of sessions, defaults to packet.Timeout
	Clock   mclock.Clock  // Defaults to the system clock
}

func (cfg Config) withDefaults() Config {
	if cfg.Timeout == 0 {
		cfg.Timeout = packet.Timeout
	}
	if cfg.Clock == nil {
		cfg.Clock = mclock.System{}
	}
	return cfg
}

// Writer sends packets to peers.
type Writer interface {
	WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error)
}

// Handler runs the exchange of a session. The session ends when it returns.
type Handler func(s *Session) error

// Store keeps active sessions, one per peer address.
//
// A command packet always starts a new session for its sender. If the sender
// already has one, the old session is closed and replaced. Other packets are
// queued on the sender's session.
type Store struct {
	cfg     Config
	out     Writer
	handler Handler
	wg      sync.WaitGroup

	mu       sync.Mutex
	sessions map[netip.AddrPort]*Session
	closed   bool
}

func NewStore(out Writer, handler Handler, cfg Config) *Store {
	return &Store{
		cfg:      cfg.withDefaults(),
		out:      out,
		handler:  handler,
		sessions: make(map[netip.AddrPort]*Session),
	}
}

// HandlePacket routes a packet to its session. It never blocks.
func (st *Store) HandlePacket(b []byte, from netip.AddrPort) bool {
	m, err := packet.Decode(b)
	if err != nil {
		ethlog.Trace("Dropping invalid packet", "from", from, "err", err)
		return false
	}

	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		return false
	}
	if m.IsCommand {
		st.start(from, m)
		st.mu.Unlock()
		return true
	}
	s := st.sessions[from]
	st.mu.Unlock()

	if s == nil {
		ethlog.Debug("Packet from peer without session", "peer", from)
		st.reject(from, "No command specified")
		return true
	}
	s.queue.push(m)
	return true
}

// start creates a session for addr with cmd as its first packet.
// The caller must hold st.mu.
func (st *Store) start(addr netip.AddrPort, cmd packet.Message) {
	if old := st.sessions[addr]; old != nil {
		old.log.Debug("Session replaced by new command")
		old.queue.close()
	}
	s := newSession(addr, st.out, st.cfg)
	s.queue.push(cmd)
	st.sessions[addr] = s
	st.wg.Add(1)
	go st.run(s)
}

func (st *Store) run(s *Session) {
	defer st.wg.Done()
	defer st.remove(s)

	s.log.Debug("Session started")
	err := st.handler(s)
	elapsed := time.Duration(st.cfg.Clock.Now() - s.created)
	if err != nil {
		s.log.Debug("Session ended", "elapsed", elapsed, "err", err)
	} else {
		s.log.Debug("Session ended", "elapsed", elapsed)
	}
}

// remove deletes s, unless it has already been replaced.
func (st *Store) remove(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.sessions[s.addr] == s {
		delete(st.sessions, s.addr)
	}
	s.queue.close()
}

// reject answers a stray packet with an error message.
func (st *Store) reject(addr netip.AddrPort, reason string) {
	buf := packet.Encode(nil, packet.Error(reason))
	if _, err := st.out.WriteToUDPAddrPort(buf, addr); err != nil {
		ethlog.Debug("Could not send error", "peer", addr, "err", err)
	}
}

// Get returns the active session of a peer, or nil.
func (st *Store) Get(addr netip.AddrPort) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.sessions[addr]
}

// Len returns the number of active sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Close ends all sessions and waits for their handlers to return.
// Packets arriving after Close are not accepted.
func (st *Store) Close() {
	st.mu.Lock()
	st.closed = true
	for _, s := range st.sessions {
		s.queue.close()
	}
	st.mu.Unlock()

	st.wg.Wait()
}
