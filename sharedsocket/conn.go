package sharedsocket

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SaraCappelletti/ProgettoRetiUDP/packet"
	"github.com/ethereum/go-ethereum/log"
)

// Handler is a packet handler.
//
// The packet buffer is only valid during the call. Handlers must not block: they
// run on the read loop, and a slow handler stalls all peers.
type Handler interface {
	HandlePacket(packet []byte, from netip.AddrPort) bool
}

type handlerFunc struct {
	f func(packet []byte, from netip.AddrPort) bool
}

func (h *handlerFunc) HandlePacket(packet []byte, from netip.AddrPort) bool {
	return h.f(packet, from)
}

// HandlerFunc creates a handler that calls f.
func HandlerFunc(f func(packet []byte, from netip.AddrPort) bool) Handler {
	return &handlerFunc{f}
}

type UDPConn interface {
	LocalAddr() net.Addr
	Close() error
	ReadFromUDPAddrPort(b []byte) (n int, addr netip.AddrPort, err error)
	WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error)
}

// Conn owns a UDP socket and dispatches incoming packets to handlers.
//
// A single goroutine reads from the socket. Each packet is offered to the
// handlers in the order they were added, until one of them accepts it. Packets
// nobody accepts are dropped.
//
// Conn can be used to send outgoing packets from any goroutine.
type Conn struct {
	conn UDPConn

	wg       sync.WaitGroup
	quit     chan struct{}
	mutex    sync.Mutex // protects writes to the handler list
	handlers atomic.Pointer[handlerList]
}

// NewConn creates a new connection and starts reading from p.
func NewConn(p UDPConn) *Conn {
	c := &Conn{
		conn: p,
		quit: make(chan struct{}),
	}
	c.handlers.Store(new(handlerList))
	c.wg.Add(1)
	go c.readLoop()
	return c
}

// Listen creates a UDP listener and wraps it with a Conn.
func Listen(network, address string) (*Conn, error) {
	pc, err := net.ListenPacket(network, address)
	if err != nil {
		return nil, err
	}
	udpc, ok := pc.(UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("ListenPacket returned a non-UDP connection (type %T)", pc)
	}
	return NewConn(udpc), nil
}

// Close terminates the connection.
// This also closes the underlying connection.
func (c *Conn) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.quit == nil {
		return nil
	}
	close(c.quit)
	err := c.conn.Close()
	c.wg.Wait()
	c.quit = nil
	return err
}

// WriteToUDPAddrPort writes a packet with payload b to addr. This is a direct
// write to the underlying connection.
func (c *Conn) WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error) {
	return c.conn.WriteToUDPAddrPort(b, addr)
}

// LocalAddr returns the local network address of the socket, if known.
func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// AddHandler defines a new handler for incoming packets.
// The order in which handlers are added matters. Handlers will be called in the
// order they were added.
func (c *Conn) AddHandler(h Handler) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	l := c.handlers.Load()
	c.handlers.Store(l.append(h))
}

// RemoveHandler removes a handler.
func (c *Conn) RemoveHandler(h Handler) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	l := c.handlers.Load()
	c.handlers.Store(l.remove(h))
}

func (c *Conn) readLoop() {
	defer c.wg.Done()

	buf := make([]byte, packet.MaxRecvSize)
recv:
	for {
		n, addr, err := c.conn.ReadFromUDPAddrPort(buf)
		if errors.Is(err, net.ErrClosed) {
			return
		} else if err != nil {
			// Nothing can be done about the errors here. To avoid
			// a busy loop, it's best to sleep for little bit before continuing.
			log.Warn("UDP read error", "err", err)
			select {
			case <-time.After(100 * time.Millisecond):
				continue
			case <-c.quit:
				return
			}
		}
		// Peers on an IPv4 address may show up as IPv4-mapped IPv6 addresses.
		addr = netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port())

		l := c.handlers.Load()
		for _, h := range l.hs {
			if h.HandlePacket(buf[:n], addr) {
				continue recv
			}
		}
		log.Trace("Dropped unhandled packet", "from", addr, "size", n)
	}
}

// handlerList keeps the list of packet handlers. This is implemented as a
// copy-on-write structure because the read loop accesses it without locking.
type handlerList struct {
	hs []Handler
}

func (l *handlerList) append(h Handler) *handlerList {
	newlist := make([]Handler, 0, len(l.hs)+1)
	newlist = append(newlist, l.hs...)
	newlist = append(newlist, h)
	return &handlerList{newlist}
}

func (l *handlerList) remove(h Handler) *handlerList {
	for i := range l.hs {
		if l.hs[i] == h {
			return l.removeIndex(i)
		}
	}
	return l
}

func (l *handlerList) removeIndex(i int) *handlerList {
	newlist := make([]Handler, 0, len(l.hs)-1)
	newlist = append(newlist, l.hs[:i]...)
	newlist = append(newlist, l.hs[i+1:]...)
	return &handlerList{newlist}
}
