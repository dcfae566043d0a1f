//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Simulated TCP listener and stream.
//

package simworld

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"sync"

	"github.com/rbmk-project/simworld/dns"
	"github.com/rbmk-project/simworld/envelope"
)

// connRequest is a pending connection on a listener's backlog.
type connRequest struct {
	pair SocketPair
}

// tcpListenerBinding is a listening TCP port.
type tcpListenerBinding struct {
	// backlog queues pending connections in arrival order.
	backlog chan connRequest

	// done unblocks any pending accept when the port is unbound.
	done chan struct{}

	// laddr is the bound local address.
	laddr netip.AddrPort
}

// accepts reports whether the listener accepts segments addressed
// to the given local address.
func (b *tcpListenerBinding) accepts(addr netip.Addr) bool {
	return b.laddr.Addr().IsUnspecified() || b.laddr.Addr() == addr
}

// listenTCPLocked registers a listening TCP port with the host's
// transport stack, honoring the same rules as bindUDPLocked.
//
// The caller must hold the world's exclusive section.
func (h *Host) listenTCPLocked(laddr netip.AddrPort) (*tcpListenerBinding, error) {
	if !h.supportsLocalAddr(laddr.Addr()) {
		return nil, EADDRNOTAVAIL
	}
	if laddr.Port() == 0 {
		port, err := h.newEphemeralPortLocked(envelope.ProtocolTCP)
		if err != nil {
			return nil, err
		}
		laddr = netip.AddrPortFrom(laddr.Addr(), port)
	}
	if _, found := h.tcpListeners[laddr.Port()]; found {
		return nil, EADDRINUSE
	}
	binding := &tcpListenerBinding{
		backlog: make(chan connRequest, inboxCapacity),
		done:    make(chan struct{}),
		laddr:   laddr,
	}
	h.tcpListeners[laddr.Port()] = binding
	return binding, nil
}

// registerStreamLocked registers an established stream keyed by its
// socket pair.
//
// The caller must hold the world's exclusive section.
func (h *Host) registerStreamLocked(w *World, pair SocketPair) (*TCPStream, error) {
	if _, found := h.tcpStreams[pair]; found {
		return nil, EADDRINUSE
	}
	stream := &TCPStream{
		closeOnce:  sync.Once{},
		done:       make(chan struct{}),
		host:       h,
		inbox:      make(chan *envelope.Envelope, inboxCapacity),
		pair:       pair,
		peerClosed: false,
		readBuf:    bytes.Buffer{},
		readMu:     sync.Mutex{},
		world:      w,
	}
	h.tcpStreams[pair] = stream
	return stream, nil
}

// deliverSegmentLocked routes a stream segment on the destination
// host: established streams match by socket pair, SYN segments fall
// back to a listening port, and anything else is refused with a RST
// segment, which is what a real peer would answer.
//
// The caller must hold the world's exclusive section.
func (w *World) deliverSegmentLocked(dstHost *Host, src, dst netip.AddrPort, env *envelope.Envelope) error {
	pair := SocketPair{Local: dst, Remote: src}
	if stream, found := dstHost.tcpStreams[pair]; found {
		return stream.deliver(env)
	}

	if env.Flags == envelope.FlagSYN {
		if listener, found := dstHost.tcpListeners[dst.Port()]; found && listener.accepts(dst.Addr()) {
			select {
			case listener.backlog <- connRequest{pair: NewSocketPair(dst, src)}:
				return nil
			default:
				// Backlog full: drop the SYN like a congested host.
				return ENOBUFS
			}
		}
	}

	// No matching endpoint: reset the sender, unless the segment is
	// itself a RST, which would bounce forever.
	if env.Flags&envelope.FlagRST == 0 {
		w.sendLocked(dstHost, dst, src, envelope.NewSegment(envelope.FlagRST, nil))
	}
	return nil
}

// TCPListener is a simulated TCP listener bound on a host.
//
// The zero value is invalid; construct using [ListenTCP].
type TCPListener struct {
	// binding is the registration with the host's transport stack.
	binding *tcpListenerBinding

	// closeOnce ensures teardown runs exactly once.
	closeOnce sync.Once

	// host is the owning host.
	host *Host

	// localAddr is the resolved bound address.
	localAddr netip.AddrPort

	// world is the simulation the listener belongs to.
	world *World
}

// ListenTCP creates a simulated TCP listener bound to addr on the
// host that ctx is bound to through [*World.WithHost]. It honors the
// same resolve/bind/teardown contract as [BindUDP].
func ListenTCP(ctx context.Context, addr dns.ToSockAddr) (*TCPListener, error) {
	var listener *TCPListener
	err := Current(ctx, func(a *Access) error {
		laddr := a.Registry().ResolveSockAddr(addr)
		binding, err := a.Host().listenTCPLocked(laddr)
		if err != nil {
			return err
		}
		a.world.emit("tcpListen",
			slog.String("host", a.Host().Name()),
			slog.String("laddr", binding.laddr.String()))
		listener = &TCPListener{
			binding:   binding,
			closeOnce: sync.Once{},
			host:      a.Host(),
			localAddr: binding.laddr,
			world:     a.world,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return listener, nil
}

// LocalAddr returns the bound local address.
func (l *TCPListener) LocalAddr() netip.AddrPort {
	return l.localAddr
}

// Accept blocks until a connection arrives, completes the handshake
// by answering SYN|ACK, and returns the established stream.
func (l *TCPListener) Accept(ctx context.Context) (*TCPStream, error) {
	for {
		var req connRequest
		select {
		case req = <-l.binding.backlog:
		case <-l.binding.done:
			return nil, net.ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		var stream *TCPStream
		err := l.world.withLocked(func() error {
			var err error
			stream, err = l.host.registerStreamLocked(l.world, req.pair)
			if err != nil {
				return err
			}
			return l.world.sendLocked(l.host, req.pair.Local, req.pair.Remote,
				envelope.NewSegment(envelope.FlagSYN|envelope.FlagACK, nil))
		})
		if err != nil {
			// Stale or duplicate connection request.
			continue
		}
		return stream, nil
	}
}

// Close unregisters the listener's local address. It runs exactly
// once and is a safe no-op after the simulation has been torn down.
func (l *TCPListener) Close() error {
	l.closeOnce.Do(func() {
		l.world.mu.Lock()
		defer l.world.mu.Unlock()
		if l.world.closed {
			return
		}
		if _, found := l.host.tcpListeners[l.localAddr.Port()]; found {
			delete(l.host.tcpListeners, l.localAddr.Port())
			close(l.binding.done)
		}
	})
	return nil
}

// TCPStream is an established simulated TCP stream.
//
// The zero value is invalid; streams are returned by [DialTCP] and
// [*TCPListener.Accept].
type TCPStream struct {
	// closeOnce ensures teardown runs exactly once.
	closeOnce sync.Once

	// done unblocks pending reads when the stream closes.
	done chan struct{}

	// host is the owning host.
	host *Host

	// inbox queues inbound segments in enqueue order.
	inbox chan *envelope.Envelope

	// pair identifies the stream for routing.
	pair SocketPair

	// peerClosed records that a FIN was consumed.
	peerClosed bool

	// readBuf holds bytes not yet consumed by Read.
	readBuf bytes.Buffer

	// readMu admits one reader at a time.
	readMu sync.Mutex

	// world is the simulation the stream belongs to.
	world *World
}

// DialTCP connects to target from the host that ctx is bound to,
// using an ephemeral local port. RST in response to the handshake
// reports [ECONNREFUSED].
func DialTCP(ctx context.Context, target dns.ToSockAddr) (*TCPStream, error) {
	var stream *TCPStream
	err := Current(ctx, func(a *Access) error {
		dst := a.Registry().ResolveSockAddr(target)
		if dst.Addr().IsUnspecified() || dst.Port() == 0 {
			return EHOSTUNREACH
		}
		port, err := a.Host().newEphemeralPortLocked(envelope.ProtocolTCP)
		if err != nil {
			return err
		}
		laddr := netip.AddrPortFrom(a.Host().Addr(), port)
		stream, err = a.Host().registerStreamLocked(a.world, NewSocketPair(laddr, dst))
		if err != nil {
			return err
		}
		return a.world.sendLocked(a.Host(), laddr, dst, envelope.NewSegment(envelope.FlagSYN, nil))
	})
	if err != nil {
		return nil, err
	}

	// Await the answer to the SYN outside the exclusive section.
	select {
	case env := <-stream.inbox:
		if env.Flags&envelope.FlagRST != 0 {
			stream.Close()
			return nil, ECONNREFUSED
		}
		if env.Flags != envelope.FlagSYN|envelope.FlagACK {
			stream.Close()
			return nil, ECONNABORTED
		}
		return stream, nil

	case <-stream.done:
		return nil, net.ErrClosed

	case <-ctx.Done():
		stream.Close()
		return nil, ctx.Err()
	}
}

// LocalAddr returns the local endpoint of the stream.
func (s *TCPStream) LocalAddr() netip.AddrPort {
	return s.pair.Local
}

// RemoteAddr returns the remote endpoint of the stream.
func (s *TCPStream) RemoteAddr() netip.AddrPort {
	return s.pair.Remote
}

// deliver queues an inbound segment for the stream.
func (s *TCPStream) deliver(env *envelope.Envelope) error {
	select {
	case s.inbox <- env:
		return nil
	case <-s.done:
		return net.ErrClosed
	default:
		return ENOBUFS
	}
}

// Read reads bytes from the stream in delivery order. A FIN from the
// peer reports [io.EOF] once buffered data is consumed; a RST reports
// [ECONNRESET].
func (s *TCPStream) Read(buf []byte) (int, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()
	for {
		if s.readBuf.Len() > 0 {
			return s.readBuf.Read(buf)
		}
		if s.peerClosed {
			return 0, io.EOF
		}
		select {
		case env := <-s.inbox:
			if env.Flags&envelope.FlagRST != 0 {
				return 0, ECONNRESET
			}
			if env.Flags&envelope.FlagFIN != 0 {
				s.peerClosed = true
				continue
			}
			s.readBuf.Write(env.Payload)

		case <-s.done:
			return 0, net.ErrClosed
		}
	}
}

// Write sends data to the peer as a stream segment and reports the
// full length on success.
func (s *TCPStream) Write(data []byte) (int, error) {
	err := s.world.withLocked(func() error {
		if _, found := s.host.tcpStreams[s.pair]; !found {
			return net.ErrClosed
		}
		return s.world.sendLocked(s.host, s.pair.Local, s.pair.Remote,
			envelope.NewSegment(0, data))
	})
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// Close sends a FIN to the peer and unregisters the stream's socket
// pair. It runs exactly once and is a safe no-op after the simulation
// has been torn down.
func (s *TCPStream) Close() error {
	s.closeOnce.Do(func() {
		s.world.mu.Lock()
		defer s.world.mu.Unlock()
		if s.world.closed {
			return
		}
		if _, found := s.host.tcpStreams[s.pair]; !found {
			return
		}
		delete(s.host.tcpStreams, s.pair)
		close(s.done)
		s.world.sendLocked(s.host, s.pair.Local, s.pair.Remote,
			envelope.NewSegment(envelope.FlagFIN, nil))
		s.world.emit("tcpClose", slog.String("pair", s.pair.String()))
	})
	return nil
}
