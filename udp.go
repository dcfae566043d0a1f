//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Simulated UDP socket.
//

package simworld

import (
	"context"
	"log/slog"
	"net"
	"net/netip"
	"sync"

	"github.com/rbmk-project/simworld/dns"
	"github.com/rbmk-project/simworld/envelope"
)

// UDPSocket is a simulated UDP socket bound on a host.
//
// The zero value is invalid; construct using [BindUDP].
type UDPSocket struct {
	// binding is the registration with the host's transport stack.
	// The socket exclusively owns the receiving side of its inbox.
	binding *udpBinding

	// closeOnce ensures teardown runs exactly once.
	closeOnce sync.Once

	// host is the owning host.
	host *Host

	// localAddr is the resolved bound address, immutable after bind.
	localAddr netip.AddrPort

	// recvMu admits one draining receiver at a time.
	recvMu sync.Mutex

	// world is the simulation the socket belongs to.
	world *World
}

// BindUDP creates a simulated UDP socket bound to addr on the host
// that ctx is bound to through [*World.WithHost].
//
// The address is resolved through the active simulation's name
// registry. Binding to the IPv4/IPv6 unspecified address, to
// loopback, or to the host's own address is supported; binding to
// another concrete routable address fails with [EADDRNOTAVAIL].
// Binding port zero assigns an ephemeral port.
func BindUDP(ctx context.Context, addr dns.ToSockAddr) (*UDPSocket, error) {
	var sock *UDPSocket
	err := Current(ctx, func(a *Access) error {
		laddr := a.Registry().ResolveSockAddr(addr)
		binding, err := a.Host().bindUDPLocked(laddr)
		if err != nil {
			return err
		}
		a.world.emit("udpBind",
			slog.String("host", a.Host().Name()),
			slog.String("laddr", binding.laddr.String()))
		sock = &UDPSocket{
			binding:   binding,
			closeOnce: sync.Once{},
			host:      a.Host(),
			localAddr: binding.laddr,
			recvMu:    sync.Mutex{},
			world:     a.world,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sock, nil
}

// LocalAddr returns the bound local address.
func (s *UDPSocket) LocalAddr() netip.AddrPort {
	return s.localAddr
}

// SendTo sends payload to target as a single datagram. On success it
// returns the full payload length: there are no partial datagram
// sends.
//
// The target is resolved through the active simulation's name
// registry. When the socket is bound to an unspecified address, the
// owning host's address is used as the source, preserving the bound
// port.
func (s *UDPSocket) SendTo(ctx context.Context, payload []byte, target dns.ToSockAddr) (int, error) {
	err := Current(ctx, func(a *Access) error {
		dst := a.Registry().ResolveSockAddr(target)
		src := s.localAddr
		if src.Addr().IsUnspecified() {
			src = netip.AddrPortFrom(a.Host().Addr(), src.Port())
		}
		return a.world.sendLocked(a.Host(), src, dst, envelope.NewDatagram(payload))
	})
	if err != nil {
		return 0, err
	}
	return len(payload), nil
}

// RecvFrom blocks until a datagram arrives, then copies at most
// min(len(buf), payload length) bytes into buf and returns the
// number of bytes copied along with the origin address. A datagram
// longer than buf is silently truncated.
//
// Only one receiver drains the socket at a time: concurrent calls
// serialize. Cancelling ctx unblocks the call and leaves the inbound
// queue unchanged. A closed socket reports [net.ErrClosed].
func (s *UDPSocket) RecvFrom(ctx context.Context, buf []byte) (int, netip.AddrPort, error) {
	s.recvMu.Lock()
	defer s.recvMu.Unlock()
	select {
	case dgram := <-s.binding.inbox:
		count := copy(buf, dgram.env.Payload)
		return count, dgram.from, nil

	case <-s.binding.done:
		return 0, netip.AddrPort{}, net.ErrClosed

	case <-ctx.Done():
		return 0, netip.AddrPort{}, ctx.Err()
	}
}

// Close unregisters the socket's local address from the owning
// host's transport stack. It runs exactly once, unblocks pending
// receives, and is a safe no-op after the simulation itself has
// been torn down.
func (s *UDPSocket) Close() error {
	s.closeOnce.Do(func() {
		s.world.mu.Lock()
		defer s.world.mu.Unlock()
		if s.world.closed {
			return
		}
		s.host.unbindUDPLocked(s.localAddr)
		s.world.emit("udpUnbind",
			slog.String("host", s.host.Name()),
			slog.String("laddr", s.localAddr.String()))
	})
	return nil
}
