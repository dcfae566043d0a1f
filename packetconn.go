//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// net.PacketConn adapter for the simulated UDP socket.
//

package simworld

import (
	"context"
	"net"
	"os"
	"time"

	"github.com/rbmk-project/simworld/dns"
	"github.com/rbmk-project/simworld/netipx"
)

// packetConn adapts a [*UDPSocket] to [net.PacketConn] so that
// stdlib-shaped consumers can run over the simulation unmodified.
type packetConn struct {
	ctx  context.Context
	rd   *deadline
	sock *UDPSocket
	wd   *deadline
}

// PacketConn adapts the socket to [net.PacketConn]. The given ctx
// must be bound to the socket's simulation through [*World.WithHost]
// and is used by WriteTo, which has no context of its own.
func (s *UDPSocket) PacketConn(ctx context.Context) net.PacketConn {
	return &packetConn{
		ctx:  ctx,
		rd:   newDeadline(),
		sock: s,
		wd:   newDeadline(),
	}
}

// Ensure [*packetConn] implements [net.PacketConn].
var _ net.PacketConn = &packetConn{}

// Close implements [net.PacketConn].
func (c *packetConn) Close() error {
	return c.sock.Close()
}

// LocalAddr implements [net.PacketConn].
func (c *packetConn) LocalAddr() net.Addr {
	return netipx.AddrPortToUDPAddr(c.sock.LocalAddr())
}

// ReadFrom implements [net.PacketConn].
func (c *packetConn) ReadFrom(buf []byte) (int, net.Addr, error) {
	c.sock.recvMu.Lock()
	defer c.sock.recvMu.Unlock()
	select {
	case dgram := <-c.sock.binding.inbox:
		count := copy(buf, dgram.env.Payload)
		return count, netipx.AddrPortToUDPAddr(dgram.from), nil

	case <-c.sock.binding.done:
		return 0, nil, net.ErrClosed

	case <-c.rd.Wait():
		return 0, nil, os.ErrDeadlineExceeded
	}
}

// WriteTo implements [net.PacketConn].
func (c *packetConn) WriteTo(pkt []byte, addr net.Addr) (int, error) {
	dst := netipx.AddrToAddrPort(addr)
	if dst.Addr().IsUnspecified() && dst.Port() == 0 {
		return 0, EINVAL
	}
	return c.sock.SendTo(c.ctx, pkt, dns.SockAddr(dst))
}

// SetDeadline implements [net.PacketConn].
func (c *packetConn) SetDeadline(t time.Time) error {
	c.SetReadDeadline(t)
	c.SetWriteDeadline(t)
	return nil
}

// SetReadDeadline implements [net.PacketConn].
func (c *packetConn) SetReadDeadline(t time.Time) error {
	c.rd.Set(t)
	return nil
}

// SetWriteDeadline implements [net.PacketConn].
func (c *packetConn) SetWriteDeadline(t time.Time) error {
	c.wd.Set(t)
	return nil
}
