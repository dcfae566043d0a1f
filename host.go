//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Per-host transport stack.
//

package simworld

import (
	"math"
	"net/netip"

	"github.com/rbmk-project/simworld/envelope"
)

// inboxCapacity is the number of envelopes an endpoint can hold
// before senders start seeing [ENOBUFS].
const inboxCapacity = 128

// firstEphemeralPort is the first port assigned when binding port zero.
const firstEphemeralPort = 49152

// Host is a simulated host attached to a [*World].
//
// All fields are guarded by the world's exclusive section.
type Host struct {
	// addr is the host's simulated address.
	addr netip.Addr

	// name is the hostname the address was allocated for.
	name string

	// nextport tracks the next available ephemeral port.
	nextport map[envelope.Protocol]uint16

	// tcpListeners contains the listening TCP ports.
	tcpListeners map[uint16]*tcpListenerBinding

	// tcpStreams contains the established streams.
	tcpStreams map[SocketPair]*TCPStream

	// udpPorts contains the bound UDP ports.
	udpPorts map[uint16]*udpBinding
}

// newHost creates a host with the given name and simulated address.
func newHost(name string, addr netip.Addr) *Host {
	return &Host{
		addr: addr,
		name: name,
		nextport: map[envelope.Protocol]uint16{
			envelope.ProtocolTCP: firstEphemeralPort,
			envelope.ProtocolUDP: firstEphemeralPort,
		},
		tcpListeners: make(map[uint16]*tcpListenerBinding),
		tcpStreams:   make(map[SocketPair]*TCPStream),
		udpPorts:     make(map[uint16]*udpBinding),
	}
}

// Name returns the hostname.
func (h *Host) Name() string {
	return h.name
}

// Addr returns the host's simulated address.
func (h *Host) Addr() netip.Addr {
	return h.addr
}

// supportsLocalAddr reports whether the host can bind the given
// local address: the unspecified address, loopback, and the host's
// own address are supported; any other concrete routable address
// is not.
func (h *Host) supportsLocalAddr(addr netip.Addr) bool {
	return addr.IsUnspecified() || addr.IsLoopback() || addr == h.addr
}

// newEphemeralPortLocked returns the next free ephemeral port for
// the given protocol, or [EADDRINUSE] when the range is exhausted.
//
// The caller must hold the world's exclusive section.
func (h *Host) newEphemeralPortLocked(proto envelope.Protocol) (uint16, error) {
	if h.nextport[proto] >= math.MaxUint16 {
		return 0, EADDRINUSE
	}
	port := h.nextport[proto]
	h.nextport[proto] = port + 1
	return port, nil
}

// inboundDatagram is a datagram envelope queued for an endpoint
// along with its origin address.
type inboundDatagram struct {
	env  *envelope.Envelope
	from netip.AddrPort
}

// udpBinding is a bound UDP port. The binding owns the inbox sender
// side used by the world for routing; the endpoint owns the receiving
// side.
type udpBinding struct {
	// done unblocks any pending receive when the port is unbound.
	done chan struct{}

	// inbox queues inbound datagrams in enqueue order.
	inbox chan inboundDatagram

	// laddr is the bound local address.
	laddr netip.AddrPort
}

// bindUDPLocked registers a UDP port with the host's transport stack.
//
// The caller must hold the world's exclusive section.
func (h *Host) bindUDPLocked(laddr netip.AddrPort) (*udpBinding, error) {
	if !h.supportsLocalAddr(laddr.Addr()) {
		return nil, EADDRNOTAVAIL
	}
	if laddr.Port() == 0 {
		port, err := h.newEphemeralPortLocked(envelope.ProtocolUDP)
		if err != nil {
			return nil, err
		}
		laddr = netip.AddrPortFrom(laddr.Addr(), port)
	}
	if _, found := h.udpPorts[laddr.Port()]; found {
		return nil, EADDRINUSE
	}
	binding := &udpBinding{
		done:  make(chan struct{}),
		inbox: make(chan inboundDatagram, inboxCapacity),
		laddr: laddr,
	}
	h.udpPorts[laddr.Port()] = binding
	return binding, nil
}

// unbindUDPLocked unregisters a UDP port. Unbinding a port that is
// not bound is a no-op.
//
// The caller must hold the world's exclusive section.
func (h *Host) unbindUDPLocked(laddr netip.AddrPort) {
	binding, found := h.udpPorts[laddr.Port()]
	if !found {
		return
	}
	delete(h.udpPorts, laddr.Port())
	close(binding.done)
}

// deliverDatagram queues a datagram for the endpoint bound at dst.
//
// Datagrams without a matching endpoint are silently dropped, like
// real UDP traffic to an unbound port.
func (h *Host) deliverDatagram(src, dst netip.AddrPort, env *envelope.Envelope) error {
	binding, found := h.udpPorts[dst.Port()]
	if !found {
		return nil
	}
	if !binding.laddr.Addr().IsUnspecified() && binding.laddr.Addr() != dst.Addr() {
		return nil
	}
	select {
	case binding.inbox <- inboundDatagram{env: env, from: src}:
		return nil
	default:
		return ENOBUFS
	}
}

// shutdownLocked unblocks every endpoint bound on the host. Used by
// [*World.Close].
//
// The caller must hold the world's exclusive section.
func (h *Host) shutdownLocked() {
	for _, binding := range h.udpPorts {
		close(binding.done)
	}
	for _, listener := range h.tcpListeners {
		close(listener.done)
	}
	for _, stream := range h.tcpStreams {
		close(stream.done)
	}
}
