// SPDX-License-Identifier: GPL-3.0-or-later

//
// Address-resolution capabilities.
//

package dns

import (
	"net/netip"
	"regexp"
	"strconv"
	"strings"

	"github.com/rbmk-project/common/runtimex"
)

// ToIPAddr is an address-like value resolving to a single IP address.
//
// The resolution method is unexported, which keeps the variant set
// closed: no outside type can bypass registry semantics. The variants
// are [IPAddr] and [HostName].
type ToIPAddr interface {
	toIPAddr(r *Registry) netip.Addr
}

// ToIPAddrs is an address-like value resolving to one or more IP
// addresses. The variants are every [ToIPAddr] variant plus [Pattern].
type ToIPAddrs interface {
	toIPAddrs(r *Registry) []netip.Addr
}

// ToSockAddr is an address-like value resolving to a socket address.
// The variants are [SockAddr], [HostPort], and [HostText].
type ToSockAddr interface {
	toSockAddr(r *Registry) netip.AddrPort
}

// IPAddr is a literal IP address. It resolves to itself and never
// mutates the registry.
type IPAddr netip.Addr

var _ ToIPAddr = IPAddr{}

func (a IPAddr) toIPAddr(r *Registry) netip.Addr {
	return netip.Addr(a)
}

var _ ToIPAddrs = IPAddr{}

func (a IPAddr) toIPAddrs(r *Registry) []netip.Addr {
	return []netip.Addr{a.toIPAddr(r)}
}

// HostName is a hostname. It resolves through the registry,
// allocating a new simulated address on first reference.
type HostName string

var _ ToIPAddr = HostName("")

func (h HostName) toIPAddr(r *Registry) netip.Addr {
	return r.allocate(string(h))
}

var _ ToIPAddrs = HostName("")

func (h HostName) toIPAddrs(r *Registry) []netip.Addr {
	return []netip.Addr{h.toIPAddr(r)}
}

// Pattern matches registered hostnames by regular expression. It
// resolves to the addresses of all matching hostnames in insertion
// order, reading rather than mutating the registry.
type Pattern struct {
	// Regexp is the compiled hostname pattern.
	Regexp *regexp.Regexp
}

var _ ToIPAddrs = Pattern{}

func (p Pattern) toIPAddrs(r *Registry) []netip.Addr {
	var addrs []netip.Addr
	for _, name := range r.Hostnames() {
		if p.Regexp.MatchString(name) {
			addrs = append(addrs, HostName(name).toIPAddr(r))
		}
	}
	return addrs
}

// SockAddr is a literal socket address. It resolves to itself and
// never mutates the registry.
type SockAddr netip.AddrPort

var _ ToSockAddr = SockAddr{}

func (sa SockAddr) toSockAddr(r *Registry) netip.AddrPort {
	return netip.AddrPort(sa)
}

// HostPort pairs a hostname-or-IP-literal with a port.
//
// A host that parses as an IP literal is used verbatim. Otherwise
// the host must already be registered: resolving an unknown hostname
// is a fatal resolution fault.
type HostPort struct {
	// Host is the hostname or IP literal.
	Host string

	// Port is the port number.
	Port uint16
}

var _ ToSockAddr = HostPort{}

func (hp HostPort) toSockAddr(r *Registry) netip.AddrPort {
	if addr, err := netip.ParseAddr(hp.Host); err == nil {
		return netip.AddrPortFrom(addr, hp.Port)
	}
	addr, found := r.Find(hp.Host)
	runtimex.Assert(found, "dns: no IP address found for hostname: "+hp.Host)
	return netip.AddrPortFrom(addr, hp.Port)
}

// HostText is a textual "host:port" or "[ipv6]:port" endpoint.
//
// Unparsable text and unparsable ports are fatal resolution faults,
// as is an unknown hostname in the host portion.
type HostText string

var _ ToSockAddr = HostText("")

func (ht HostText) toSockAddr(r *Registry) netip.AddrPort {
	// The literal forms, including "[::1]:5000", parse directly.
	if sa, err := netip.ParseAddrPort(string(ht)); err == nil {
		return sa
	}

	// Otherwise split host and port at the last colon.
	idx := strings.LastIndex(string(ht), ":")
	runtimex.Assert(idx >= 0, "dns: invalid socket address: "+string(ht))
	host, portText := string(ht)[:idx], string(ht)[idx+1:]

	port, err := strconv.ParseUint(portText, 10, 16)
	runtimex.Assert(err == nil, "dns: invalid port value: "+portText)

	return HostPort{Host: host, Port: uint16(port)}.toSockAddr(r)
}
