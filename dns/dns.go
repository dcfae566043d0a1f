// SPDX-License-Identifier: GPL-3.0-or-later

// Package dns models the name registry owning the hostname to
// simulated-IP mapping for a single simulation.
//
// Each hostname resolved through a [*Registry] is lazily assigned
// a distinct IPv4 address inside 192.168.0.0/16. Allocation order
// is the order of first use, which keeps simulation runs fully
// reproducible given a deterministic sequence of resolutions.
package dns

import (
	"net/netip"

	"github.com/rbmk-project/common/runtimex"
)

// Registry owns the hostname to simulated-IP mapping.
//
// The zero value is invalid; construct using [NewRegistry].
//
// A [*Registry] IS NOT goroutine safe: callers must access it
// inside the simulation context's exclusive section.
type Registry struct {
	// next is the next host counter to issue. Counter zero is
	// never issued and counters are never reused.
	next uint16

	// entries records name/address pairs in insertion order.
	entries []entry

	// index maps a hostname to its position in entries.
	index map[string]int
}

// entry is a single hostname to address assignment.
type entry struct {
	name string
	addr netip.Addr
}

// NewRegistry creates an empty [*Registry].
func NewRegistry() *Registry {
	return &Registry{
		next:    1,
		entries: nil,
		index:   make(map[string]int),
	}
}

// Lookup resolves an address-like value to a single IP address,
// allocating a new simulated address when the value is a hostname
// referenced for the first time.
//
// Resolution faults are fatal: they panic rather than returning
// a guessed or default address.
func (r *Registry) Lookup(addr ToIPAddr) netip.Addr {
	return addr.toIPAddr(r)
}

// LookupMany resolves an address-like value to one or more IP
// addresses. Single-address values resolve to one-element results;
// a [Pattern] resolves to every matching registered hostname in
// insertion order.
func (r *Registry) LookupMany(addrs ToIPAddrs) []netip.Addr {
	return addrs.toIPAddrs(r)
}

// ResolveSockAddr resolves an address-like value to a socket address.
//
// Resolution faults (unknown hostname, unparsable host:port text,
// unparsable port) are fatal: they panic rather than returning a
// guessed or default address.
func (r *Registry) ResolveSockAddr(addr ToSockAddr) netip.AddrPort {
	return addr.toSockAddr(r)
}

// Reverse returns the first-registered hostname mapped to the given
// address. A reverse lookup of an address this registry never issued
// is fatal and panics.
func (r *Registry) Reverse(addr netip.Addr) string {
	name, found := r.FindReverse(addr)
	runtimex.Assert(found, "dns: no hostname found for IP address")
	return name
}

// Find returns the address assigned to hostname, without allocating.
func (r *Registry) Find(hostname string) (netip.Addr, bool) {
	idx, found := r.index[hostname]
	if !found {
		return netip.Addr{}, false
	}
	return r.entries[idx].addr, true
}

// FindReverse returns the first-registered hostname mapped to the
// given address, without panicking on a miss.
func (r *Registry) FindReverse(addr netip.Addr) (string, bool) {
	for _, ent := range r.entries {
		if ent.addr == addr {
			return ent.name, true
		}
	}
	return "", false
}

// Hostnames returns the registered hostnames in insertion order.
func (r *Registry) Hostnames() []string {
	names := make([]string, 0, len(r.entries))
	for _, ent := range r.entries {
		names = append(names, ent.name)
	}
	return names
}

// allocate returns the address assigned to hostname, assigning the
// next free simulated address on first reference.
func (r *Registry) allocate(hostname string) netip.Addr {
	if idx, found := r.index[hostname]; found {
		return r.entries[idx].addr
	}

	// The counter wraps to zero once the /16 is exhausted.
	runtimex.Assert(r.next != 0, "dns: simulated address space exhausted")
	host := r.next
	r.next++

	addr := netip.AddrFrom4([4]byte{192, 168, byte(host >> 8), byte(host)})
	r.index[hostname] = len(r.entries)
	r.entries = append(r.entries, entry{name: hostname, addr: addr})
	return addr
}
