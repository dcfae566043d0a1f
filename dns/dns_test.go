// SPDX-License-Identifier: GPL-3.0-or-later

package dns_test

import (
	"net/netip"
	"regexp"
	"testing"

	"github.com/rbmk-project/simworld/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupAllocatesDistinctAddresses(t *testing.T) {
	registry := dns.NewRegistry()
	subnet := netip.MustParsePrefix("192.168.0.0/16")

	hostnames := []string{"foo", "bar", "baz", "qux"}
	seen := make(map[netip.Addr]bool)
	for _, hostname := range hostnames {
		addr := registry.Lookup(dns.HostName(hostname))
		assert.True(t, subnet.Contains(addr), "%s outside simulated subnet", addr)
		assert.False(t, seen[addr], "%s assigned twice", addr)
		seen[addr] = true
	}

	// Counter zero is never issued: allocation starts at .0.1.
	assert.Equal(t, netip.MustParseAddr("192.168.0.1"), registry.Lookup(dns.HostName("foo")))
	assert.Equal(t, netip.MustParseAddr("192.168.0.2"), registry.Lookup(dns.HostName("bar")))
}

func TestLookupIsIdempotent(t *testing.T) {
	registry := dns.NewRegistry()
	first := registry.Lookup(dns.HostName("foo"))
	second := registry.Lookup(dns.HostName("foo"))
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"foo"}, registry.Hostnames())
}

func TestReverseReturnsOriginalHostname(t *testing.T) {
	registry := dns.NewRegistry()
	addr := registry.Lookup(dns.HostName("foo"))
	assert.Equal(t, "foo", registry.Reverse(addr))
}

func TestReverseUnknownAddressPanics(t *testing.T) {
	registry := dns.NewRegistry()
	assert.Panics(t, func() {
		registry.Reverse(netip.MustParseAddr("10.0.0.1"))
	})
}

func TestLiteralResolutionDoesNotMutate(t *testing.T) {
	registry := dns.NewRegistry()

	literal := netip.MustParseAddr("10.1.2.3")
	assert.Equal(t, literal, registry.Lookup(dns.IPAddr(literal)))

	sockAddr := netip.MustParseAddrPort("10.1.2.3:443")
	assert.Equal(t, sockAddr, registry.ResolveSockAddr(dns.SockAddr(sockAddr)))

	assert.Empty(t, registry.Hostnames())
}

func TestResolveSockAddr(t *testing.T) {
	registry := dns.NewRegistry()
	fooAddr := registry.Lookup(dns.HostName("foo"))

	tests := []struct {
		name string
		addr dns.ToSockAddr
		want netip.AddrPort
	}{
		{
			name: "registered hostname with port text",
			addr: dns.HostText("foo:5000"),
			want: netip.AddrPortFrom(fooAddr, 5000),
		},

		{
			name: "registered hostname with separate port",
			addr: dns.HostPort{Host: "foo", Port: 5000},
			want: netip.AddrPortFrom(fooAddr, 5000),
		},

		{
			name: "IPv4 literal text",
			addr: dns.HostText("127.0.0.1:5000"),
			want: netip.MustParseAddrPort("127.0.0.1:5000"),
		},

		{
			name: "IPv6 literal text",
			addr: dns.HostText("[::1]:5000"),
			want: netip.MustParseAddrPort("[::1]:5000"),
		},

		{
			name: "IPv4 literal with separate port",
			addr: dns.HostPort{Host: "127.0.0.1", Port: 80},
			want: netip.MustParseAddrPort("127.0.0.1:80"),
		},

		{
			name: "socket address literal",
			addr: dns.SockAddr(netip.MustParseAddrPort("10.0.0.1:53")),
			want: netip.MustParseAddrPort("10.0.0.1:53"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := registry.ResolveSockAddr(tt.addr)
			assert.Equal(t, tt.want, got)
		})
	}

	// Text resolution is equivalent to resolving the host separately
	// and combining it with the parsed port.
	assert.Equal(t,
		netip.AddrPortFrom(registry.Lookup(dns.HostName("foo")), 5000),
		registry.ResolveSockAddr(dns.HostText("foo:5000")))

	// Literal resolutions above did not register new hostnames.
	assert.Equal(t, []string{"foo"}, registry.Hostnames())
}

func TestResolveSockAddrFaults(t *testing.T) {
	tests := []struct {
		name string
		addr dns.ToSockAddr
	}{
		{
			name: "unknown hostname in text",
			addr: dns.HostText("nonexistent:5000"),
		},

		{
			name: "unknown hostname with separate port",
			addr: dns.HostPort{Host: "nonexistent", Port: 5000},
		},

		{
			name: "missing port",
			addr: dns.HostText("foo"),
		},

		{
			name: "unparsable port",
			addr: dns.HostText("foo:http"),
		},

		{
			name: "out of range port",
			addr: dns.HostText("foo:70000"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := dns.NewRegistry()
			registry.Lookup(dns.HostName("foo"))
			assert.Panics(t, func() {
				registry.ResolveSockAddr(tt.addr)
			})
		})
	}
}

func TestLookupMany(t *testing.T) {
	registry := dns.NewRegistry()
	fooAddr := registry.Lookup(dns.HostName("node-foo"))
	barAddr := registry.Lookup(dns.HostName("node-bar"))
	registry.Lookup(dns.HostName("other"))

	// Single-address values degenerate to one-element results.
	assert.Equal(t, []netip.Addr{fooAddr}, registry.LookupMany(dns.HostName("node-foo")))
	literal := netip.MustParseAddr("10.0.0.1")
	assert.Equal(t, []netip.Addr{literal}, registry.LookupMany(dns.IPAddr(literal)))

	// Patterns resolve every match in insertion order.
	pattern := dns.Pattern{Regexp: regexp.MustCompile(`^node-`)}
	assert.Equal(t, []netip.Addr{fooAddr, barAddr}, registry.LookupMany(pattern))

	// Patterns read rather than mutate.
	assert.Len(t, registry.Hostnames(), 3)
}

func TestFind(t *testing.T) {
	registry := dns.NewRegistry()
	addr := registry.Lookup(dns.HostName("foo"))

	got, found := registry.Find("foo")
	require.True(t, found)
	assert.Equal(t, addr, got)

	_, found = registry.Find("bar")
	assert.False(t, found)
	assert.Equal(t, []string{"foo"}, registry.Hostnames())

	name, found := registry.FindReverse(addr)
	require.True(t, found)
	assert.Equal(t, "foo", name)

	_, found = registry.FindReverse(netip.MustParseAddr("10.0.0.1"))
	assert.False(t, found)
}
