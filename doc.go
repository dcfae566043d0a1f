// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package simworld provides a deterministic network simulation substrate
for testing asynchronous networked applications without real sockets.

# Usage and Features

The [New] function creates a [*World], the per-simulation context that
owns the name registry and the simulated hosts. [*World.MustNewHost]
registers a host, lazily allocating its simulated IPv4 address from the
192.168.0.0/16 block, and [*World.WithHost] binds a [context.Context]
to that host so that endpoint operations know which transport stack
they act upon.

[BindUDP] creates a simulated UDP socket bound on the active host.
[ListenTCP] and [DialTCP] are the structurally symmetric TCP siblings:
they honor the same addressing and lifecycle contract and additionally
model connection establishment and ordered byte delivery.

Address-like values are expressed with the closed capability set in
the [dns] subpackage: [dns.IPAddr], [dns.SockAddr], [dns.HostName],
[dns.HostPort], [dns.HostText], and [dns.Pattern]. Every endpoint
operation resolves them through the world's name registry, so any
string a test author writes is resolvable while allocation remains
fully deterministic.

Traffic is exchanged as protocol-tagged [envelope.Envelope] values
routed by [*World.SendMessage]. The optional [trace] subpackage can
record every routed envelope into a pcap file, and the [dnsd]
subpackage serves the name registry over simulated DNS-over-UDP.

The errors returned by endpoint operations are the same [syscall.Errno]
values the standard library and the kernel would generate in similar
cases (we use the [x/sys] repository to pull system-dependent error
values). Resolution faults and invariant violations are programming
errors and panic instead of returning a guessed address.

This package contains runnable examples showing how to use it.
*/
package simworld
