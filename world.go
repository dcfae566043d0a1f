//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Simulation context.
//

package simworld

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"slices"
	"sync"

	"github.com/rbmk-project/common/errclass"
	"github.com/rbmk-project/common/runtimex"
	"github.com/rbmk-project/simworld/dns"
	"github.com/rbmk-project/simworld/envelope"
	"github.com/rbmk-project/simworld/trace"
)

// ErrNoActiveWorld is returned when a context is not bound to
// an active simulation through [*World.WithHost].
var ErrNoActiveWorld = errors.New("simworld: no active world in context")

// Config contains optional configuration for creating a [*World].
type Config struct {
	// Logger optionally emits structured events for host
	// registration, endpoint lifecycle, and routed traffic.
	Logger *slog.Logger

	// Trace optionally records every routed envelope.
	Trace *trace.Trace
}

// World is the per-simulation context owning the name registry and
// the simulated hosts with their transport stacks.
//
// The zero value is invalid; construct using [New]. A [*World] is an
// explicit handle rather than process-global state, so independent
// simulations can run concurrently without cross-talk.
type World struct {
	// closed reports whether Close ran.
	closed bool

	// closers tracks resources to close with the world.
	closers []io.Closer

	// dns is the name registry for this simulation.
	dns *dns.Registry

	// hosts maps a simulated address to its host.
	hosts map[netip.Addr]*Host

	// logger optionally emits structured events.
	logger *slog.Logger

	// mu is the context-scoped exclusive section guarding the
	// registry and every per-host transport stack.
	mu sync.Mutex

	// trace optionally records routed envelopes.
	trace *trace.Trace
}

// New creates a new [*World] using the given optional config.
func New(config *Config) *World {
	if config == nil {
		config = &Config{}
	}
	return &World{
		closed:  false,
		closers: nil,
		dns:     dns.NewRegistry(),
		hosts:   make(map[netip.Addr]*Host),
		logger:  config.Logger,
		mu:      sync.Mutex{},
		trace:   config.Trace,
	}
}

// NewHost registers a host with the given hostname, allocating its
// simulated address through the name registry.
func (w *World) NewHost(hostname string) (*Host, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, net.ErrClosed
	}
	addr := w.dns.Lookup(dns.HostName(hostname))
	if _, found := w.hosts[addr]; found {
		return nil, EADDRINUSE
	}
	host := newHost(hostname, addr)
	w.hosts[addr] = host
	w.emit("newHost", slog.String("host", hostname), slog.String("addr", addr.String()))
	return host, nil
}

// MustNewHost is like [*World.NewHost] but panics on error.
func (w *World) MustNewHost(hostname string) *Host {
	return runtimex.Try1(w.NewHost(hostname))
}

// Lookup resolves an address-like value through the name registry
// while holding the exclusive section.
func (w *World) Lookup(addr dns.ToIPAddr) netip.Addr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dns.Lookup(addr)
}

// LookupMany is like [*World.Lookup] for multi-resolution values.
func (w *World) LookupMany(addrs dns.ToIPAddrs) []netip.Addr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dns.LookupMany(addrs)
}

// Reverse returns the hostname registered for the given address,
// panicking if this world's registry never issued it.
func (w *World) Reverse(addr netip.Addr) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dns.Reverse(addr)
}

// scopeKey keys the scope installed by [*World.WithHost].
type scopeKey struct{}

// scope binds a world and its active host to a context.
type scope struct {
	world *World
	host  *Host
}

// WithHost returns a context bound to the given host of this world.
// Endpoint operations consult the returned context to find the
// active registry and transport stack.
func (w *World) WithHost(ctx context.Context, host *Host) context.Context {
	return context.WithValue(ctx, scopeKey{}, &scope{world: w, host: host})
}

// Access grants exclusive access to the active simulation's name
// registry and active host's transport stack for the duration of a
// [Current] or [CurrentIfSet] closure.
type Access struct {
	world *World
	host  *Host
}

// Registry returns the name registry.
func (a *Access) Registry() *dns.Registry {
	return a.world.dns
}

// Host returns the active host.
func (a *Access) Host() *Host {
	return a.host
}

// Current runs fn with exclusive access to the simulation bound to
// ctx. It returns [ErrNoActiveWorld] when ctx carries no simulation
// and [net.ErrClosed] when the simulation has been torn down.
func Current(ctx context.Context, fn func(*Access) error) error {
	sc, ok := ctx.Value(scopeKey{}).(*scope)
	if !ok {
		return ErrNoActiveWorld
	}
	sc.world.mu.Lock()
	defer sc.world.mu.Unlock()
	if sc.world.closed {
		return net.ErrClosed
	}
	return fn(&Access{world: sc.world, host: sc.host})
}

// CurrentIfSet is like [Current] but is a no-op when ctx carries no
// simulation or the simulation has been torn down, so teardown paths
// never panic after the simulation ended.
func CurrentIfSet(ctx context.Context, fn func(*Access)) {
	sc, ok := ctx.Value(scopeKey{}).(*scope)
	if !ok {
		return
	}
	sc.world.mu.Lock()
	defer sc.world.mu.Unlock()
	if sc.world.closed {
		return
	}
	fn(&Access{world: sc.world, host: sc.host})
}

// SendMessage hands an envelope to the world for delivery to the
// endpoint bound at dst. Envelopes addressed to one endpoint are
// delivered in the order they were enqueued.
func (w *World) SendMessage(src, dst netip.AddrPort, env *envelope.Envelope) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ENETDOWN
	}
	return w.sendLocked(w.hosts[src.Addr()], src, dst, env)
}

// sendLocked routes an envelope while holding the exclusive section
// and emits a structured "send" event including the routing outcome.
func (w *World) sendLocked(origin *Host, src, dst netip.AddrPort, env *envelope.Envelope) error {
	err := w.routeLocked(origin, src, dst, env)
	w.emit("send",
		slog.String("flow", envelope.Format(src, dst, env)),
		slog.Any("err", err),
		slog.String("errClass", errclass.New(err)))
	return err
}

// routeLocked routes an envelope while holding the exclusive section.
//
// The origin host receives traffic addressed to loopback. Sending to
// an address outside the simulation returns [EHOSTUNREACH]; datagrams
// to a bound host without a matching endpoint are silently dropped,
// and stream segments without a matching endpoint are refused with a
// RST segment, mirroring what a real peer would do.
func (w *World) routeLocked(origin *Host, src, dst netip.AddrPort, env *envelope.Envelope) error {
	if w.trace != nil {
		w.trace.Record(src, dst, env)
	}

	dstHost := w.hosts[dst.Addr()]
	if dst.Addr().IsLoopback() {
		dstHost = origin
	}
	if dstHost == nil {
		return EHOSTUNREACH
	}

	switch env.Protocol {
	case envelope.ProtocolUDP:
		return dstHost.deliverDatagram(src, dst, env)

	case envelope.ProtocolTCP:
		return w.deliverSegmentLocked(dstHost, src, dst, env)

	default:
		return EPROTONOSUPPORT
	}
}

// withLocked runs fn while holding the exclusive section, failing
// with [net.ErrClosed] after the world has been torn down.
func (w *World) withLocked(fn func() error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return net.ErrClosed
	}
	return fn()
}

// addCloser registers a resource to close together with the world.
func (w *World) addCloser(c io.Closer) {
	w.mu.Lock()
	w.closers = append(w.closers, c)
	w.mu.Unlock()
}

// emit emits a structured event when logging is configured.
func (w *World) emit(event string, args ...any) {
	if w.logger != nil {
		w.logger.Info(event, args...)
	}
}

// Close tears down the simulation: it unblocks every pending receive,
// closes registered resources in backward order, and makes subsequent
// endpoint teardown a safe no-op. Closing twice is a no-op.
func (w *World) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for _, host := range w.hosts {
		host.shutdownLocked()
	}
	closers := w.closers
	w.closers = nil
	w.mu.Unlock()

	var errv []error
	for _, closer := range slices.Backward(closers) {
		if err := closer.Close(); err != nil {
			errv = append(errv, err)
		}
	}
	return errors.Join(errv...)
}
