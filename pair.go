//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Socket-pair identity.
//

package simworld

import (
	"fmt"
	"net/netip"

	"github.com/rbmk-project/common/runtimex"
)

// SocketPair identifies an established stream by its two endpoints.
//
// It is a routing key, not an owned resource: the per-host transport
// stack uses it to find the stream an inbound segment belongs to.
type SocketPair struct {
	// Local is the local socket address.
	Local netip.AddrPort

	// Remote is the remote socket address.
	Remote netip.AddrPort
}

// NewSocketPair creates a [SocketPair] from the given endpoints.
//
// A host may never be made to talk to itself through this identity:
// equal endpoints indicate a logic error in the caller, so this
// function panics rather than returning a degenerate pair.
func NewSocketPair(local, remote netip.AddrPort) SocketPair {
	runtimex.Assert(local != remote, "simworld: socket pair endpoints must differ")
	return SocketPair{Local: local, Remote: remote}
}

// String returns the string representation of the pair.
func (sp SocketPair) String() string {
	return fmt.Sprintf("%s -> %s", sp.Local, sp.Remote)
}
