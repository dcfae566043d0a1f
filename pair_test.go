// SPDX-License-Identifier: GPL-3.0-or-later

package simworld_test

import (
	"net/netip"
	"testing"

	"github.com/rbmk-project/simworld"
	"github.com/stretchr/testify/assert"
)

func TestNewSocketPair(t *testing.T) {
	local := netip.MustParseAddrPort("192.168.0.1:5000")
	remote := netip.MustParseAddrPort("192.168.0.2:4000")

	pair := simworld.NewSocketPair(local, remote)
	assert.Equal(t, local, pair.Local)
	assert.Equal(t, remote, pair.Remote)
	assert.Equal(t, "192.168.0.1:5000 -> 192.168.0.2:4000", pair.String())

	// Equal endpoints indicate a logic error in the caller.
	assert.Panics(t, func() {
		simworld.NewSocketPair(local, local)
	})
}
