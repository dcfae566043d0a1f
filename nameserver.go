//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// DNS-over-UDP server backed by the name registry.
//

package simworld

import (
	"context"
	"net"

	"github.com/rbmk-project/common/runtimex"
	"github.com/rbmk-project/dnscore/dnscoretest"
	"github.com/rbmk-project/simworld/dns"
	"github.com/rbmk-project/simworld/dnsd"
)

// MustStartNameServer starts a DNS-over-UDP server bound to addr on
// the host ctx is bound to, answering queries from the world's name
// registry. The server is closed together with the world.
//
// This method panics on error.
func (w *World) MustStartNameServer(ctx context.Context, addr dns.ToSockAddr) {
	sock := runtimex.Try1(BindUDP(ctx, addr))
	server := &dnscoretest.Server{
		ListenPacket: func(network, address string) (net.PacketConn, error) {
			return sock.PacketConn(ctx), nil
		},
	}
	<-server.StartUDP(dnsd.NewServer(w.dns))
	w.addCloser(server)
	w.addCloser(sock)
}
