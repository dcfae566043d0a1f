// SPDX-License-Identifier: GPL-3.0-or-later

package simworld_test

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/rbmk-project/simworld"
	"github.com/rbmk-project/simworld/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketConn(t *testing.T) {
	t.Run("round trip through net.PacketConn", func(t *testing.T) {
		world := simworld.New(nil)
		defer world.Close()
		foo := world.MustNewHost("foo")
		bar := world.MustNewHost("bar")
		fooCtx := world.WithHost(context.Background(), foo)
		barCtx := world.WithHost(context.Background(), bar)

		serverSock, err := simworld.BindUDP(barCtx, dns.HostText("bar:4000"))
		require.NoError(t, err)
		server := serverSock.PacketConn(barCtx)
		clientSock, err := simworld.BindUDP(fooCtx, dns.HostText("foo:5000"))
		require.NoError(t, err)
		client := clientSock.PacketConn(fooCtx)

		count, err := client.WriteTo([]byte("ping"), server.LocalAddr())
		require.NoError(t, err)
		assert.Equal(t, 4, count)

		buf := make([]byte, 128)
		count, from, err := server.ReadFrom(buf)
		require.NoError(t, err)
		assert.Equal(t, "ping", string(buf[:count]))
		assert.Equal(t, client.LocalAddr().String(), from.String())
	})

	t.Run("read deadline", func(t *testing.T) {
		world := simworld.New(nil)
		defer world.Close()
		ctx := world.WithHost(context.Background(), world.MustNewHost("foo"))

		sock, err := simworld.BindUDP(ctx, dns.HostText("foo:4000"))
		require.NoError(t, err)
		conn := sock.PacketConn(ctx)
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Millisecond)))

		buf := make([]byte, 128)
		_, _, err = conn.ReadFrom(buf)
		assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
	})

	t.Run("writing to an unusable address", func(t *testing.T) {
		world := simworld.New(nil)
		defer world.Close()
		ctx := world.WithHost(context.Background(), world.MustNewHost("foo"))

		sock, err := simworld.BindUDP(ctx, dns.HostText("foo:4000"))
		require.NoError(t, err)
		conn := sock.PacketConn(ctx)
		_, err = conn.WriteTo([]byte("ping"), &net.UnixAddr{})
		assert.ErrorIs(t, err, simworld.EINVAL)
	})

	t.Run("closing the conn closes the socket", func(t *testing.T) {
		world := simworld.New(nil)
		defer world.Close()
		ctx := world.WithHost(context.Background(), world.MustNewHost("foo"))

		sock, err := simworld.BindUDP(ctx, dns.HostText("foo:4000"))
		require.NoError(t, err)
		conn := sock.PacketConn(ctx)
		require.NoError(t, conn.Close())

		buf := make([]byte, 128)
		_, _, err = conn.ReadFrom(buf)
		assert.ErrorIs(t, err, net.ErrClosed)
	})
}
