// SPDX-License-Identifier: GPL-3.0-or-later

package simworld_test

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/rbmk-project/simworld"
	"github.com/rbmk-project/simworld/dns"
)

// This example shows how to simulate a UDP ping/pong exchange
// between two hosts without touching the real network.
func Example_udpPingPong() {
	// Create the simulation and make sure we eventually
	// release the resources it owns.
	world := simworld.New(nil)
	defer world.Close()

	// Register the two hosts. Each registration deterministically
	// allocates an address inside 192.168.0.0/16.
	server := world.MustNewHost("server")
	client := world.MustNewHost("client")

	// Bind each endpoint on its own host. The context selects the
	// host an endpoint operation applies to.
	serverCtx := world.WithHost(context.Background(), server)
	clientCtx := world.WithHost(context.Background(), client)

	serverSock, err := simworld.BindUDP(serverCtx, dns.HostText("server:4000"))
	if err != nil {
		log.Fatal(err)
	}
	clientSock, err := simworld.BindUDP(clientCtx, dns.HostText("0.0.0.0:0"))
	if err != nil {
		log.Fatal(err)
	}

	// Ping. Hostnames resolve through the simulation's registry.
	if _, err := clientSock.SendTo(clientCtx, []byte("ping"), dns.HostText("server:4000")); err != nil {
		log.Fatal(err)
	}

	buf := make([]byte, 128)
	count, from, err := serverSock.RecvFrom(serverCtx, buf)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s from %s\n", string(buf[:count]), from)

	// Pong.
	if _, err := serverSock.SendTo(serverCtx, []byte("pong"), dns.SockAddr(from)); err != nil {
		log.Fatal(err)
	}
	count, _, err = clientSock.RecvFrom(clientCtx, buf)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s\n", string(buf[:count]))

	// Output:
	// ping from 192.168.0.2:49152
	// pong
}

// This example shows how to simulate a TCP echo server
// and a client exchanging a line with it.
func Example_tcpEcho() {
	world := simworld.New(nil)
	defer world.Close()

	server := world.MustNewHost("server")
	client := world.MustNewHost("client")
	serverCtx := world.WithHost(context.Background(), server)
	clientCtx := world.WithHost(context.Background(), client)

	listener, err := simworld.ListenTCP(serverCtx, dns.HostText("server:8080"))
	if err != nil {
		log.Fatal(err)
	}

	// Run the echo server in the background.
	go func() {
		stream, err := listener.Accept(serverCtx)
		if err != nil {
			return
		}
		defer stream.Close()
		buf := make([]byte, 128)
		count, err := stream.Read(buf)
		if err != nil {
			return
		}
		stream.Write(buf[:count])
	}()

	// Connect, send a line, and read the echo.
	stream, err := simworld.DialTCP(clientCtx, dns.HostText("server:8080"))
	if err != nil {
		log.Fatal(err)
	}
	defer stream.Close()
	if _, err := stream.Write([]byte("hello")); err != nil {
		log.Fatal(err)
	}
	buf := make([]byte, 128)
	count, err := stream.Read(buf)
	if err != nil && err != io.EOF {
		log.Fatal(err)
	}
	fmt.Printf("%s\n", string(buf[:count]))

	// Output:
	// hello
}

// This example shows the deterministic address allocation and
// the reverse mapping maintained by the simulation.
func Example_addressAllocation() {
	world := simworld.New(nil)
	defer world.Close()

	foo := world.MustNewHost("foo")
	bar := world.MustNewHost("bar")

	fmt.Printf("%s %s\n", foo.Name(), foo.Addr())
	fmt.Printf("%s %s\n", bar.Name(), bar.Addr())
	fmt.Printf("%s\n", world.Reverse(bar.Addr()))

	// Output:
	// foo 192.168.0.1
	// bar 192.168.0.2
	// bar
}
