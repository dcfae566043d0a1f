// SPDX-License-Identifier: GPL-3.0-or-later

// Package trace records simulated traffic into pcap files.
//
// A [*Trace] synthesizes a raw IPv4/IPv6 packet for each routed
// envelope, so that simulated traffic can be inspected with
// wireshark or any other pcap consumer.
package trace

import (
	"errors"
	"io"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/rbmk-project/simworld/envelope"
)

// snapLen is the number of bytes to capture per packet.
const snapLen = 262144

// errUnsupportedProtocol is returned when an envelope carries a
// protocol tag the trace cannot synthesize.
var errUnsupportedProtocol = errors.New("trace: unsupported protocol")

// Trace is an open pcap trace.
//
// The zero value is invalid; construct using [New].
type Trace struct {
	// mu serializes writes to the underlying file.
	mu sync.Mutex

	// timeNow is the clock used for capture timestamps.
	timeNow func() time.Time

	// writer writes the pcap records.
	writer *pcapgo.Writer
}

// New creates a [*Trace] writing to the given writer and emits
// the pcap file header.
func New(w io.Writer) (*Trace, error) {
	writer := pcapgo.NewWriter(w)
	if err := writer.WriteFileHeader(snapLen, layers.LinkTypeRaw); err != nil {
		return nil, err
	}
	return &Trace{
		mu:      sync.Mutex{},
		timeNow: time.Now,
		writer:  writer,
	}, nil
}

// SetTimeNow overrides the capture clock, which allows tests to
// produce deterministic captures.
func (t *Trace) SetTimeNow(fn func() time.Time) {
	t.timeNow = fn
}

// Record synthesizes a raw packet for the given envelope and appends
// it to the trace.
func (t *Trace) Record(src, dst netip.AddrPort, env *envelope.Envelope) error {
	data, err := synthesize(src, dst, env)
	if err != nil {
		return err
	}
	ci := gopacket.CaptureInfo{
		Timestamp:     t.timeNow(),
		CaptureLength: len(data),
		Length:        len(data),
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writer.WritePacket(ci, data)
}

// synthesize builds the raw IP packet representing an envelope.
func synthesize(src, dst netip.AddrPort, env *envelope.Envelope) ([]byte, error) {
	const hops = 64

	var (
		ip      gopacket.SerializableLayer
		network gopacket.NetworkLayer
	)
	if src.Addr().Is4() && dst.Addr().Is4() {
		v4 := &layers.IPv4{
			Version:  4,
			TTL:      hops,
			Protocol: layers.IPProtocol(env.Protocol),
			SrcIP:    net.IP(src.Addr().AsSlice()),
			DstIP:    net.IP(dst.Addr().AsSlice()),
		}
		ip, network = v4, v4
	} else {
		srcFull, dstFull := src.Addr().As16(), dst.Addr().As16()
		v6 := &layers.IPv6{
			Version:    6,
			HopLimit:   hops,
			NextHeader: layers.IPProtocol(env.Protocol),
			SrcIP:      net.IP(srcFull[:]),
			DstIP:      net.IP(dstFull[:]),
		}
		ip, network = v6, v6
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

	switch env.Protocol {
	case envelope.ProtocolUDP:
		udp := &layers.UDP{
			SrcPort: layers.UDPPort(src.Port()),
			DstPort: layers.UDPPort(dst.Port()),
		}
		if err := udp.SetNetworkLayerForChecksum(network); err != nil {
			return nil, err
		}
		if err := gopacket.SerializeLayers(buf, opts, ip, udp, gopacket.Payload(env.Payload)); err != nil {
			return nil, err
		}

	case envelope.ProtocolTCP:
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(src.Port()),
			DstPort: layers.TCPPort(dst.Port()),
			FIN:     env.Flags&envelope.FlagFIN != 0,
			SYN:     env.Flags&envelope.FlagSYN != 0,
			RST:     env.Flags&envelope.FlagRST != 0,
			PSH:     env.Flags&envelope.FlagPSH != 0,
			ACK:     env.Flags&envelope.FlagACK != 0,
			Window:  65535,
		}
		if err := tcp.SetNetworkLayerForChecksum(network); err != nil {
			return nil, err
		}
		if err := gopacket.SerializeLayers(buf, opts, ip, tcp, gopacket.Payload(env.Payload)); err != nil {
			return nil, err
		}

	default:
		return nil, errUnsupportedProtocol
	}

	return buf.Bytes(), nil
}
