// SPDX-License-Identifier: GPL-3.0-or-later

// Package envelope contains [*Envelope] and the related definitions.
package envelope

import (
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// Protocol is the transport protocol tag of an [*Envelope].
type Protocol uint8

// String returns the string representation of the protocol tag.
func (p Protocol) String() string {
	switch p {
	case ProtocolTCP:
		return "tcp"

	case ProtocolUDP:
		return "udp"

	default:
		return "unknown"
	}
}

const (
	// ProtocolTCP tags stream-segment envelopes.
	ProtocolTCP = Protocol(6)

	// ProtocolUDP tags datagram envelopes.
	ProtocolUDP = Protocol(17)
)

// Flags is a set of stream-segment flags.
//
// Flags are only meaningful for [ProtocolTCP] envelopes and
// are always zero for datagram envelopes.
type Flags uint8

// String returns the string representation of the flags.
func (flags Flags) String() string {
	var builder strings.Builder

	if flags&FlagFIN != 0 {
		builder.WriteString("F")
	} else {
		builder.WriteString(".")
	}

	if flags&FlagSYN != 0 {
		builder.WriteString("S")
	} else {
		builder.WriteString(".")
	}

	if flags&FlagRST != 0 {
		builder.WriteString("R")
	} else {
		builder.WriteString(".")
	}

	if flags&FlagPSH != 0 {
		builder.WriteString("P")
	} else {
		builder.WriteString(".")
	}

	if flags&FlagACK != 0 {
		builder.WriteString("A")
	} else {
		builder.WriteString(".")
	}

	return builder.String()
}

const (
	// FlagFIN is the FIN flag.
	FlagFIN = Flags(1)

	// FlagSYN is the SYN flag.
	FlagSYN = Flags(2)

	// FlagRST is the RST flag.
	FlagRST = Flags(4)

	// FlagPSH is the PSH flag.
	FlagPSH = Flags(8)

	// FlagACK is the ACK flag.
	FlagACK = Flags(16)
)

// Envelope is a protocol-tagged payload exchanged between simulated
// endpoints. The payload is owned by the envelope: constructors copy
// the caller's bytes and consumers must not modify them.
type Envelope struct {
	// Protocol is the transport protocol tag.
	Protocol Protocol

	// Flags contains the stream-segment flags (TCP only).
	Flags Flags

	// Payload is the immutable payload.
	Payload []byte
}

// NewDatagram creates a datagram [*Envelope] copying the given payload.
func NewDatagram(payload []byte) *Envelope {
	return &Envelope{
		Protocol: ProtocolUDP,
		Flags:    0,
		Payload:  append([]byte{}, payload...),
	}
}

// NewSegment creates a stream-segment [*Envelope] copying the given payload.
func NewSegment(flags Flags, payload []byte) *Envelope {
	return &Envelope{
		Protocol: ProtocolTCP,
		Flags:    flags,
		Payload:  append([]byte{}, payload...),
	}
}

// String returns the string representation of the envelope.
func (e *Envelope) String() string {
	switch e.Protocol {
	case ProtocolTCP:
		return fmt.Sprintf("%s flags=%s length=%d",
			e.Protocol.String(), e.Flags.String(), len(e.Payload))
	default:
		return fmt.Sprintf("%s length=%d", e.Protocol.String(), len(e.Payload))
	}
}

// Format formats a (source, destination, envelope) triple the
// way routing code logs in-flight traffic.
func Format(src, dst netip.AddrPort, e *Envelope) string {
	return fmt.Sprintf(
		"%s -> %s %s",
		net.JoinHostPort(src.Addr().String(), fmt.Sprintf("%d", src.Port())),
		net.JoinHostPort(dst.Addr().String(), fmt.Sprintf("%d", dst.Port())),
		e.String(),
	)
}
