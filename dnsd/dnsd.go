// SPDX-License-Identifier: GPL-3.0-or-later

// Package dnsd serves a simulation's name registry over DNS.
//
// The [*Server] answers A queries with the simulated addresses
// allocated by the registry and PTR queries through reverse lookup.
// Unknown names produce NXDOMAIN rather than allocating, so serving
// queries never mutates the registry.
package dnsd

import (
	"net/netip"
	"strconv"
	"strings"

	"github.com/miekg/dns"
	"github.com/rbmk-project/dnscore/dnscoretest"
	simdns "github.com/rbmk-project/simworld/dns"
)

// Handler is an alias for dnscoretest.Handler.
type Handler = dnscoretest.Handler

// Server answers DNS queries from a name registry.
//
// The zero value is invalid; construct using [NewServer].
type Server struct {
	registry *simdns.Registry
}

// NewServer creates a [*Server] answering from the given registry.
func NewServer(registry *simdns.Registry) *Server {
	return &Server{registry: registry}
}

// Ensure [*Server] implements [Handler].
var _ Handler = (*Server)(nil)

// Handle implements [Handler].
//
// This method is goroutine safe as long as one does not resolve new
// hostnames through the registry while handling queries.
func (s *Server) Handle(rw dnscoretest.ResponseWriter, rawQuery []byte) {
	// Parse the incoming query and make sure it's a
	// query containing just one question.
	var (
		response = &dns.Msg{}
		query    = &dns.Msg{}
	)
	if err := query.Unpack(rawQuery); err != nil {
		return
	}
	if query.Response || query.Opcode != dns.OpcodeQuery || len(query.Question) != 1 {
		return
	}
	response.SetReply(query)

	q0 := query.Question[0]
	switch {
	case q0.Qclass != dns.ClassINET:
		response.Rcode = dns.RcodeRefused
	case q0.Qtype == dns.TypeA:
		s.answerA(response, q0)
	case q0.Qtype == dns.TypePTR:
		s.answerPTR(response, q0)
	default:
		response.Rcode = dns.RcodeNameError
	}

	// Write the response
	rawResp, err := response.Pack()
	if err != nil {
		return
	}
	rw.Write(rawResp)
}

// answerA fills the response for an A question.
func (s *Server) answerA(response *dns.Msg, q0 dns.Question) {
	hostname := strings.TrimSuffix(dns.CanonicalName(q0.Name), ".")
	addr, found := s.registry.Find(hostname)
	if !found {
		response.Rcode = dns.RcodeNameError
		return
	}
	response.Answer = append(response.Answer, &dns.A{
		Hdr: dns.RR_Header{
			Name:   dns.CanonicalName(q0.Name),
			Rrtype: dns.TypeA,
			Class:  dns.ClassINET,
			Ttl:    3600,
		},
		A: addr.AsSlice(),
	})
}

// answerPTR fills the response for a PTR question.
func (s *Server) answerPTR(response *dns.Msg, q0 dns.Question) {
	addr, ok := parseReverseName(dns.CanonicalName(q0.Name))
	if !ok {
		response.Rcode = dns.RcodeNameError
		return
	}
	hostname, found := s.registry.FindReverse(addr)
	if !found {
		response.Rcode = dns.RcodeNameError
		return
	}
	response.Answer = append(response.Answer, &dns.PTR{
		Hdr: dns.RR_Header{
			Name:   dns.CanonicalName(q0.Name),
			Rrtype: dns.TypePTR,
			Class:  dns.ClassINET,
			Ttl:    3600,
		},
		Ptr: dns.CanonicalName(hostname),
	})
}

// parseReverseName parses an IPv4 "in-addr.arpa." reverse name.
func parseReverseName(name string) (netip.Addr, bool) {
	const suffix = ".in-addr.arpa."
	if !strings.HasSuffix(name, suffix) {
		return netip.Addr{}, false
	}
	labels := strings.Split(strings.TrimSuffix(name, suffix), ".")
	if len(labels) != 4 {
		return netip.Addr{}, false
	}
	var octets [4]byte
	for idx, label := range labels {
		value, err := strconv.ParseUint(label, 10, 8)
		if err != nil {
			return netip.Addr{}, false
		}
		// Reverse names list octets in reverse order.
		octets[3-idx] = byte(value)
	}
	return netip.AddrFrom4(octets), true
}
