// Package decoder implements protocol decoding.
package decoder

import (
	"fmt"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/flowtap/internal/core"
)

const ipv4HeaderMinLen = 20

// Segment is the transport-level view of one IPv4 packet.
type Segment struct {
	Key      core.FlowKey
	Payload  []byte // application payload, trailer removed
	Trimmed  int    // capture trailer bytes removed from the payload tail
	TotalLen uint16 // IPv4 total length field
}

// DecodeIPv4 decodes the IPv4 header and the TCP or UDP header that follows
// it, and locates the application payload.
//
// Some capture setups append trailer bytes past the IP total length. The
// transport segment is taken as everything captured after the IP header, so
// the trailer ends up at the payload tail and is trimmed there.
func DecodeIPv4(data []byte) (Segment, error) {
	if len(data) < ipv4HeaderMinLen {
		return Segment{}, fmt.Errorf("ipv4: %w (%d bytes)", core.ErrPacketTooShort, len(data))
	}
	if version := data[0] >> 4; version != 4 {
		return Segment{}, fmt.Errorf("ip version %d: %w", version, core.ErrUnsupportedProto)
	}

	var ip layers.IPv4
	if err := ip.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return Segment{}, fmt.Errorf("ipv4: %w: %v", core.ErrMalformedSegment, err)
	}
	if isIPFragment(&ip) {
		return Segment{}, fmt.Errorf("ipv4 id %d offset %d: %w", ip.Id, ip.FragOffset, core.ErrFragment)
	}

	headerLen := len(ip.Contents)
	segment := data[headerLen:]

	var (
		srcPort, dstPort uint16
		payload          []byte
		err              error
	)
	switch ip.Protocol {
	case layers.IPProtocolTCP:
		srcPort, dstPort, payload, err = decodeTCP(segment)
	case layers.IPProtocolUDP:
		srcPort, dstPort, payload, err = decodeUDP(segment)
	default:
		return Segment{}, fmt.Errorf("ip protocol %d: %w", ip.Protocol, core.ErrUnsupportedProto)
	}
	if err != nil {
		return Segment{}, err
	}

	srcIP, _ := netip.AddrFromSlice(ip.SrcIP.To4())
	dstIP, _ := netip.AddrFromSlice(ip.DstIP.To4())

	seg := Segment{
		Key: core.FlowKey{
			SrcIP:   srcIP,
			DstIP:   dstIP,
			SrcPort: srcPort,
			DstPort: dstPort,
			Proto:   uint8(ip.Protocol),
		},
		TotalLen: ip.Length,
	}
	seg.Payload, seg.Trimmed = trimTrailer(payload, trailerLen(headerLen, len(segment), ip.Length))
	return seg, nil
}

// isIPFragment reports whether the packet is a non-first fragment. Those carry
// no transport header. First fragments are decoded normally.
func isIPFragment(ip *layers.IPv4) bool {
	return ip.FragOffset != 0
}
