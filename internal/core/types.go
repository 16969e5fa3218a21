// Package core defines core types with zero external dependencies.
package core

import (
	"fmt"
	"net/netip"
	"strconv"
)

// IP protocol numbers handled by the pipeline.
const (
	ProtoTCP uint8 = 6
	ProtoUDP uint8 = 17
)

// FlowKey identifies a flow by its 5-tuple. It is a comparable value type and
// is used directly as a map key.
type FlowKey struct {
	SrcIP   netip.Addr
	DstIP   netip.Addr
	SrcPort uint16
	DstPort uint16
	Proto   uint8
}

// Reverse returns the key of the opposite direction: source and destination
// endpoints swapped, protocol unchanged.
func (k FlowKey) Reverse() FlowKey {
	return FlowKey{
		SrcIP:   k.DstIP,
		DstIP:   k.SrcIP,
		SrcPort: k.DstPort,
		DstPort: k.SrcPort,
		Proto:   k.Proto,
	}
}

// String renders the key as "tcp 10.0.0.1:1234 -> 10.0.0.2:443".
func (k FlowKey) String() string {
	return fmt.Sprintf("%s %s -> %s", ProtoName(k.Proto),
		netip.AddrPortFrom(k.SrcIP, k.SrcPort), netip.AddrPortFrom(k.DstIP, k.DstPort))
}

// ProtoName returns a lowercase name for well-known protocol numbers.
func ProtoName(proto uint8) string {
	switch proto {
	case ProtoTCP:
		return "tcp"
	case ProtoUDP:
		return "udp"
	default:
		return "proto-" + strconv.Itoa(int(proto))
	}
}

// Direction tells a parser which endpoint sent a chunk of payload.
type Direction uint8

const (
	// Forward is the orientation of the packet that created the session.
	Forward Direction = 0
	// Reverse is the opposite orientation.
	Reverse Direction = 1
)

func (d Direction) String() string {
	if d == Reverse {
		return "reverse"
	}
	return "forward"
}
