// Package decoder implements protocol decoding.
package decoder

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/flowtap/internal/core"
)

// decodeTCP decodes the TCP header. The payload is everything after the
// header and options, as captured.
func decodeTCP(segment []byte) (srcPort, dstPort uint16, payload []byte, err error) {
	var tcp layers.TCP
	if err := tcp.DecodeFromBytes(segment, gopacket.NilDecodeFeedback); err != nil {
		return 0, 0, nil, fmt.Errorf("tcp: %w: %v", core.ErrMalformedSegment, err)
	}
	return uint16(tcp.SrcPort), uint16(tcp.DstPort), segment[len(tcp.Contents):], nil
}

// decodeUDP decodes the UDP header. The UDP length field is not applied so
// that trailer trimming works the same way as for TCP.
func decodeUDP(segment []byte) (srcPort, dstPort uint16, payload []byte, err error) {
	var udp layers.UDP
	if err := udp.DecodeFromBytes(segment, gopacket.NilDecodeFeedback); err != nil {
		return 0, 0, nil, fmt.Errorf("udp: %w: %v", core.ErrMalformedSegment, err)
	}
	return uint16(udp.SrcPort), uint16(udp.DstPort), segment[len(udp.Contents):], nil
}

// trailerLen returns the number of captured bytes beyond the IP total length:
// (IP header size + transport segment size) - total length. Zero when the
// capture holds no more than the declared length.
func trailerLen(ipHeaderLen, segmentLen int, totalLen uint16) int {
	actual := ipHeaderLen + segmentLen
	if actual <= int(totalLen) {
		return 0
	}
	return actual - int(totalLen)
}

// trimTrailer removes extra bytes from the payload tail and returns the number
// actually removed.
func trimTrailer(payload []byte, extra int) ([]byte, int) {
	if extra <= 0 {
		return payload, 0
	}
	if extra > len(payload) {
		extra = len(payload)
	}
	return payload[:len(payload)-extra], extra
}
