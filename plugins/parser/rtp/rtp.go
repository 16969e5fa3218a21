// Package rtp implements an RTP/RTCP parser for UDP media flows.
//
// Every datagram is checked against the fixed RTP or RTCP header (V=2,
// payload type range, minimum length). RTP packets are grouped by SSRC to
// count packets, payload types and sequence gaps. RTCP is distinguished
// from RTP by payload-type values 200-209 (SR, RR, SDES, BYE, ...).
package rtp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"firestige.xyz/flowtap/internal/core"
	flowparser "firestige.xyz/flowtap/internal/parser"
)

const Name = "rtp"

var ErrNotRTP = errors.New("not RTP/RTCP")

// rtcpPayloadTypeMin / Max define the RTCP PT range per RFC 5761 / RFC 3550.
const (
	rtcpPayloadTypeMin = 200
	rtcpPayloadTypeMax = 209

	rtpMinLength  = 12 // Fixed RTP header size (RFC 3550 §5.1)
	rtcpMinLength = 8  // Fixed RTCP common header + sender SSRC
)

var rtcpNames = map[uint8]string{
	200: "sr",
	201: "rr",
	202: "sdes",
	203: "bye",
	204: "app",
	205: "rtpfb",
	206: "psfb",
	207: "xr",
}

// stream holds the counters of one SSRC.
type stream struct {
	dir          core.Direction
	packets      uint64
	payloadTypes map[uint8]uint64
	markers      uint64
	lost         uint64 // sum of forward sequence gaps
	started      bool
	lastSeq      uint16
}

type Parser struct {
	streams map[uint32]*stream
	rtcp    map[string]uint64
	notRTP  uint64
}

func New(options map[string]any) (flowparser.Parser, error) {
	// No options yet, DecodeOptions still rejects unknown keys.
	if err := flowparser.DecodeOptions(options, &struct{}{}); err != nil {
		return nil, err
	}
	return &Parser{
		streams: make(map[uint32]*stream),
		rtcp:    make(map[string]uint64),
	}, nil
}

// Parse handles one datagram. A chunk that is neither RTP nor RTCP is
// counted and returned as ErrNotRTP.
func (p *Parser) Parse(data []byte, dir core.Direction) error {
	if !looksLikeRTPorRTCP(data) {
		p.notRTP++
		return fmt.Errorf("%w: %d bytes", ErrNotRTP, len(data))
	}

	// Byte 1: M(1) PT(7) for RTP; PT(8) for RTCP
	if pt := data[1]; pt >= rtcpPayloadTypeMin && pt <= rtcpPayloadTypeMax {
		p.handleRTCP(pt)
		return nil
	}
	p.handleRTP(data, dir)
	return nil
}

// handleRTP reads the 12-byte fixed RTP header.
func (p *Parser) handleRTP(b []byte, dir core.Direction) {
	pt := b[1] & 0x7F
	marker := b[1]&0x80 != 0
	seq := binary.BigEndian.Uint16(b[2:4])
	ssrc := binary.BigEndian.Uint32(b[8:12])

	s, ok := p.streams[ssrc]
	if !ok {
		s = &stream{dir: dir, payloadTypes: make(map[uint8]uint64)}
		p.streams[ssrc] = s
	}
	s.packets++
	s.payloadTypes[pt]++
	if marker {
		s.markers++
	}

	if s.started {
		// Wrapping distance; reordered and duplicate packets fall in the upper half.
		if gap := seq - s.lastSeq; gap != 0 && gap < 0x8000 {
			s.lost += uint64(gap - 1)
			s.lastSeq = seq
		}
	} else {
		s.started = true
		s.lastSeq = seq
	}
}

func (p *Parser) handleRTCP(pt uint8) {
	name, ok := rtcpNames[pt]
	if !ok {
		name = strconv.Itoa(int(pt))
	}
	p.rtcp[name]++
}

// looksLikeRTPorRTCP returns true when the payload passes lightweight header checks.
//
// Rules (applies to both RTP and RTCP, the V=2 check is shared):
//   - At least 8 bytes present (shorter RTCP min-size).
//   - First 2 bits (V field) == 0b10 (version 2).
//   - Byte 1 is 200-209 for RTCP, otherwise the packet must hold a full RTP header.
func looksLikeRTPorRTCP(payload []byte) bool {
	if len(payload) < rtcpMinLength {
		return false
	}
	if v := (payload[0] >> 6) & 0x3; v != 2 {
		return false
	}
	if pt := payload[1]; pt >= rtcpPayloadTypeMin && pt <= rtcpPayloadTypeMax {
		return true
	}
	return len(payload) >= rtpMinLength
}

// Summary lists RTP streams ordered by SSRC and RTCP packet counts by type.
func (p *Parser) Summary() map[string]any {
	ssrcs := make([]uint32, 0, len(p.streams))
	for ssrc := range p.streams {
		ssrcs = append(ssrcs, ssrc)
	}
	sort.Slice(ssrcs, func(i, j int) bool { return ssrcs[i] < ssrcs[j] })

	streams := make([]map[string]any, 0, len(ssrcs))
	for _, ssrc := range ssrcs {
		s := p.streams[ssrc]
		types := make(map[string]uint64, len(s.payloadTypes))
		for pt, n := range s.payloadTypes {
			types[strconv.Itoa(int(pt))] = n
		}
		streams = append(streams, map[string]any{
			"ssrc":          fmt.Sprintf("0x%08X", ssrc),
			"direction":     s.dir.String(),
			"packets":       s.packets,
			"payload_types": types,
			"markers":       s.markers,
			"lost":          s.lost,
		})
	}

	summary := map[string]any{"streams": streams}
	if len(p.rtcp) > 0 {
		summary["rtcp"] = p.rtcp
	}
	if p.notRTP > 0 {
		summary["not_rtp"] = p.notRTP
	}
	return summary
}
