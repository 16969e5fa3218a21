package rtp

import (
	"encoding/binary"
	"errors"
	"testing"

	"firestige.xyz/flowtap/internal/core"
)

// ---------------------------------------------------------------------------
// Packet builders
// ---------------------------------------------------------------------------

// makeRTPPayload builds a minimal 12-byte RTP header.
//
//	byte 0: V=2  P=0  X=ext  CC=0  →  0x80 | (ext << 4)
//	byte 1: M=marker  PT=pt
//	bytes 2-3: sequence
//	bytes 4-7: timestamp
//	bytes 8-11: ssrc
func makeRTPPayload(pt uint8, seq uint16, ts uint32, ssrc uint32, marker bool, ext bool) []byte {
	b := make([]byte, 12)
	b[0] = 0x80
	if ext {
		b[0] |= 0x10
	}
	b[1] = pt & 0x7F
	if marker {
		b[1] |= 0x80
	}
	binary.BigEndian.PutUint16(b[2:4], seq)
	binary.BigEndian.PutUint32(b[4:8], ts)
	binary.BigEndian.PutUint32(b[8:12], ssrc)
	return b
}

// makeRTCPPayload builds a minimal 8-byte RTCP SR header.
//
//	byte 0: V=2  P=0  RC=0  →  0x80
//	byte 1: PT (200=SR, 201=RR, …)
//	bytes 2-3: length (words - 1)
//	bytes 4-7: SSRC of sender
func makeRTCPPayload(pt uint8, ssrc uint32) []byte {
	b := make([]byte, 8)
	b[0] = 0x80 // V=2
	b[1] = pt
	binary.BigEndian.PutUint16(b[2:4], 1) // length in 32-bit words minus one
	binary.BigEndian.PutUint32(b[4:8], ssrc)
	return b
}

func newParser(t *testing.T) *Parser {
	t.Helper()
	p, err := New(map[string]any{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p.(*Parser)
}

// ---------------------------------------------------------------------------
// Parse
// ---------------------------------------------------------------------------

func TestParse_RTPStreams(t *testing.T) {
	p := newParser(t)

	packets := []struct {
		payload []byte
		dir     core.Direction
	}{
		{makeRTPPayload(0, 100, 160, 0x11111111, true, false), core.Forward},
		{makeRTPPayload(0, 101, 320, 0x11111111, false, false), core.Forward},
		{makeRTPPayload(8, 500, 160, 0x22222222, false, false), core.Reverse},
		{makeRTPPayload(0, 104, 800, 0x11111111, false, false), core.Forward}, // 102, 103 lost
		{makeRTPPayload(0, 103, 640, 0x11111111, false, false), core.Forward}, // late
		{makeRTPPayload(101, 105, 960, 0x11111111, false, true), core.Forward},
	}
	for i, pkt := range packets {
		if err := p.Parse(pkt.payload, pkt.dir); err != nil {
			t.Fatalf("Parse(%d) error = %v", i, err)
		}
	}

	streams := p.Summary()["streams"].([]map[string]any)
	if len(streams) != 2 {
		t.Fatalf("len(streams) = %d; want 2", len(streams))
	}

	first := streams[0]
	if first["ssrc"] != "0x11111111" || first["direction"] != "forward" {
		t.Errorf("first stream = %v", first)
	}
	if first["packets"] != uint64(5) {
		t.Errorf("packets = %v; want 5", first["packets"])
	}
	if first["markers"] != uint64(1) {
		t.Errorf("markers = %v; want 1", first["markers"])
	}
	if first["lost"] != uint64(2) {
		t.Errorf("lost = %v; want 2", first["lost"])
	}
	types := first["payload_types"].(map[string]uint64)
	if types["0"] != 4 || types["101"] != 1 {
		t.Errorf("payload_types = %v", types)
	}

	second := streams[1]
	if second["ssrc"] != "0x22222222" || second["direction"] != "reverse" {
		t.Errorf("second stream = %v", second)
	}
}

func TestParse_SequenceWrap(t *testing.T) {
	p := newParser(t)
	for _, seq := range []uint16{65534, 65535, 0, 2} {
		if err := p.Parse(makeRTPPayload(0, seq, 0, 1, false, false), core.Forward); err != nil {
			t.Fatalf("Parse(seq=%d) error = %v", seq, err)
		}
	}
	if lost := p.streams[1].lost; lost != 1 {
		t.Errorf("lost = %d; want 1", lost)
	}
}

func TestParse_RTCPAllTypes(t *testing.T) {
	p := newParser(t)
	for pt := uint8(200); pt <= 209; pt++ {
		if err := p.Parse(makeRTCPPayload(pt, 0xAABBCCDD), core.Reverse); err != nil {
			t.Fatalf("Parse(PT=%d) error = %v", pt, err)
		}
	}

	summary := p.Summary()
	rtcp := summary["rtcp"].(map[string]uint64)
	for _, name := range []string{"sr", "rr", "sdes", "bye", "app", "rtpfb", "psfb", "xr", "208", "209"} {
		if rtcp[name] != 1 {
			t.Errorf("rtcp[%s] = %d; want 1", name, rtcp[name])
		}
	}
	if streams := summary["streams"].([]map[string]any); len(streams) != 0 {
		t.Errorf("RTCP must not create RTP streams, got %v", streams)
	}
}

func TestParse_NotRTP(t *testing.T) {
	p := newParser(t)

	err := p.Parse([]byte("INVITE sip:bob@example.com SIP/2.0"), core.Forward)
	if !errors.Is(err, ErrNotRTP) {
		t.Errorf("Parse() error = %v; want ErrNotRTP", err)
	}
	// RTP version but shorter than the fixed header
	err = p.Parse(makeRTPPayload(0, 1, 100, 1, false, false)[:10], core.Forward)
	if !errors.Is(err, ErrNotRTP) {
		t.Errorf("Parse() error = %v; want ErrNotRTP", err)
	}

	if n := p.Summary()["not_rtp"]; n != uint64(2) {
		t.Errorf("not_rtp = %v; want 2", n)
	}
}

func TestNew_RejectsOptions(t *testing.T) {
	_, err := New(map[string]any{"flow_registry": true})
	if !errors.Is(err, core.ErrConfigInvalid) {
		t.Errorf("New() error = %v; want ErrConfigInvalid", err)
	}
}

// ---------------------------------------------------------------------------
// looksLikeRTPorRTCP unit tests
// ---------------------------------------------------------------------------

func TestLooksLikeRTPorRTCP(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    bool
	}{
		{
			name:    "valid RTP PT=0",
			payload: makeRTPPayload(0, 1, 100, 0x12345678, false, false),
			want:    true,
		},
		{
			name:    "valid RTP PT=127 (max dynamic)",
			payload: makeRTPPayload(127, 1, 100, 0x12345678, false, false),
			want:    true,
		},
		{
			name:    "valid RTCP SR (PT=200)",
			payload: makeRTCPPayload(200, 0xAABBCCDD),
			want:    true,
		},
		{
			name:    "valid RTCP BYE (PT=203)",
			payload: makeRTCPPayload(203, 0xAABBCCDD),
			want:    true,
		},
		{
			name:    "too short (7 bytes)",
			payload: []byte{0x80, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00},
			want:    false,
		},
		{
			name:    "RTP header cut at 8 bytes",
			payload: makeRTPPayload(0, 1, 100, 0, false, false)[:8],
			want:    false,
		},
		{
			name:    "wrong version (V=0)",
			payload: append([]byte{0x00}, makeRTPPayload(0, 1, 100, 0, false, false)[1:]...),
			want:    false,
		},
		{
			name:    "wrong version (V=1)",
			payload: append([]byte{0x40}, makeRTPPayload(0, 1, 100, 0, false, false)[1:]...),
			want:    false,
		},
		{
			// byte 1 = 0x80 means M=1 PT=0 (PCMU), V=2 in byte 0, valid RTP.
			name:    "marker=1 PT=0 is valid RTP",
			payload: makeRTPPayload(0, 1, 100, 0, true, false),
			want:    true,
		},
		{
			name:    "empty payload",
			payload: []byte{},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := looksLikeRTPorRTCP(tt.payload)
			if got != tt.want {
				t.Errorf("looksLikeRTPorRTCP() = %v; want %v", got, tt.want)
			}
		})
	}
}
