package sip

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/flowtap/internal/core"
)

const sdpOffer = "v=0\r\n" +
	"o=alice 2890844526 2890844526 IN IP4 192.168.1.100\r\n" +
	"s=Session\r\n" +
	"c=IN IP4 192.168.1.100\r\n" +
	"t=0 0\r\n" +
	"m=audio 49170 RTP/AVP 0 8\r\n" +
	"a=rtpmap:0 PCMU/8000\r\n" +
	"a=rtpmap:8 PCMA/8000\r\n"

const sdpAnswer = "v=0\r\n" +
	"o=bob 2808844564 2808844564 IN IP4 192.168.1.200\r\n" +
	"s=Session\r\n" +
	"c=IN IP4 192.168.1.200\r\n" +
	"t=0 0\r\n" +
	"m=audio 3456 RTP/AVP 0\r\n" +
	"a=rtpmap:0 PCMU/8000\r\n"

func message(startLine, callID, cseq, body string) []byte {
	var b strings.Builder
	b.WriteString(startLine + "\r\n")
	b.WriteString("Via: SIP/2.0/UDP 192.168.1.100:5060;branch=z9hG4bK776asdhds\r\n")
	b.WriteString("Max-Forwards: 70\r\n")
	b.WriteString("From: \"Alice\" <sip:alice@example.com>;tag=1928301774\r\n")
	b.WriteString("To: <sip:bob@example.com>\r\n")
	b.WriteString("Call-ID: " + callID + "\r\n")
	b.WriteString("CSeq: " + cseq + "\r\n")
	b.WriteString("Contact: <sip:alice@192.168.1.100:5060>\r\n")
	if body != "" {
		b.WriteString("Content-Type: application/sdp\r\n")
	}
	b.WriteString(fmt.Sprintf("Content-Length: %d\r\n\r\n", len(body)))
	b.WriteString(body)
	return []byte(b.String())
}

func newParser(t *testing.T, options map[string]any) *Parser {
	t.Helper()
	if options == nil {
		options = map[string]any{}
	}
	p, err := New(options)
	require.NoError(t, err)
	return p.(*Parser)
}

func TestDetect(t *testing.T) {
	tests := []struct {
		data     string
		expected bool
	}{
		{"INVITE sip:bob@example.com SIP/2.0", true},
		{"SIP/2.0 200 OK", true},
		{"REGISTER sip:example.com SIP/2.0", true},
		{"INVITEX sip:bob SIP/2.0", false},
		{"GET / HTTP/1.1", false},
		{"\x16\x03\x01\x00\x05", false},
		{"BYE", false},
	}

	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			assert.Equal(t, tt.expected, detect([]byte(tt.data)))
		})
	}
}

func TestParseCall(t *testing.T) {
	p := newParser(t, nil)
	callID := "a84b4c76e66710@pc33.example.com"

	steps := []struct {
		data []byte
		dir  core.Direction
	}{
		{message("INVITE sip:bob@example.com SIP/2.0", callID, "314159 INVITE", sdpOffer), core.Forward},
		{message("SIP/2.0 100 Trying", callID, "314159 INVITE", ""), core.Reverse},
		{message("SIP/2.0 200 OK", callID, "314159 INVITE", sdpAnswer), core.Reverse},
		{message("ACK sip:bob@example.com SIP/2.0", callID, "314159 ACK", ""), core.Forward},
		{message("BYE sip:bob@example.com SIP/2.0", callID, "314160 BYE", ""), core.Forward},
		{message("SIP/2.0 200 OK", callID, "314160 BYE", ""), core.Reverse},
	}
	for i, step := range steps {
		require.NoError(t, p.Parse(step.data, step.dir), "step %d", i)
	}

	summary := p.Summary()
	assert.Equal(t, map[string]uint64{"INVITE": 1, "ACK": 1, "BYE": 1}, summary["requests"])
	assert.Equal(t, map[string]uint64{"100": 1, "200": 2}, summary["responses"])

	calls := summary["calls"].([]map[string]any)
	require.Len(t, calls, 1)
	c := calls[0]
	assert.Equal(t, callID, c["call_id"])
	assert.Equal(t, []string{"INVITE", "ACK", "BYE"}, c["methods"])
	assert.Equal(t, true, c["ended"])
	assert.Equal(t, 200, c["final_status"])
	assert.Equal(t, []map[string]any{{
		"media":     "audio",
		"rtp":       "192.168.1.100:49170",
		"rtcp":      "192.168.1.100:49171",
		"codecs":    []string{"PCMU/8000", "PCMA/8000"},
		"direction": "sendrecv",
	}}, c["offer"])
	assert.Equal(t, []map[string]any{{
		"media":     "audio",
		"rtp":       "192.168.1.200:3456",
		"rtcp":      "192.168.1.200:3457",
		"codecs":    []string{"PCMU/8000"},
		"direction": "sendrecv",
	}}, c["answer"])
	assert.NotContains(t, summary, "not_sip")
}

func TestParseSeparateCalls(t *testing.T) {
	p := newParser(t, map[string]any{"call_ttl": "1h"})

	require.NoError(t, p.Parse(message("OPTIONS sip:b@example.com SIP/2.0", "call-b", "1 OPTIONS", ""), core.Forward))
	require.NoError(t, p.Parse(message("REGISTER sip:example.com SIP/2.0", "call-a", "1 REGISTER", ""), core.Forward))
	require.NoError(t, p.Parse(message("SIP/2.0 401 Unauthorized", "call-a", "1 REGISTER", ""), core.Reverse))

	calls := p.Summary()["calls"].([]map[string]any)
	require.Len(t, calls, 2)
	assert.Equal(t, "call-a", calls[0]["call_id"])
	assert.Equal(t, 401, calls[0]["final_status"])
	assert.Equal(t, "call-b", calls[1]["call_id"])
	assert.NotContains(t, calls[1], "final_status")
}

func TestCallTTL(t *testing.T) {
	p := newParser(t, map[string]any{"call_ttl": "20ms"})

	require.NoError(t, p.Parse(message("OPTIONS sip:b@example.com SIP/2.0", "old-call", "1 OPTIONS", ""), core.Forward))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, p.Parse(message("OPTIONS sip:b@example.com SIP/2.0", "new-call", "1 OPTIONS", ""), core.Forward))

	// Expired calls drop out on access, counters stay
	summary := p.Summary()
	calls := summary["calls"].([]map[string]any)
	require.Len(t, calls, 1)
	assert.Equal(t, "new-call", calls[0]["call_id"])
	assert.Equal(t, map[string]uint64{"OPTIONS": 2}, summary["requests"])
}

func TestParseNotSIP(t *testing.T) {
	p := newParser(t, nil)

	err := p.Parse([]byte("GET / HTTP/1.1\r\nHost: example.com\r\n\r\n"), core.Forward)
	assert.ErrorIs(t, err, ErrNotSIP)

	// Recognisable start line, broken message
	err = p.Parse([]byte("SIP/2.0 banana\r\n\r\n"), core.Reverse)
	assert.ErrorIs(t, err, ErrNotSIP)

	assert.Equal(t, uint64(2), p.Summary()["not_sip"])
}

func TestNewInvalidOptions(t *testing.T) {
	_, err := New(map[string]any{"call_ttl": "soon"})
	assert.Error(t, err)

	_, err = New(map[string]any{"unknown": true})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}
