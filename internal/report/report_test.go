package report

import (
	"bytes"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"firestige.xyz/flowtap/internal/core"
	"firestige.xyz/flowtap/internal/session"
)

type summarized struct{}

func (summarized) Parse([]byte, core.Direction) error { return nil }
func (summarized) Summary() map[string]any {
	return map[string]any{"sni": "example.com", "records": 4}
}

func sampleSessions() []*session.Session {
	key := core.FlowKey{
		SrcIP:   netip.MustParseAddr("10.0.0.1"),
		DstIP:   netip.MustParseAddr("10.0.0.2"),
		SrcPort: 40000,
		DstPort: 443,
		Proto:   core.ProtoTCP,
	}
	s := &session.Session{Key: key, ParserName: "tls", Parser: summarized{}}
	t0 := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	s.Account(core.Forward, 100, t0)
	s.Account(core.Reverse, 200, t0.Add(time.Second))
	s.Pushed = [2]uint64{1, 1}
	return []*session.Session{s}
}

func TestBuild(t *testing.T) {
	r := Build("test.pcap", "Ethernet", "tls", Frames{Read: 3, Dispatched: 2, Skipped: map[string]uint64{"fragment": 1}}, sampleSessions())

	require.Len(t, r.Sessions, 1)
	e := r.Sessions[0]
	assert.Equal(t, "tcp 10.0.0.1:40000 -> 10.0.0.2:443", e.Flow)
	assert.Equal(t, "tcp", e.Protocol)
	assert.Equal(t, DirectionStats{Packets: 1, Bytes: 100, Chunks: 1}, e.Forward)
	assert.Equal(t, DirectionStats{Packets: 1, Bytes: 200, Chunks: 1}, e.Reverse)
	assert.Equal(t, "2024-01-02T03:04:05Z", e.FirstSeen)
	assert.Equal(t, "2024-01-02T03:04:06Z", e.LastSeen)
	assert.Equal(t, "example.com", e.Summary["sni"])
}

func TestEncode(t *testing.T) {
	r := Build("test.pcap", "Ethernet", "tls", Frames{Read: 2, Dispatched: 2}, sampleSessions())

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, r))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "tls", decoded["parser"])

	sessions, ok := decoded["sessions"].([]any)
	require.True(t, ok)
	require.Len(t, sessions, 1)
	entry := sessions[0].(map[string]any)
	assert.Equal(t, "tcp 10.0.0.1:40000 -> 10.0.0.2:443", entry["flow"])
	assert.Equal(t, map[string]any{"records": 4, "sni": "example.com"}, entry["summary"])
	assert.NotContains(t, buf.String(), "skipped")
	assert.NotContains(t, buf.String(), "parser_errors")
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.yml")
	require.NoError(t, Write(path, Build("x.pcap", "Ethernet", "tls", Frames{}, nil)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "capture: x.pcap")
	assert.Contains(t, string(data), "sessions: []")
}

func TestWriteBadPath(t *testing.T) {
	err := Write(filepath.Join(t.TempDir(), "missing", "report.yml"), &Report{})
	assert.Error(t, err)
}
