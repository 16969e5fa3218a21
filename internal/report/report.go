// Package report renders the session table as a YAML document after a run.
package report

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"firestige.xyz/flowtap/internal/core"
	"firestige.xyz/flowtap/internal/session"
)

// Stdout is the path that selects standard output.
const Stdout = "-"

type Report struct {
	Capture  string         `yaml:"capture"`
	LinkType string         `yaml:"link_type"`
	Parser   string         `yaml:"parser"`
	Frames   Frames         `yaml:"frames"`
	Sessions []SessionEntry `yaml:"sessions"`
}

type Frames struct {
	Read       uint64            `yaml:"read"`
	Dispatched uint64            `yaml:"dispatched"`
	Skipped    map[string]uint64 `yaml:"skipped,omitempty"` // by reason
}

type SessionEntry struct {
	Index     int            `yaml:"index"`
	Flow      string         `yaml:"flow"`
	Protocol  string         `yaml:"protocol"`
	Parser    string         `yaml:"parser"`
	Forward   DirectionStats `yaml:"forward"`
	Reverse   DirectionStats `yaml:"reverse"`
	FirstSeen string         `yaml:"first_seen,omitempty"`
	LastSeen  string         `yaml:"last_seen,omitempty"`
	Errors    uint64         `yaml:"parser_errors,omitempty"`
	Summary   map[string]any `yaml:"summary,omitempty"`
}

type DirectionStats struct {
	Packets uint64 `yaml:"packets"`
	Bytes   uint64 `yaml:"bytes"`
	Chunks  uint64 `yaml:"chunks"`
}

// Build collects sessions in creation order.
func Build(capture, linkType, parser string, frames Frames, sessions []*session.Session) *Report {
	r := &Report{
		Capture:  capture,
		LinkType: linkType,
		Parser:   parser,
		Frames:   frames,
		Sessions: make([]SessionEntry, 0, len(sessions)),
	}
	for _, s := range sessions {
		r.Sessions = append(r.Sessions, SessionEntry{
			Index:     s.Index,
			Flow:      s.Key.String(),
			Protocol:  core.ProtoName(s.Key.Proto),
			Parser:    s.ParserName,
			Forward:   directionStats(s, core.Forward),
			Reverse:   directionStats(s, core.Reverse),
			FirstSeen: formatTime(s.FirstSeen),
			LastSeen:  formatTime(s.LastSeen),
			Errors:    s.Errors,
			Summary:   s.Summary(),
		})
	}
	return r
}

func directionStats(s *session.Session, dir core.Direction) DirectionStats {
	return DirectionStats{Packets: s.Packets[dir], Bytes: s.Bytes[dir], Chunks: s.Pushed[dir]}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// Encode writes the report as YAML.
func Encode(w io.Writer, r *Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return enc.Close()
}

// Write encodes the report to path, or to standard output when path is "-".
func Write(path string, r *Report) error {
	if path == Stdout {
		return Encode(os.Stdout, r)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := Encode(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
