// Package session keeps the per-run flow table: one Session per
// bidirectional flow, each owning its own parser instance.
package session

import (
	"time"

	"firestige.xyz/flowtap/internal/core"
	"firestige.xyz/flowtap/internal/parser"
)

// Session is one bidirectional flow. Key is the orientation of the packet
// that created it; that endpoint is always core.Forward.
type Session struct {
	Key        core.FlowKey
	ParserName string
	Parser     parser.Parser
	Index      int // creation order, starting at 0

	Packets   [2]uint64 // indexed by core.Direction
	Bytes     [2]uint64 // payload bytes after trimming
	Pushed    [2]uint64 // non-empty chunks handed to Parser
	Errors    uint64    // Parse errors and recovered panics
	FirstSeen time.Time
	LastSeen  time.Time
}

// Account records one packet seen in dir carrying n payload bytes.
func (s *Session) Account(dir core.Direction, n int, ts time.Time) {
	s.Packets[dir]++
	s.Bytes[dir] += uint64(n)
	if s.FirstSeen.IsZero() || ts.Before(s.FirstSeen) {
		s.FirstSeen = ts
	}
	if ts.After(s.LastSeen) {
		s.LastSeen = ts
	}
}

// Summary returns the parser's own summary, or nil when it has none.
func (s *Session) Summary() map[string]any {
	if sum, ok := s.Parser.(parser.Summarizer); ok {
		return sum.Summary()
	}
	return nil
}
