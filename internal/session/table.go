package session

import (
	"fmt"

	"firestige.xyz/flowtap/internal/core"
	"firestige.xyz/flowtap/internal/parser"
)

// Creator builds a parser by name. *parser.Registry satisfies it.
type Creator interface {
	Create(name string) (parser.Parser, error)
}

// Table maps flow keys to sessions. It is owned by a single goroutine and is
// never pruned during a run.
type Table struct {
	creator    Creator
	parserName string

	sessions map[core.FlowKey]*Session
	order    []*Session
}

// NewTable returns an empty table that creates parsers named parserName.
func NewTable(creator Creator, parserName string) *Table {
	return &Table{
		creator:    creator,
		parserName: parserName,
		sessions:   make(map[core.FlowKey]*Session),
	}
}

// Resolve maps a packet key to its session and direction. A direct hit is
// Forward, a hit on the reversed key is Reverse; otherwise a new session is
// created under key and the packet is Forward. The only error is a failure to
// create the parser, which leaves the table unchanged.
func (t *Table) Resolve(key core.FlowKey) (*Session, core.Direction, error) {
	if s, ok := t.sessions[key]; ok {
		return s, core.Forward, nil
	}
	if s, ok := t.sessions[key.Reverse()]; ok {
		return s, core.Reverse, nil
	}

	p, err := t.creator.Create(t.parserName)
	if err != nil {
		return nil, core.Forward, fmt.Errorf("create session %s: %w", key, err)
	}
	s := &Session{
		Key:        key,
		ParserName: t.parserName,
		Parser:     p,
		Index:      len(t.order),
	}
	t.sessions[key] = s
	t.order = append(t.order, s)
	return s, core.Forward, nil
}

// Get looks a session up by its creation key only.
func (t *Table) Get(key core.FlowKey) (*Session, bool) {
	s, ok := t.sessions[key]
	return s, ok
}

func (t *Table) Len() int {
	return len(t.sessions)
}

// Sessions returns all sessions in creation order.
func (t *Table) Sessions() []*Session {
	out := make([]*Session, len(t.order))
	copy(out, t.order)
	return out
}
