// Package parser defines the application-layer parser contract and the
// registry that creates one parser instance per session.
package parser

import "firestige.xyz/flowtap/internal/core"

// Parser consumes the reassembled payload chunks of one session.
// Parse is called only with non-empty data, in capture order, and dir tells
// which side of the conversation sent the chunk.
type Parser interface {
	Parse(data []byte, dir core.Direction) error
}

// Summarizer is implemented by parsers that can describe what they saw.
// The summary ends up in the session report.
type Summarizer interface {
	Summary() map[string]any
}

// Constructor builds a fresh parser from its decoded option map. options is
// never nil.
type Constructor func(options map[string]any) (Parser, error)
