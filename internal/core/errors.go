// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors. Callers wrap them with fmt.Errorf("...: %w") and test with errors.Is.
var (
	// Startup errors
	ErrNoInput             = errors.New("flowtap: no capture file given")
	ErrUnsupportedLinkType = errors.New("flowtap: unsupported link-layer type")
	ErrConfigInvalid       = errors.New("flowtap: invalid configuration")

	// Parser registry errors
	ErrUnknownParser       = errors.New("flowtap: unknown parser type")
	ErrParserAlreadyExists = errors.New("flowtap: parser already registered")

	// NFLOG encapsulation errors
	ErrMalformedHeader = errors.New("flowtap: malformed nflog header")
	ErrMissingPayload  = errors.New("flowtap: nflog header has no payload attribute")

	// Per-frame errors, the frame is skipped
	ErrPacketTooShort   = errors.New("flowtap: packet too short")
	ErrUnsupportedProto = errors.New("flowtap: unsupported protocol")
	ErrMalformedSegment = errors.New("flowtap: malformed transport segment")
	ErrFragment         = errors.New("flowtap: non-first ip fragment")
	ErrFiltered         = errors.New("flowtap: frame rejected by filter")
	ErrSkipped          = errors.New("flowtap: frame skipped")
)

var recoverable = []error{
	ErrPacketTooShort,
	ErrUnsupportedProto,
	ErrMalformedSegment,
	ErrFragment,
	ErrFiltered,
	ErrSkipped,
}

// Recoverable reports whether err only concerns the frame being processed.
// Any other error aborts the run.
func Recoverable(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range recoverable {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// SkipReason maps a recoverable error to a short label used in logs and metrics.
func SkipReason(err error) string {
	switch {
	case errors.Is(err, ErrFiltered):
		return "filtered"
	case errors.Is(err, ErrFragment):
		return "fragment"
	case errors.Is(err, ErrPacketTooShort):
		return "short_frame"
	case errors.Is(err, ErrUnsupportedProto):
		return "unsupported_protocol"
	case errors.Is(err, ErrMalformedSegment):
		return "malformed_segment"
	case errors.Is(err, ErrMissingPayload):
		return "missing_payload"
	default:
		return "other"
	}
}
