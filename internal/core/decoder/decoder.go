// Package decoder implements link-layer demultiplexing and L3-L4 decoding.
package decoder

import (
	"fmt"

	"github.com/google/gopacket/layers"

	"firestige.xyz/flowtap/internal/core"
)

// Link-layer types accepted by SelectDemux.
// See http://www.tcpdump.org/linktypes.html
const (
	LinkTypeEthernet = layers.LinkTypeEthernet // 1
	LinkTypeLinuxSLL = layers.LinkTypeLinuxSLL // 113
	LinkTypeNFLog    = layers.LinkType(239)
)

// DemuxFunc returns the slice of a captured frame that starts at the IP header.
type DemuxFunc func(frame []byte) ([]byte, error)

// Options tunes demultiplexing.
type Options struct {
	// NflogStrict makes a NFLOG frame without payload attribute fatal.
	// When false such frames are skipped.
	NflogStrict bool
}

// DefaultOptions returns the reference behavior.
func DefaultOptions() Options {
	return Options{NflogStrict: true}
}

// SelectDemux chooses the demultiplexer for a capture's link type. It is
// called once, before the first frame is read.
func SelectDemux(linkType layers.LinkType, opts Options) (DemuxFunc, error) {
	switch linkType {
	case LinkTypeEthernet:
		return demuxEthernet, nil
	case LinkTypeLinuxSLL:
		return demuxLinuxSLL, nil
	case LinkTypeNFLog:
		if opts.NflogStrict {
			return NflogPayload, nil
		}
		return lenientNflog, nil
	default:
		return nil, fmt.Errorf("%w: %d", core.ErrUnsupportedLinkType, linkType)
	}
}
