package decoder

import (
	"encoding/binary"
	"errors"
	"fmt"

	"firestige.xyz/flowtap/internal/core"
)

// See http://www.tcpdump.org/linktypes/LINKTYPE_NFLOG.html
const (
	nflogHeaderLen    = 4
	nflogTLVHeaderLen = 4
	nflogAlignment    = 4

	// NfulaPayload is the attribute carrying the logged packet,
	// from linux/netfilter/nfnetlink_log.h.
	NfulaPayload uint16 = 9
)

// NflogTLV is one attribute record of a NFLOG header.
type NflogTLV struct {
	Length uint16 // includes the 4-byte length+type prefix
	Type   uint16
	Value  []byte
}

// paddedLen is the number of bytes the record occupies on the wire.
func (t NflogTLV) paddedLen() int {
	n := int(t.Length)
	if rem := n % nflogAlignment; rem != 0 {
		n += nflogAlignment - rem
	}
	return n
}

// NflogHeader is the pseudo header that precedes every NFLOG frame.
type NflogHeader struct {
	Family     uint8
	Version    uint8
	ResourceID uint16
	TLVs       []NflogTLV
}

// Len returns the encoded size of the header, padding included.
func (h NflogHeader) Len() int {
	n := nflogHeaderLen
	for _, tlv := range h.TLVs {
		n += tlv.paddedLen()
	}
	return n
}

// Attribute returns the value of the first record with the given type.
func (h NflogHeader) Attribute(typ uint16) ([]byte, bool) {
	for _, tlv := range h.TLVs {
		if tlv.Type == typ {
			return tlv.Value, true
		}
	}
	return nil, false
}

// ParseNflog walks a NFLOG header until data is exhausted. Values alias data.
func ParseNflog(data []byte) (NflogHeader, error) {
	if len(data) < nflogHeaderLen {
		return NflogHeader{}, fmt.Errorf("%w: %d bytes, need %d", core.ErrMalformedHeader, len(data), nflogHeaderLen)
	}

	hdr := NflogHeader{
		Family:     data[0],
		Version:    data[1],
		ResourceID: binary.LittleEndian.Uint16(data[2:4]),
	}

	rest := data[nflogHeaderLen:]
	for len(rest) > 0 {
		tlv, n, err := parseNflogTLV(rest)
		if err != nil {
			return NflogHeader{}, fmt.Errorf("record at offset %d: %w", len(data)-len(rest), err)
		}
		hdr.TLVs = append(hdr.TLVs, tlv)
		rest = rest[n:]
	}
	return hdr, nil
}

// parseNflogTLV decodes one record and returns the bytes consumed.
func parseNflogTLV(data []byte) (NflogTLV, int, error) {
	if len(data) < nflogTLVHeaderLen {
		return NflogTLV{}, 0, fmt.Errorf("%w: truncated record prefix", core.ErrMalformedHeader)
	}

	tlv := NflogTLV{
		Length: binary.LittleEndian.Uint16(data[0:2]),
		Type:   binary.LittleEndian.Uint16(data[2:4]),
	}
	if tlv.Length < nflogTLVHeaderLen {
		return NflogTLV{}, 0, fmt.Errorf("%w: record length %d below prefix size", core.ErrMalformedHeader, tlv.Length)
	}
	if int(tlv.Length) > len(data) {
		return NflogTLV{}, 0, fmt.Errorf("%w: record length %d exceeds %d remaining bytes",
			core.ErrMalformedHeader, tlv.Length, len(data))
	}

	tlv.Value = data[nflogTLVHeaderLen:tlv.Length]

	n := tlv.paddedLen()
	if n > len(data) {
		return NflogTLV{}, 0, fmt.Errorf("%w: truncated padding after record type %d", core.ErrMalformedHeader, tlv.Type)
	}
	return tlv, n, nil
}

// NflogPayload returns the network-layer packet carried by a NFLOG frame.
func NflogPayload(frame []byte) ([]byte, error) {
	hdr, err := ParseNflog(frame)
	if err != nil {
		return nil, fmt.Errorf("nflog: %w", err)
	}
	payload, ok := hdr.Attribute(NfulaPayload)
	if !ok {
		return nil, fmt.Errorf("nflog: %w", core.ErrMissingPayload)
	}
	return payload, nil
}

// lenientNflog turns a missing payload attribute into a per-frame skip.
// Malformed headers stay fatal.
func lenientNflog(frame []byte) ([]byte, error) {
	payload, err := NflogPayload(frame)
	if err != nil && !errors.Is(err, core.ErrMalformedHeader) {
		return nil, fmt.Errorf("%w: %w", core.ErrSkipped, err)
	}
	return payload, err
}
