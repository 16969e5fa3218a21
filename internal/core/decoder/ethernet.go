// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"
	"fmt"

	"firestige.xyz/flowtap/internal/core"
)

const (
	// Ethernet constants
	ethernetHeaderLen = 14
	vlanHeaderLen     = 4

	// Linux cooked capture (SLL) header
	linuxSLLHeaderLen = 16

	etherTypeVLAN = 0x8100
	etherTypeQinQ = 0x88A8
)

// demuxEthernet skips the Ethernet header and any 802.1Q/802.1ad tags.
func demuxEthernet(frame []byte) ([]byte, error) {
	if len(frame) < ethernetHeaderLen {
		return nil, fmt.Errorf("ethernet: %w (%d bytes)", core.ErrPacketTooShort, len(frame))
	}

	etherType := binary.BigEndian.Uint16(frame[12:14])
	offset := ethernetHeaderLen

	// Tags can be nested (QinQ)
	for etherType == etherTypeVLAN || etherType == etherTypeQinQ {
		if len(frame) < offset+vlanHeaderLen {
			return nil, fmt.Errorf("ethernet vlan tag: %w", core.ErrPacketTooShort)
		}
		// 2 bytes TCI + 2 bytes inner EtherType
		etherType = binary.BigEndian.Uint16(frame[offset+2 : offset+4])
		offset += vlanHeaderLen
	}

	return frame[offset:], nil
}

// demuxLinuxSLL skips the fixed Linux cooked capture header.
// See http://www.tcpdump.org/linktypes/LINKTYPE_LINUX_SLL.html
func demuxLinuxSLL(frame []byte) ([]byte, error) {
	if len(frame) < linuxSLLHeaderLen {
		return nil, fmt.Errorf("linux sll: %w (%d bytes)", core.ErrPacketTooShort, len(frame))
	}
	return frame[linuxSLLHeaderLen:], nil
}
