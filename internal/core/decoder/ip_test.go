package decoder

import (
	"bytes"
	"errors"
	"net"
	"net/netip"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/flowtap/internal/core"
)

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		t.Fatalf("serialize failed: %v", err)
	}
	return buf.Bytes()
}

func buildIPv4(t *testing.T, proto layers.IPProtocol, transport gopacket.SerializableLayer, payload []byte) []byte {
	t.Helper()
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: proto,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(10, 0, 0, 2),
	}
	switch l := transport.(type) {
	case *layers.TCP:
		_ = l.SetNetworkLayerForChecksum(ip)
	case *layers.UDP:
		_ = l.SetNetworkLayerForChecksum(ip)
	}
	return serialize(t, ip, transport, gopacket.Payload(payload))
}

func buildTCP(t *testing.T, payload []byte) []byte {
	return buildIPv4(t, layers.IPProtocolTCP, &layers.TCP{
		SrcPort: 40000,
		DstPort: 443,
		Seq:     1,
		ACK:     true,
		PSH:     true,
		Window:  512,
	}, payload)
}

func buildUDP(t *testing.T, payload []byte) []byte {
	return buildIPv4(t, layers.IPProtocolUDP, &layers.UDP{SrcPort: 5060, DstPort: 5061}, payload)
}

func TestDecodeIPv4TCP(t *testing.T) {
	payload := []byte("hello")
	seg, err := DecodeIPv4(buildTCP(t, payload))
	if err != nil {
		t.Fatalf("DecodeIPv4 failed: %v", err)
	}

	expected := core.FlowKey{
		SrcIP:   netip.MustParseAddr("10.0.0.1"),
		DstIP:   netip.MustParseAddr("10.0.0.2"),
		SrcPort: 40000,
		DstPort: 443,
		Proto:   core.ProtoTCP,
	}
	if seg.Key != expected {
		t.Errorf("Expected key %v, got %v", expected, seg.Key)
	}
	if !bytes.Equal(seg.Payload, payload) {
		t.Errorf("Expected payload %q, got %q", payload, seg.Payload)
	}
	if seg.Trimmed != 0 {
		t.Errorf("Expected nothing trimmed, got %d", seg.Trimmed)
	}
	if seg.TotalLen != 20+20+5 {
		t.Errorf("Expected total length 45, got %d", seg.TotalLen)
	}
}

func TestDecodeIPv4UDP(t *testing.T) {
	payload := []byte("INVITE")
	seg, err := DecodeIPv4(buildUDP(t, payload))
	if err != nil {
		t.Fatalf("DecodeIPv4 failed: %v", err)
	}
	if seg.Key.Proto != core.ProtoUDP || seg.Key.SrcPort != 5060 || seg.Key.DstPort != 5061 {
		t.Errorf("Unexpected key %v", seg.Key)
	}
	if !bytes.Equal(seg.Payload, payload) {
		t.Errorf("Expected payload %q, got %q", payload, seg.Payload)
	}
}

func TestDecodeIPv4TrailerTrimming(t *testing.T) {
	payload := []byte("0123456789")
	trailer := []byte{0xDE, 0xAD, 0xBE, 0xEF}

	tests := []struct {
		name  string
		build func(*testing.T, []byte) []byte
	}{
		{"tcp", buildTCP},
		{"udp", buildUDP},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for n := 0; n <= len(trailer); n++ {
				data := append(tt.build(t, payload), trailer[:n]...)

				seg, err := DecodeIPv4(data)
				if err != nil {
					t.Fatalf("DecodeIPv4 failed: %v", err)
				}
				if seg.Trimmed != n {
					t.Errorf("trailer %d: expected %d bytes trimmed, got %d", n, n, seg.Trimmed)
				}
				// Trimming is from the tail only
				if !bytes.Equal(seg.Payload, payload) {
					t.Errorf("trailer %d: expected payload %q, got %q", n, payload, seg.Payload)
				}
			}
		})
	}
}

func TestDecodeIPv4TrailerOnEmptyPayload(t *testing.T) {
	data := append(buildTCP(t, nil), 0x00, 0x00, 0x00, 0x00, 0x00, 0x00)

	seg, err := DecodeIPv4(data)
	if err != nil {
		t.Fatalf("DecodeIPv4 failed: %v", err)
	}
	if len(seg.Payload) != 0 {
		t.Errorf("Expected empty payload after trimming padding, got %x", seg.Payload)
	}
	if seg.Trimmed != 6 {
		t.Errorf("Expected 6 bytes trimmed, got %d", seg.Trimmed)
	}
}

func TestDecodeIPv4Errors(t *testing.T) {
	tcp := buildTCP(t, []byte("x"))

	ipv6 := make([]byte, 40)
	ipv6[0] = 0x60

	icmp := serialize(t,
		&layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolICMPv4,
			SrcIP: net.IPv4(10, 0, 0, 1), DstIP: net.IPv4(10, 0, 0, 2)},
		&layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0)},
	)

	fragment := append([]byte(nil), tcp...)
	fragment[6], fragment[7] = 0x00, 0x10 // fragment offset 16

	shortTCP := append([]byte(nil), tcp[:30]...)
	shortTCP[2], shortTCP[3] = 0x00, 30 // total length matches the capture

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"too short", tcp[:10], core.ErrPacketTooShort},
		{"ipv6", ipv6, core.ErrUnsupportedProto},
		{"icmp", icmp, core.ErrUnsupportedProto},
		{"fragment", fragment, core.ErrFragment},
		{"truncated tcp header", shortTCP, core.ErrMalformedSegment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeIPv4(tt.data)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
			if !core.Recoverable(err) {
				t.Errorf("Expected %v to be recoverable", err)
			}
		})
	}
}
