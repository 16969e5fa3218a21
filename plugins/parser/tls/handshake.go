package tls

import (
	stdtls "crypto/tls"
	"fmt"

	"golang.org/x/crypto/cryptobyte"

	"firestige.xyz/flowtap/internal/core"
)

const handshakeHeaderLen = 4

// Handshake message types.
const (
	typeClientHello uint8 = 1
	typeServerHello uint8 = 2
)

var handshakeNames = map[uint8]string{
	0:  "hello_request",
	1:  "client_hello",
	2:  "server_hello",
	4:  "new_session_ticket",
	8:  "encrypted_extensions",
	11: "certificate",
	12: "server_key_exchange",
	13: "certificate_request",
	14: "server_hello_done",
	15: "certificate_verify",
	16: "client_key_exchange",
	20: "finished",
	22: "certificate_status",
}

// Extension types.
const (
	extServerName        uint16 = 0
	extALPN              uint16 = 16
	extSupportedVersions uint16 = 43
)

type clientHello struct {
	sni          string
	alpn         []string
	versions     []uint16
	cipherSuites int
}

func (c *clientHello) summary() map[string]any {
	out := map[string]any{
		"legacy_cipher_suites": c.cipherSuites,
	}
	if c.sni != "" {
		out["sni"] = c.sni
	}
	if len(c.alpn) > 0 {
		out["alpn"] = c.alpn
	}
	if len(c.versions) > 0 {
		names := make([]string, 0, len(c.versions))
		for _, v := range c.versions {
			names = append(names, stdtls.VersionName(v))
		}
		out["versions"] = names
	}
	return out
}

type serverHello struct {
	version     uint16
	cipherSuite uint16
}

func (s *serverHello) summary() map[string]any {
	return map[string]any{
		"version":      stdtls.VersionName(s.version),
		"cipher_suite": stdtls.CipherSuiteName(s.cipherSuite),
	}
}

// walkHandshake consumes every complete handshake message buffered on s.
// Messages may span records.
func (p *Parser) walkHandshake(s *stream, dir core.Direction) error {
	consumed := 0
	for len(s.handshake)-consumed >= handshakeHeaderLen {
		input := cryptobyte.String(s.handshake[consumed:])
		var (
			typ    uint8
			length uint32
			body   []byte
		)
		input.ReadUint8(&typ)
		input.ReadUint24(&length)
		if int(length) > p.opts.MaxBuffer {
			return fmt.Errorf("%w: %s handshake message of %d bytes", ErrBufferOverflow, dir, length)
		}
		if !input.ReadBytes(&body, int(length)) {
			break
		}
		consumed += handshakeHeaderLen + int(length)

		name, ok := handshakeNames[typ]
		if !ok {
			name = fmt.Sprintf("unknown(%d)", typ)
		}
		p.handshakes = append(p.handshakes, dir.String()+" "+name)

		switch typ {
		case typeClientHello:
			ch, err := parseClientHello(body)
			if err != nil {
				return err
			}
			p.clientHello = ch
			if p.logger.IsDebugEnabled() {
				p.logger.Debugf("ClientHello sni=%q alpn=%v ciphers=%d", ch.sni, ch.alpn, ch.cipherSuites)
			}
		case typeServerHello:
			sh, err := parseServerHello(body)
			if err != nil {
				return err
			}
			p.serverHello = sh
			if p.logger.IsDebugEnabled() {
				p.logger.Debugf("ServerHello version=%s cipher=%s",
					stdtls.VersionName(sh.version), stdtls.CipherSuiteName(sh.cipherSuite))
			}
		}
	}
	s.handshake = s.handshake[:copy(s.handshake, s.handshake[consumed:])]
	return nil
}

func parseClientHello(body []byte) (*clientHello, error) {
	input := cryptobyte.String(body)
	var (
		version      uint16
		random       []byte
		sessionID    cryptobyte.String
		cipherSuites cryptobyte.String
		compression  cryptobyte.String
	)
	if !input.ReadUint16(&version) ||
		!input.ReadBytes(&random, 32) ||
		!input.ReadUint8LengthPrefixed(&sessionID) ||
		!input.ReadUint16LengthPrefixed(&cipherSuites) ||
		!input.ReadUint8LengthPrefixed(&compression) {
		return nil, fmt.Errorf("%w: malformed ClientHello", ErrNotTLS)
	}

	ch := &clientHello{cipherSuites: len(cipherSuites) / 2}
	if input.Empty() {
		ch.versions = []uint16{version}
		return ch, nil
	}

	var extensions cryptobyte.String
	if !input.ReadUint16LengthPrefixed(&extensions) {
		return nil, fmt.Errorf("%w: malformed ClientHello extensions", ErrNotTLS)
	}
	for !extensions.Empty() {
		var (
			extType uint16
			extData cryptobyte.String
		)
		if !extensions.ReadUint16(&extType) || !extensions.ReadUint16LengthPrefixed(&extData) {
			return nil, fmt.Errorf("%w: malformed ClientHello extension", ErrNotTLS)
		}

		switch extType {
		case extServerName:
			var names cryptobyte.String
			if !extData.ReadUint16LengthPrefixed(&names) {
				return nil, fmt.Errorf("%w: malformed server_name extension", ErrNotTLS)
			}
			for !names.Empty() {
				var (
					nameType uint8
					name     cryptobyte.String
				)
				if !names.ReadUint8(&nameType) || !names.ReadUint16LengthPrefixed(&name) {
					return nil, fmt.Errorf("%w: malformed server_name extension", ErrNotTLS)
				}
				if nameType == 0 {
					ch.sni = string(name)
				}
			}
		case extALPN:
			var protocols cryptobyte.String
			if !extData.ReadUint16LengthPrefixed(&protocols) {
				return nil, fmt.Errorf("%w: malformed ALPN extension", ErrNotTLS)
			}
			for !protocols.Empty() {
				var proto cryptobyte.String
				if !protocols.ReadUint8LengthPrefixed(&proto) {
					return nil, fmt.Errorf("%w: malformed ALPN extension", ErrNotTLS)
				}
				ch.alpn = append(ch.alpn, string(proto))
			}
		case extSupportedVersions:
			var versions cryptobyte.String
			if !extData.ReadUint8LengthPrefixed(&versions) {
				return nil, fmt.Errorf("%w: malformed supported_versions extension", ErrNotTLS)
			}
			for !versions.Empty() {
				var v uint16
				if !versions.ReadUint16(&v) {
					return nil, fmt.Errorf("%w: malformed supported_versions extension", ErrNotTLS)
				}
				if !isGREASE(v) {
					ch.versions = append(ch.versions, v)
				}
			}
		}
	}
	if len(ch.versions) == 0 {
		ch.versions = []uint16{version}
	}
	return ch, nil
}

func parseServerHello(body []byte) (*serverHello, error) {
	input := cryptobyte.String(body)
	var (
		sh          serverHello
		random      []byte
		sessionID   cryptobyte.String
		compression uint8
	)
	if !input.ReadUint16(&sh.version) ||
		!input.ReadBytes(&random, 32) ||
		!input.ReadUint8LengthPrefixed(&sessionID) ||
		!input.ReadUint16(&sh.cipherSuite) ||
		!input.ReadUint8(&compression) {
		return nil, fmt.Errorf("%w: malformed ServerHello", ErrNotTLS)
	}
	if input.Empty() {
		return &sh, nil
	}

	var extensions cryptobyte.String
	if !input.ReadUint16LengthPrefixed(&extensions) {
		return nil, fmt.Errorf("%w: malformed ServerHello extensions", ErrNotTLS)
	}
	for !extensions.Empty() {
		var (
			extType uint16
			extData cryptobyte.String
		)
		if !extensions.ReadUint16(&extType) || !extensions.ReadUint16LengthPrefixed(&extData) {
			return nil, fmt.Errorf("%w: malformed ServerHello extension", ErrNotTLS)
		}
		// TLS 1.3 negotiates through supported_versions, legacy_version stays 1.2.
		if extType == extSupportedVersions && !extData.ReadUint16(&sh.version) {
			return nil, fmt.Errorf("%w: malformed supported_versions extension", ErrNotTLS)
		}
	}
	return &sh, nil
}

// isGREASE reports RFC 8701 reserved values such as 0x0a0a.
func isGREASE(v uint16) bool {
	return v&0x0f0f == 0x0a0a && v>>8 == v&0xff
}

func alertLevel(b uint8) string {
	switch b {
	case 1:
		return "warning"
	case 2:
		return "fatal"
	}
	return fmt.Sprintf("level(%d)", b)
}

var alertNames = map[uint8]string{
	0:   "close_notify",
	10:  "unexpected_message",
	20:  "bad_record_mac",
	22:  "record_overflow",
	40:  "handshake_failure",
	42:  "bad_certificate",
	43:  "unsupported_certificate",
	44:  "certificate_revoked",
	45:  "certificate_expired",
	46:  "certificate_unknown",
	47:  "illegal_parameter",
	48:  "unknown_ca",
	49:  "access_denied",
	50:  "decode_error",
	51:  "decrypt_error",
	70:  "protocol_version",
	71:  "insufficient_security",
	80:  "internal_error",
	86:  "inappropriate_fallback",
	90:  "user_canceled",
	109: "missing_extension",
	110: "unsupported_extension",
	112: "unrecognized_name",
	116: "certificate_required",
	120: "no_application_protocol",
}

func alertName(b uint8) string {
	if name, ok := alertNames[b]; ok {
		return name
	}
	return fmt.Sprintf("alert(%d)", b)
}
