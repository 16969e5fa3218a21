// Package tls follows the unencrypted part of a TLS conversation. Records are
// reassembled per direction, counted by content type, and the handshake is
// walked until ChangeCipherSpec to extract the ClientHello and ServerHello.
package tls

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/cryptobyte"

	"firestige.xyz/flowtap/internal/core"
	"firestige.xyz/flowtap/internal/log"
	flowparser "firestige.xyz/flowtap/internal/parser"
)

const Name = "tls"

var (
	ErrNotTLS         = errors.New("not TLS")
	ErrBufferOverflow = errors.New("tls record buffer overflow")
)

const (
	recordHeaderLen = 5
	maxRecordLen    = 1<<14 + 2048 // TLSCiphertext upper bound

	defaultMaxBuffer = 65536
)

// Record content types.
const (
	recordChangeCipherSpec uint8 = 20
	recordAlert            uint8 = 21
	recordHandshake        uint8 = 22
	recordApplicationData  uint8 = 23
	recordHeartbeat        uint8 = 24
)

var recordNames = map[uint8]string{
	recordChangeCipherSpec: "change_cipher_spec",
	recordAlert:            "alert",
	recordHandshake:        "handshake",
	recordApplicationData:  "application_data",
	recordHeartbeat:        "heartbeat",
}

type Options struct {
	// MaxBuffer bounds the bytes held per direction while waiting for the
	// rest of a record or of a handshake message.
	MaxBuffer int `mapstructure:"max_buffer"`
}

// stream is the reassembly state of one direction.
type stream struct {
	buf       []byte // incomplete record
	handshake []byte // incomplete handshake message
	encrypted bool   // ChangeCipherSpec seen
	failed    bool

	records map[string]uint64
	appData uint64
}

type Parser struct {
	opts    Options
	logger  log.Logger
	streams [2]stream

	handshakes  []string
	alerts      []string
	clientHello *clientHello
	serverHello *serverHello
}

func New(options map[string]any) (flowparser.Parser, error) {
	opts := Options{MaxBuffer: defaultMaxBuffer}
	if err := flowparser.DecodeOptions(options, &opts); err != nil {
		return nil, err
	}
	if opts.MaxBuffer < recordHeaderLen {
		return nil, fmt.Errorf("%w: tls max_buffer %d is too small", core.ErrConfigInvalid, opts.MaxBuffer)
	}

	p := &Parser{
		opts:   opts,
		logger: log.GetLogger().WithField("parser", Name),
	}
	for i := range p.streams {
		p.streams[i].records = make(map[string]uint64)
	}
	return p, nil
}

// Parse appends data to the direction's buffer and consumes every complete
// record. Once a direction fails it ignores further data.
func (p *Parser) Parse(data []byte, dir core.Direction) error {
	if dir > core.Reverse {
		return fmt.Errorf("invalid direction %d", dir)
	}
	s := &p.streams[dir]
	if s.failed {
		return nil
	}

	s.buf = append(s.buf, data...)

	consumed := 0
	for {
		rest := s.buf[consumed:]
		if len(rest) < recordHeaderLen {
			break
		}

		input := cryptobyte.String(rest)
		var (
			typ      uint8
			version  uint16
			length   uint16
			fragment []byte
		)
		input.ReadUint8(&typ)
		input.ReadUint16(&version)
		if _, ok := recordNames[typ]; !ok || version>>8 != 3 {
			s.fail()
			return fmt.Errorf("%w: %s record header %x", ErrNotTLS, dir, rest[:recordHeaderLen])
		}
		input.ReadUint16(&length)
		if int(length) > maxRecordLen {
			s.fail()
			return fmt.Errorf("%w: %s record length %d", ErrNotTLS, dir, length)
		}
		if !input.ReadBytes(&fragment, int(length)) {
			break // wait for the rest of the record
		}

		if err := p.record(s, dir, typ, fragment); err != nil {
			s.fail()
			return err
		}
		consumed += recordHeaderLen + int(length)
	}

	s.buf = s.buf[:copy(s.buf, s.buf[consumed:])]
	if len(s.buf) > p.opts.MaxBuffer {
		s.fail()
		return fmt.Errorf("%w: %s holds %d bytes of an incomplete record", ErrBufferOverflow, dir, len(s.buf))
	}
	return nil
}

func (s *stream) fail() {
	s.failed = true
	s.buf = nil
	s.handshake = nil
}

func (p *Parser) record(s *stream, dir core.Direction, typ uint8, fragment []byte) error {
	s.records[recordNames[typ]]++

	switch typ {
	case recordChangeCipherSpec:
		s.encrypted = true
	case recordAlert:
		if s.encrypted || len(fragment) != 2 {
			p.alerts = append(p.alerts, dir.String()+" encrypted")
			break
		}
		p.alerts = append(p.alerts, fmt.Sprintf("%s %s %s", dir, alertLevel(fragment[0]), alertName(fragment[1])))
	case recordHandshake:
		if s.encrypted {
			break
		}
		s.handshake = append(s.handshake, fragment...)
		return p.walkHandshake(s, dir)
	case recordApplicationData:
		s.appData += uint64(len(fragment))
	}
	return nil
}

// Summary reports record counts per direction, the handshake messages seen
// in the clear, alerts and the negotiated parameters.
func (p *Parser) Summary() map[string]any {
	records := make(map[string]any, 2)
	appData := make(map[string]uint64, 2)
	for dir := core.Forward; dir <= core.Reverse; dir++ {
		s := &p.streams[dir]
		if len(s.records) > 0 {
			records[dir.String()] = s.records
		}
		if s.appData > 0 {
			appData[dir.String()] = s.appData
		}
	}

	summary := map[string]any{"records": records}
	if len(p.handshakes) > 0 {
		summary["handshake"] = p.handshakes
	}
	if len(appData) > 0 {
		summary["application_data_bytes"] = appData
	}
	if len(p.alerts) > 0 {
		summary["alerts"] = p.alerts
	}
	if p.clientHello != nil {
		summary["client_hello"] = p.clientHello.summary()
	}
	if p.serverHello != nil {
		summary["server_hello"] = p.serverHello.summary()
	}
	return summary
}
