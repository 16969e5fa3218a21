// Package file reads frames from an offline capture in pcap or pcapng format.
package file

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/flowtap/internal/core"
)

const (
	FormatPcap   = "pcap"
	FormatPcapNG = "pcapng"
)

// pcapng files start with a Section Header Block.
var pcapngMagic = []byte{0x0A, 0x0D, 0x0D, 0x0A}

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

type Source struct {
	path   string
	format string
	file   *os.File
	reader packetReader
}

// Open opens a capture file and reads its header. The link type is known as
// soon as Open returns, before any packet is read.
func Open(path string) (*Source, error) {
	if path == "" {
		return nil, core.ErrNoInput
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file %s: %w", path, err)
	}

	br := bufio.NewReader(f)
	magic, err := br.Peek(4)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read capture header %s: %w", path, err)
	}

	s := &Source{path: path, file: f}
	if bytes.Equal(magic, pcapngMagic) {
		s.format = FormatPcapNG
		s.reader, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		s.format = FormatPcap
		s.reader, err = pcapgo.NewReader(br)
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to parse %s header %s: %w", s.format, path, err)
	}
	return s, nil
}

// ReadPacket returns the next frame, or io.EOF at the end of the capture.
// Each call returns a fresh buffer.
func (s *Source) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	if s.reader == nil {
		return nil, gopacket.CaptureInfo{}, fmt.Errorf("file source closed")
	}

	data, ci, err := s.reader.ReadPacketData()
	if err != nil {
		if err == io.EOF {
			return nil, gopacket.CaptureInfo{}, io.EOF
		}
		return nil, gopacket.CaptureInfo{}, fmt.Errorf("failed to read packet: %w", err)
	}
	return data, ci, nil
}

func (s *Source) LinkType() layers.LinkType {
	if s.reader == nil {
		return layers.LinkTypeNull
	}
	return s.reader.LinkType()
}

// Format reports "pcap" or "pcapng".
func (s *Source) Format() string {
	return s.format
}

func (s *Source) Path() string {
	return s.path
}

func (s *Source) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	s.reader = nil
	return err
}
