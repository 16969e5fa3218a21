// Package hexdump logs every payload chunk as a hex dump at debug level.
package hexdump

import (
	"encoding/hex"
	"fmt"

	"firestige.xyz/flowtap/internal/core"
	"firestige.xyz/flowtap/internal/log"
	flowparser "firestige.xyz/flowtap/internal/parser"
)

const Name = "hexdump"

const defaultMaxBytes = 256

type Options struct {
	// MaxBytes truncates each dump, 0 dumps whole chunks.
	MaxBytes int `mapstructure:"max_bytes"`
}

type Parser struct {
	opts   Options
	logger log.Logger

	chunks [2]uint64
	bytes  [2]uint64
}

func New(options map[string]any) (flowparser.Parser, error) {
	opts := Options{MaxBytes: defaultMaxBytes}
	if err := flowparser.DecodeOptions(options, &opts); err != nil {
		return nil, err
	}
	if opts.MaxBytes < 0 {
		return nil, fmt.Errorf("%w: hexdump max_bytes %d is negative", core.ErrConfigInvalid, opts.MaxBytes)
	}
	return &Parser{
		opts:   opts,
		logger: log.GetLogger().WithField("parser", Name),
	}, nil
}

func (p *Parser) Parse(data []byte, dir core.Direction) error {
	if dir > core.Reverse {
		return fmt.Errorf("invalid direction %d", dir)
	}
	p.chunks[dir]++
	p.bytes[dir] += uint64(len(data))

	if !p.logger.IsDebugEnabled() {
		return nil
	}
	dump := data
	if p.opts.MaxBytes > 0 && len(dump) > p.opts.MaxBytes {
		dump = dump[:p.opts.MaxBytes]
	}
	p.logger.WithField("dir", dir).Debugf("%d bytes\n%s", len(data), hex.Dump(dump))
	return nil
}

func (p *Parser) Summary() map[string]any {
	summary := make(map[string]any, 2)
	for dir := core.Forward; dir <= core.Reverse; dir++ {
		if p.chunks[dir] == 0 {
			continue
		}
		summary[dir.String()] = map[string]uint64{
			"chunks": p.chunks[dir],
			"bytes":  p.bytes[dir],
		}
	}
	return summary
}
