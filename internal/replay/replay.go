// Package replay wires a capture file, the session table and the dispatcher
// into a single synchronous run.
package replay

import (
	"context"
	"fmt"
	"io"

	"github.com/google/gopacket/layers"

	"firestige.xyz/flowtap/internal/config"
	"firestige.xyz/flowtap/internal/core"
	"firestige.xyz/flowtap/internal/core/decoder"
	"firestige.xyz/flowtap/internal/dispatch"
	"firestige.xyz/flowtap/internal/filter"
	"firestige.xyz/flowtap/internal/log"
	"firestige.xyz/flowtap/internal/metrics"
	"firestige.xyz/flowtap/internal/parser"
	"firestige.xyz/flowtap/internal/session"
	"firestige.xyz/flowtap/internal/source/file"
)

// Stats summarizes a run.
type Stats struct {
	Frames       uint64            // read from the capture
	Dispatched   uint64            // reached a session
	Pushed       uint64            // chunks handed to parsers
	ParserErrors uint64            // parser errors and recovered panics
	Skipped      map[string]uint64 // by core.SkipReason
	Sessions     int
	ReadError    error // read failure other than end of file, ends the run early
}

type Replayer struct {
	cfg        *config.Config
	source     *file.Source
	table      *session.Table
	dispatcher *dispatch.Dispatcher
	metrics    *metrics.Metrics
	logger     log.Logger
}

type Option func(*Replayer)

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Replayer) { r.metrics = m }
}

func WithLogger(l log.Logger) Option {
	return func(r *Replayer) { r.logger = l }
}

// New performs every startup check before a single packet is read: the
// parser exists and accepts its options, the capture opens, its link type is
// supported and the filter compiles.
func New(cfg *config.Config, reg *parser.Registry, opts ...Option) (*Replayer, error) {
	r := &Replayer{cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = metrics.New()
	}
	if r.logger == nil {
		r.logger = log.GetLogger()
	}

	name := cfg.Parser.Name
	if !reg.Has(name) {
		return nil, fmt.Errorf("%w: '%s' (available: %v)", core.ErrUnknownParser, name, reg.Names())
	}
	if o, ok := cfg.Parser.Options[name]; ok {
		if err := reg.Configure(name, o); err != nil {
			return nil, err
		}
	}
	if _, err := reg.Create(name); err != nil {
		return nil, err
	}

	src, err := file.Open(cfg.Input.File)
	if err != nil {
		return nil, err
	}

	linkType := src.LinkType()
	demux, err := decoder.SelectDemux(linkType, decoder.Options{NflogStrict: cfg.Nflog.Strict})
	if err != nil {
		src.Close()
		return nil, err
	}

	dispatchOpts := []dispatch.Option{dispatch.WithMetrics(r.metrics), dispatch.WithLogger(r.logger)}
	if cfg.Input.Filter != "" {
		f, err := filter.Compile(linkType, cfg.Input.Snaplen, cfg.Input.Filter)
		if err != nil {
			src.Close()
			return nil, err
		}
		dispatchOpts = append(dispatchOpts, dispatch.WithFilter(f))
	}

	r.source = src
	r.table = session.NewTable(reg, name)
	r.dispatcher = dispatch.New(demux, dispatchOpts...)

	r.logger.WithFields(map[string]interface{}{
		"file":   src.Path(),
		"format": src.Format(),
		"parser": name,
	}).Infof("datalink: %s (%d)", linkType, int(linkType))
	return r, nil
}

// Run replays every frame in capture order on the calling goroutine. The
// context is checked between frames; on cancellation Run returns the stats
// gathered so far with ctx.Err(). A fatal dispatch error aborts the run.
func (r *Replayer) Run(ctx context.Context) (Stats, error) {
	stats := Stats{Skipped: make(map[string]uint64)}

	for {
		if err := ctx.Err(); err != nil {
			r.logger.Warnf("replay interrupted after %d frames", stats.Frames)
			stats.Sessions = r.table.Len()
			return stats, err
		}

		data, ci, err := r.source.ReadPacket()
		if err == io.EOF {
			break
		}
		if err != nil {
			r.logger.WithError(err).Warnf("stopping after %d frames", stats.Frames)
			stats.ReadError = err
			break
		}
		stats.Frames++
		r.metrics.FramesTotal.Inc()

		res, err := r.dispatcher.Dispatch(r.table, data, ci)
		if err != nil {
			if core.Recoverable(err) {
				stats.Skipped[core.SkipReason(err)]++
				continue
			}
			stats.Sessions = r.table.Len()
			return stats, fmt.Errorf("frame %d: %w", stats.Frames, err)
		}
		stats.Dispatched++
		if res.Pushed {
			stats.Pushed++
		}
		if res.ParserErr != nil {
			stats.ParserErrors++
		}
	}

	stats.Sessions = r.table.Len()
	r.logger.Infof("replayed %d frames, %d sessions, %d skipped", stats.Frames, stats.Sessions, stats.Frames-stats.Dispatched)
	return stats, nil
}

func (r *Replayer) Table() *session.Table {
	return r.table
}

func (r *Replayer) LinkType() layers.LinkType {
	return r.source.LinkType()
}

func (r *Replayer) Metrics() *metrics.Metrics {
	return r.metrics
}

func (r *Replayer) Close() error {
	return r.source.Close()
}
