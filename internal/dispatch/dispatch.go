// Package dispatch runs the per-frame pipeline: filter, link-layer demux,
// IPv4 and transport decoding with trailer trimming, session resolution and
// the push of non-empty payloads into the session's parser.
package dispatch

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/gopacket"

	"firestige.xyz/flowtap/internal/core"
	"firestige.xyz/flowtap/internal/core/decoder"
	"firestige.xyz/flowtap/internal/log"
	"firestige.xyz/flowtap/internal/metrics"
	"firestige.xyz/flowtap/internal/session"
)

var errParserPanic = errors.New("parser panic")

// FrameFilter decides whether a raw frame enters the pipeline.
type FrameFilter interface {
	Match(frame []byte) bool
}

// Result describes what happened to one dispatched frame.
type Result struct {
	Session   *session.Session
	Direction core.Direction
	Payload   int  // payload length after trimming
	Trimmed   int  // trailer bytes removed
	Pushed    bool // payload was handed to the parser
	ParserErr error
}

// Dispatcher holds no flow state; the session table is passed into every
// call.
type Dispatcher struct {
	demux   decoder.DemuxFunc
	filter  FrameFilter
	metrics *metrics.Metrics
	logger  log.Logger
}

type Option func(*Dispatcher)

func WithFilter(f FrameFilter) Option {
	return func(d *Dispatcher) { d.filter = f }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithLogger(l log.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

func New(demux decoder.DemuxFunc, opts ...Option) *Dispatcher {
	d := &Dispatcher{demux: demux}
	for _, opt := range opts {
		opt(d)
	}
	if d.metrics == nil {
		d.metrics = metrics.New()
	}
	if d.logger == nil {
		d.logger = log.GetLogger()
	}
	return d
}

// Dispatch processes one frame. Errors for which core.Recoverable is true
// mean the frame was skipped; any other error is fatal for the run. Parser
// failures are not errors here: they are logged, counted and reported in
// Result.ParserErr.
func (d *Dispatcher) Dispatch(table *session.Table, frame []byte, ci gopacket.CaptureInfo) (Result, error) {
	start := time.Now()
	defer func() { d.metrics.DispatchLatencySeconds.Observe(time.Since(start).Seconds()) }()

	res, err := d.dispatch(table, frame, ci)
	if err != nil && core.Recoverable(err) {
		d.metrics.FramesSkippedTotal.WithLabelValues(core.SkipReason(err)).Inc()
		if d.logger.IsDebugEnabled() {
			d.logger.WithError(err).Debugf("frame skipped (%d bytes)", len(frame))
		}
	}
	return res, err
}

func (d *Dispatcher) dispatch(table *session.Table, frame []byte, ci gopacket.CaptureInfo) (Result, error) {
	var res Result

	if d.logger.IsDebugEnabled() {
		d.logger.Debugf("raw frame:\n%s", hex.Dump(frame))
	}

	if d.filter != nil && !d.filter.Match(frame) {
		return res, core.ErrFiltered
	}

	ipData, err := d.demux(frame)
	if err != nil {
		return res, err
	}

	seg, err := decoder.DecodeIPv4(ipData)
	if err != nil {
		return res, err
	}
	res.Payload = len(seg.Payload)
	res.Trimmed = seg.Trimmed
	if seg.Trimmed > 0 {
		d.metrics.TrimmedBytesTotal.Add(float64(seg.Trimmed))
		d.logger.Infof("removing %d extra bytes", seg.Trimmed)
	}

	known := table.Len()
	sess, dir, err := table.Resolve(seg.Key)
	if err != nil {
		return res, err
	}
	if table.Len() > known {
		d.metrics.SessionsTotal.Inc()
		d.logger.WithField("flow", seg.Key.String()).Debugf("new %s session #%d", sess.ParserName, sess.Index)
	}
	res.Session = sess
	res.Direction = dir

	sess.Account(dir, len(seg.Payload), ci.Timestamp)
	if len(seg.Payload) == 0 {
		return res, nil
	}
	d.metrics.PayloadBytesTotal.WithLabelValues(dir.String()).Add(float64(len(seg.Payload)))

	res.Pushed = true
	sess.Pushed[dir]++
	d.metrics.ParserCallsTotal.WithLabelValues(sess.ParserName).Inc()
	if perr := push(sess, seg.Payload, dir); perr != nil {
		res.ParserErr = perr
		sess.Errors++
		kind := "error"
		if errors.Is(perr, errParserPanic) {
			kind = "panic"
		}
		d.metrics.ParserErrorsTotal.WithLabelValues(sess.ParserName, kind).Inc()
		d.logger.WithFields(map[string]interface{}{
			"flow":      sess.Key.String(),
			"direction": dir.String(),
		}).WithError(perr).Warnf("%s parser failed", sess.ParserName)
	}
	return res, nil
}

// push isolates the session parser: a panic is turned into an error so other
// sessions keep going.
func push(sess *session.Session, payload []byte, dir core.Direction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errParserPanic, r)
		}
	}()
	return sess.Parser.Parse(payload, dir)
}
