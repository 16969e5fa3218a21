// Package metrics implements Prometheus metrics for a replay run.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors of one run on a private registry, so
// independent runs (and tests) never share counters.
type Metrics struct {
	Registry *prometheus.Registry

	// FramesTotal counts frames read from the capture
	FramesTotal prometheus.Counter

	// FramesSkippedTotal counts frames dropped before reaching a session
	FramesSkippedTotal *prometheus.CounterVec

	// SessionsTotal counts sessions created
	SessionsTotal prometheus.Counter

	// PayloadBytesTotal counts payload bytes after trimming, by direction
	PayloadBytesTotal *prometheus.CounterVec

	// TrimmedBytesTotal counts capture trailer bytes removed from payloads
	TrimmedBytesTotal prometheus.Counter

	// ParserCallsTotal counts chunks pushed into parsers
	ParserCallsTotal *prometheus.CounterVec

	// ParserErrorsTotal counts parser failures by kind (error, panic)
	ParserErrorsTotal *prometheus.CounterVec

	// DispatchLatencySeconds measures per-frame dispatch time
	DispatchLatencySeconds prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		FramesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "flowtap_frames_total",
			Help: "Total number of frames read from the capture",
		}),
		FramesSkippedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowtap_frames_skipped_total",
			Help: "Total number of frames skipped before session lookup",
		}, []string{"reason"}),
		SessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "flowtap_sessions_total",
			Help: "Total number of sessions created",
		}),
		PayloadBytesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowtap_payload_bytes_total",
			Help: "Total number of payload bytes after trailer trimming",
		}, []string{"direction"}),
		TrimmedBytesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "flowtap_trimmed_bytes_total",
			Help: "Total number of capture trailer bytes trimmed from payloads",
		}),
		ParserCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowtap_parser_calls_total",
			Help: "Total number of payload chunks pushed into parsers",
		}, []string{"parser"}),
		ParserErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowtap_parser_errors_total",
			Help: "Total number of parser errors and recovered panics",
		}, []string{"parser", "kind"}),
		DispatchLatencySeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "flowtap_dispatch_latency_seconds",
			Help:    "Latency of per-frame dispatch in seconds",
			Buckets: prometheus.ExponentialBuckets(0.000001, 2, 20), // 1µs to ~1s
		}),
	}
}

// WriteTextfile writes all metrics in the text exposition format, for the
// node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
