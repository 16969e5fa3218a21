package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"firestige.xyz/flowtap/internal/config"
	"firestige.xyz/flowtap/internal/log"
	"firestige.xyz/flowtap/internal/parser"
	"firestige.xyz/flowtap/internal/replay"
	"firestige.xyz/flowtap/internal/report"
)

// runReplay replays the configured capture and writes the report and the
// metrics textfile. An interrupted run still writes both.
func runReplay(ctx context.Context, cfg *config.Config, reg *parser.Registry, out io.Writer) error {
	logger := log.GetLogger()

	r, err := replay.New(cfg, reg)
	if err != nil {
		return err
	}
	defer r.Close()

	stats, err := r.Run(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		logger.Info("writing partial results")
	case err != nil:
		return err
	}
	if stats.ParserErrors > 0 {
		logger.Warnf("%d parser errors during replay", stats.ParserErrors)
	}

	if cfg.Report.Path != "" {
		rep := report.Build(cfg.Input.File, r.LinkType().String(), cfg.Parser.Name, report.Frames{
			Read:       stats.Frames,
			Dispatched: stats.Dispatched,
			Skipped:    stats.Skipped,
		}, r.Table().Sessions())

		if cfg.Report.Path == report.Stdout {
			err = report.Encode(out, rep)
		} else {
			err = report.Write(cfg.Report.Path, rep)
		}
		if err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}

	if cfg.Metrics.Textfile != "" {
		if err := r.Metrics().WriteTextfile(cfg.Metrics.Textfile); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return nil
}
