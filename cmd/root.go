// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/flowtap/internal/config"
	"firestige.xyz/flowtap/internal/log"
	"firestige.xyz/flowtap/internal/parser"
	"firestige.xyz/flowtap/plugins"
)

var version = "0.1.0"

// newRootCmd builds the command tree. Command output goes to out.
func newRootCmd(out io.Writer) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:   "flowtap [flags]",
		Short: "Replay a capture file through a protocol parser, one parser per flow",
		Long: `flowtap reads an offline pcap or pcapng capture, recovers the IPv4 payload
of every frame (Ethernet, Linux cooked capture and NFLOG link types), groups
packets into bidirectional TCP/UDP flows and feeds each flow's payload to its
own instance of the selected protocol parser.

After the run it can write a YAML report of every session and a Prometheus
textfile with the replay counters.

Examples:
  flowtap -f capture.pcap
  flowtap -f sip.pcapng -p sip --report -
  flowtap -c flowtap.yml --filter "tcp port 443" --metrics-file flowtap.prom`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			if err := log.Init(cfg.Log); err != nil {
				return fmt.Errorf("failed to init logger: %w", err)
			}
			defer log.Close()

			reg, err := newRegistry()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runReplay(ctx, cfg, reg, cmd.OutOrStdout())
		},
	}
	rootCmd.SetOut(out)

	flags := rootCmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "config file path")
	flags.StringP("file", "f", "", "capture file to replay (pcap or pcapng)")
	flags.StringP("parser", "p", "tls", "parser to use for every flow")
	flags.BoolP("verbose", "v", false, "verbose output (debug logging)")
	flags.String("filter", "", "tcpdump filter expression applied before demultiplexing")
	flags.String("report", "", `write the session report to this path ("-" for stdout)`)
	flags.String("metrics-file", "", "write Prometheus metrics in textfile format to this path")
	flags.String("log-file", "", "also write logs to this file, with rotation")

	rootCmd.AddCommand(newParsersCmd())
	rootCmd.AddCommand(newValidateCmd())
	return rootCmd
}

// newRegistry returns a registry holding the built-in parsers.
func newRegistry() (*parser.Registry, error) {
	reg := parser.NewRegistry()
	if err := plugins.RegisterBuiltins(reg); err != nil {
		return nil, fmt.Errorf("failed to register parsers: %w", err)
	}
	return reg, nil
}

// Execute runs the root command. This is called by main.main().
func Execute() error {
	return newRootCmd(os.Stdout).ExecuteContext(context.Background())
}
