package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/flowtap/internal/config"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a configuration file",
		Long: `Validate a configuration file without replaying anything.

The file is loaded with the same defaults and environment overrides as a
run, and the selected parser is created once with its options.

Examples:
  flowtap validate flowtap.yml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0], nil)
			if err != nil {
				return fmt.Errorf("INVALID: %w", err)
			}

			reg, err := newRegistry()
			if err != nil {
				return err
			}
			if opts, ok := cfg.Parser.Options[cfg.Parser.Name]; ok {
				if err := reg.Configure(cfg.Parser.Name, opts); err != nil {
					return fmt.Errorf("INVALID: %w", err)
				}
			}
			if _, err := reg.Create(cfg.Parser.Name); err != nil {
				return fmt.Errorf("INVALID: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "VALID: parser %q, input %q\n", cfg.Parser.Name, cfg.Input.File)
			return nil
		},
	}
}
