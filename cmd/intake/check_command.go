package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/intake/internal/daemon"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and every job it defines without running anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := daemon.Check(cfg); err != nil {
				return fmt.Errorf("check failed: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration valid: %s\n", cfg.SourcePath)
			fmt.Fprintf(out, "  monitors: %d\n", len(cfg.Monitors))
			fmt.Fprintf(out, "  cleanups: %d\n", len(cfg.Cleanups))
			return nil
		},
	}
}
