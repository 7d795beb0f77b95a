package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mattjoyce/intake/internal/daemon"
	"github.com/mattjoyce/intake/internal/log"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run every enabled cleanup once and report what was removed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			results, err := daemon.SweepOnce(signalCtx, cfg)
			if err != nil && len(results) == 0 {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(results); encErr != nil {
					return encErr
				}
				return err
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SWEEP\tFILES\tDIRS\tFREED\tELAPSED\tSTATUS")
			for _, r := range results {
				status := "ok"
				switch {
				case r.Error != "":
					status = "error: " + r.Error
				case r.Progress.Aborted:
					status = "aborted: " + r.Progress.Reason
				}
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\n",
					r.Name,
					r.Progress.FilesDeleted,
					r.Progress.DirsDeleted,
					humanize.Bytes(uint64(max(r.Progress.BytesFreed, 0))),
					r.Progress.Elapsed.Round(1e6),
					status,
				)
			}
			if flushErr := tw.Flush(); flushErr != nil {
				return flushErr
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print results as JSON")
	return cmd
}
