package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/intake/internal/daemon"
	"github.com/mattjoyce/intake/internal/log"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run every configured monitor and cleanup until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
			logger := log.WithComponent("main")
			logger.Info("intake starting", "version", currentVersionInfo().Version, "config", cfg.SourcePath)

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			d, err := daemon.New(signalCtx, cfg)
			if err != nil {
				logger.Error("Failed to start", "error", err)
				return err
			}
			defer func() {
				if err := d.Close(); err != nil {
					logger.Warn("Shutdown incomplete", "error", err)
				}
			}()

			if err := d.Run(signalCtx); err != nil {
				return err
			}
			logger.Info("intake stopped")
			return nil
		},
	}
}
