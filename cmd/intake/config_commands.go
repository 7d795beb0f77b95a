package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/intake/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}
	configCmd.AddCommand(newConfigLockCommand(ctx))
	configCmd.AddCommand(newConfigShowCommand(ctx))
	return configCmd
}

// config lock records a BLAKE3 hash of the config so later loads refuse an
// edited file until it is locked again.
func newConfigLockCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "lock",
		Short:       "Record the checksum of the configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.Resolve(ctx.configPath())
			if err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read config: %w", err)
			}
			if _, err := config.Parse(data); err != nil {
				return fmt.Errorf("refusing to lock an invalid configuration: %w", err)
			}
			hash, err := config.LockChecksum(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Locked %s (blake3 %s)\n", path, hash[:12])
			return nil
		},
	}
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with defaults applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			redacted := *cfg
			if redacted.API.APIKey != "" {
				redacted.API.APIKey = "<redacted>"
			}
			redacted.Monitors = append([]config.MonitorConfig(nil), cfg.Monitors...)
			for i, m := range redacted.Monitors {
				if m.Remote != nil && m.Remote.Password != "" {
					r := *m.Remote
					r.Password = "<redacted>"
					redacted.Monitors[i].Remote = &r
				}
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(redacted); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
