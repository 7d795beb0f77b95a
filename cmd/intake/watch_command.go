package main

import (
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/mattjoyce/intake/internal/tui/watch"
)

func newWatchCommand() *cobra.Command {
	var apiURL string
	var apiKey string

	cmd := &cobra.Command{
		Use:         "watch",
		Short:       "Live dashboard of a running daemon",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if apiKey == "" {
				apiKey = os.Getenv("INTAKE_API_KEY")
			}
			_, err := tea.NewProgram(watch.New(apiURL, apiKey), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
	cmd.Flags().StringVar(&apiURL, "api-url", "http://127.0.0.1:8089", "Base URL of the intake API")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key (default $INTAKE_API_KEY)")
	return cmd
}
