package main

import (
	"github.com/spf13/cobra"

	"github.com/fpang/mentor-metrics-cli/internal/cli"
)

var sessionsJSONFlag bool

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List your uploaded sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, err := env.client.ListSessions(cmd.Context())
		if err != nil {
			return err
		}
		if sessionsJSONFlag {
			return writeJSON(sessions)
		}
		cli.RenderSessions(env.out, sessions)
		return nil
	},
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Print the analytics dashboard as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := env.client.Dashboard(cmd.Context())
		if err != nil {
			return err
		}
		return writeJSON(raw)
	},
}

func init() {
	sessionsCmd.Flags().BoolVar(&sessionsJSONFlag, "json", false, "Print the raw session list JSON")
}
