package main

import (
	"github.com/spf13/cobra"

	"github.com/fpang/mentor-metrics-cli/internal/api"
)

var debugCmd = &cobra.Command{
	Use:   "debug SESSION_ID",
	Short: "Print the backend's diagnostic dump of a session as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := env.client.Debug(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return writeJSON(raw)
	},
}

var (
	logsEventFlag   string
	logsSessionFlag string
	logsUserFlag    string
	logsLimitFlag   int
	logsOffsetFlag  int
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print a page of the backend event log as JSON",
	Example: `  mentor-metrics logs --event upload --limit 20
  mentor-metrics logs --session 3f2a --offset 50`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := env.client.Logs(cmd.Context(), api.LogQuery{
			EventType: logsEventFlag,
			SessionID: logsSessionFlag,
			UserID:    logsUserFlag,
			Limit:     logsLimitFlag,
			Offset:    logsOffsetFlag,
		})
		if err != nil {
			return err
		}
		return writeJSON(raw)
	},
}

func init() {
	logsCmd.Flags().StringVar(&logsEventFlag, "event", "", "Only events of this type")
	logsCmd.Flags().StringVar(&logsSessionFlag, "session", "", "Only events for this session")
	logsCmd.Flags().StringVar(&logsUserFlag, "user", "", "Only events for this user")
	logsCmd.Flags().IntVar(&logsLimitFlag, "limit", 50, "Maximum number of events")
	logsCmd.Flags().IntVar(&logsOffsetFlag, "offset", 0, "Number of events to skip")
}
