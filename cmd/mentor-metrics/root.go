package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fpang/mentor-metrics-cli/internal/api"
	"github.com/fpang/mentor-metrics-cli/internal/auth"
	"github.com/fpang/mentor-metrics-cli/internal/awsboot"
	"github.com/fpang/mentor-metrics-cli/internal/cli"
	"github.com/fpang/mentor-metrics-cli/internal/config"
	"github.com/fpang/mentor-metrics-cli/internal/logging"
	"github.com/fpang/mentor-metrics-cli/internal/metrics"
)

// Persistent flags
var (
	configFlag   string
	apiURLFlag   string
	logLevelFlag string
)

// app holds what every command needs. It is built once per invocation in
// setup.
type app struct {
	cfg      *config.Config
	session  *auth.Session
	client   *api.Client
	aws      *awsboot.Loader
	prompter cli.Prompter
	out      io.Writer
	errOut   io.Writer
}

var env *app

var rootCmd = &cobra.Command{
	Use:   "mentor-metrics",
	Short: "Upload teaching sessions and review MentorMetrics feedback",
	Long: `mentor-metrics uploads a recorded teaching session to the MentorMetrics
backend, follows the analysis pipeline stage by stage, and shows the
resulting scores, transcript, and report.

Examples:
  mentor-metrics upload --file lecture.mp4 --process --watch
  mentor-metrics upload --pick
  mentor-metrics status 3f2a... --watch
  mentor-metrics results 3f2a...
  mentor-metrics download report 3f2a... --zstd --archive
  mentor-metrics sessions
  mentor-metrics debug 3f2a...
  mentor-metrics logs --event upload --limit 20`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&apiURLFlag, "api-url", "", "Backend base URL (overrides "+config.EnvAPIBaseURL+")")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: trace, debug, info, warn, error")

	rootCmd.AddCommand(
		uploadCmd,
		processCmd,
		statusCmd,
		restartCmd,
		resultsCmd,
		sessionsCmd,
		downloadCmd,
		dashboardCmd,
		debugCmd,
		logsCmd,
	)
}

// setup resolves configuration and credentials and builds the API client.
func setup(cmd *cobra.Command, args []string) error {
	initStart := time.Now()
	logging.Init(logLevelFlag)

	cfg, err := config.Load(configFlag)
	if err != nil {
		return err
	}
	if apiURLFlag != "" {
		cfg.API.BaseURL = apiURLFlag
	}

	loader := &awsboot.Loader{}
	session, err := auth.Resolve(cmd.Context(), cfg.Auth, cfg.StateDir, auth.Deps{NewSSM: loader.SSM})
	if err != nil {
		return fmt.Errorf("failed to resolve credentials: %w", err)
	}

	client := api.NewClient(cfg.APIRoot(), session,
		api.WithTimeout(cfg.API.RequestTimeout),
		api.WithTransferTimeout(cfg.API.TransferTimeout),
	)
	metrics.SetVersion(version)

	env = &app{
		cfg:      cfg,
		session:  session,
		client:   client,
		aws:      loader,
		prompter: cli.DefaultPrompter,
		out:      cmd.OutOrStdout(),
		errOut:   cmd.ErrOrStderr(),
	}

	logging.NewStartupLogger(cmd.Name()).
		Version(version).
		APIBaseURL(client.BaseURL()).
		ConfigFile(cfg.Source).
		Limit("maxUploadMB", fmt.Sprint(cfg.Upload.MaxSizeMB)).
		Limit("pollInterval", cfg.Polling.Interval.String()).
		Limit("requestTimeout", cfg.API.RequestTimeout.String()).
		Limit("uploadAttempts", fmt.Sprint(cfg.Upload.MaxAttempts)).
		Feature("authenticated", !session.IsAnonymous()).
		Feature("archive", cfg.ArchiveEnabled()).
		InitDuration(time.Since(initStart)).
		Log()
	return nil
}

// confirm asks a yes/no question unless skip is set.
func confirm(skip bool, message string) (bool, error) {
	if skip {
		return true, nil
	}
	return env.prompter.Confirm(message, true)
}

// restartSession asks the backend to re-run a session's pipeline.
func restartSession(ctx context.Context, sessionID string) error {
	if err := env.client.Restart(ctx, sessionID); err != nil {
		return err
	}
	metrics.New(env.client, metrics.EventRestart).Session(sessionID).Flush(ctx)
	fmt.Fprintf(env.out, "Session %s restarted. Follow it with: mentor-metrics status %s --watch\n", sessionID, sessionID)
	return nil
}

var restartYesFlag bool

var restartCmd = &cobra.Command{
	Use:   "restart SESSION_ID",
	Short: "Restart processing of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := confirm(restartYesFlag, fmt.Sprintf("Restart processing of session %s?", args[0]))
		if err != nil || !ok {
			return err
		}
		return restartSession(cmd.Context(), args[0])
	},
}

var processCmd = &cobra.Command{
	Use:   "process SESSION_ID",
	Short: "Start the analysis pipeline for an uploaded session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := env.client.StartProcessing(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(env.out, "Processing started for session %s\n", args[0])
		return nil
	},
}

func init() {
	restartCmd.Flags().BoolVarP(&restartYesFlag, "yes", "y", false, "Skip the confirmation prompt")
}

// stdinIsTerminal reports whether interactive prompts can be shown.
func stdinIsTerminal() bool {
	info, err := os.Stdin.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}
