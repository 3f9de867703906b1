package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fpang/mentor-metrics-cli/internal/cli"
	"github.com/fpang/mentor-metrics-cli/internal/config"
	"github.com/fpang/mentor-metrics-cli/internal/metrics"
	"github.com/fpang/mentor-metrics-cli/internal/pipeline"
	"github.com/fpang/mentor-metrics-cli/internal/poller"
)

// Status flags
var (
	statusWatchFlag    bool
	statusIntervalFlag time.Duration
	statusYesFlag      bool
)

var statusCmd = &cobra.Command{
	Use:   "status SESSION_ID",
	Short: "Show the processing timeline of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		sessionID := args[0]
		metrics.PageView(ctx, env.client, metrics.PageStatus, sessionID)

		if statusWatchFlag {
			interval := env.cfg.Polling.Interval
			if statusIntervalFlag > 0 {
				interval = statusIntervalFlag
			}
			return watchSession(ctx, sessionID, interval, statusYesFlag)
		}

		resp, err := env.client.Status(ctx, sessionID)
		if err != nil {
			return err
		}
		status, err := pipeline.ParseStatus(resp.Status)
		if err != nil {
			return err
		}
		cli.RenderTimeline(env.out, status, pipeline.MapStatusToStages(status, resp.Metadata))
		if status == pipeline.StatusFailed {
			return offerRestart(ctx, sessionID, statusYesFlag)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVarP(&statusWatchFlag, "watch", "w", false, "Poll until processing completes or fails")
	statusCmd.Flags().DurationVar(&statusIntervalFlag, "interval", 0, "Poll interval (default from "+config.EnvPollInterval+")")
	statusCmd.Flags().BoolVarP(&statusYesFlag, "yes", "y", false, "Restart a failed session without asking")
}

// errSessionFailed is returned when a watched session ends in failure and
// is not restarted.
var errSessionFailed = errors.New("processing failed; restart the session to try again")

// watchSession follows a session until it completes or fails. The timeline
// is redrawn whenever the status or the number of completed stages changes.
func watchSession(ctx context.Context, sessionID string, interval time.Duration, autoRestart bool) error {
	p := poller.New(env.client, poller.Options{
		Interval:       interval,
		RequestTimeout: env.cfg.API.RequestTimeout,
	})

	var (
		last      pipeline.Status
		lastDone  = -1
		completed bool
		failed    bool
	)
	err := p.Run(ctx, sessionID, poller.Handler{
		OnUpdate: func(u poller.Update) {
			done, _ := pipeline.Progress(u.Stages)
			if u.Status == last && done == lastDone {
				return
			}
			last, lastDone = u.Status, done
			fmt.Fprintf(env.out, "\n[%s]\n", u.FetchedAt.Format("15:04:05"))
			cli.RenderTimeline(env.out, u.Status, u.Stages)
		},
		OnComplete: func(poller.Update) { completed = true },
		OnFailed:   func(poller.Update) { failed = true },
	})
	if err != nil {
		return err
	}

	switch {
	case completed:
		fmt.Fprintln(env.out)
		return showResults(ctx, sessionID, false)
	case failed:
		return offerRestart(ctx, sessionID, autoRestart)
	}
	return nil
}

// offerRestart asks whether to restart a failed session.
func offerRestart(ctx context.Context, sessionID string, skipPrompt bool) error {
	if !skipPrompt && !stdinIsTerminal() {
		return errSessionFailed
	}
	ok, err := confirm(skipPrompt, "Processing failed. Restart this session?")
	if err != nil {
		return err
	}
	if !ok {
		return errSessionFailed
	}
	return restartSession(ctx, sessionID)
}

// Results flags
var resultsJSONFlag bool

var resultsCmd = &cobra.Command{
	Use:   "results SESSION_ID",
	Short: "Show scores, transcript, and report of a completed session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		metrics.PageView(ctx, env.client, metrics.PageResults, args[0])

		resp, err := env.client.Status(ctx, args[0])
		if err != nil {
			return err
		}
		status, err := pipeline.ParseStatus(resp.Status)
		if err != nil {
			return err
		}
		switch {
		case status == pipeline.StatusFailed:
			return errSessionFailed
		case status != pipeline.StatusComplete:
			fmt.Fprintf(env.out, "Session is still %s. Follow it with: mentor-metrics status %s --watch\n",
				status.Label(), args[0])
			return nil
		}
		return showResults(ctx, args[0], resultsJSONFlag)
	},
}

func init() {
	resultsCmd.Flags().BoolVar(&resultsJSONFlag, "json", false, "Print the raw results JSON")
}

func showResults(ctx context.Context, sessionID string, asJSON bool) error {
	res, err := env.client.Results(ctx, sessionID)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(res)
	}
	cli.RenderResults(env.out, sessionID, res)
	return nil
}

func writeJSON(v interface{}) error {
	enc := json.NewEncoder(env.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
