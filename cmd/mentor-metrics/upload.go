package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/mentor-metrics-cli/internal/cli"
	"github.com/fpang/mentor-metrics-cli/internal/filehandler"
	"github.com/fpang/mentor-metrics-cli/internal/metrics"
	"github.com/fpang/mentor-metrics-cli/internal/upload"
)

// Upload flags
var (
	uploadFileFlag    string
	uploadPickFlag    bool
	uploadProcessFlag bool
	uploadWatchFlag   bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload a teaching session video",
	Long: `Upload a video of a teaching session. Without --file or --pick you are
asked for a path.

Supported formats: MP4, MOV, WEBM. Failed uploads are retried on server and
network errors.`,
	Args: cobra.NoArgs,
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().StringVarP(&uploadFileFlag, "file", "f", "", "Path of the video to upload")
	uploadCmd.Flags().BoolVar(&uploadPickFlag, "pick", false, "Choose the video in a file dialog")
	uploadCmd.Flags().BoolVar(&uploadProcessFlag, "process", false, "Start processing after the upload")
	uploadCmd.Flags().BoolVarP(&uploadWatchFlag, "watch", "w", false, "Start processing and follow it until done (implies --process)")
	uploadCmd.MarkFlagsMutuallyExclusive("file", "pick")
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	metrics.PageView(ctx, env.client, metrics.PageUpload, "")

	path, err := chooseFile()
	if err != nil {
		return err
	}

	req, err := buildRequest(ctx, path)
	if err != nil {
		return err
	}

	adapter := upload.New(env.client, upload.Options{
		MaxBytes:     env.cfg.MaxUploadBytes(),
		AllowedTypes: env.cfg.Upload.AllowedTypes,
		MaxAttempts:  env.cfg.Upload.MaxAttempts,
		RetryDelay:   env.cfg.Upload.RetryDelay,
	})

	start := time.Now()
	res, err := adapter.Upload(ctx, req, func(pct int) {
		fmt.Fprintf(env.errOut, "\rUploading %s", cli.ProgressBar(pct, 30))
	})
	fmt.Fprintln(env.errOut)
	if err != nil {
		rec := metrics.New(env.client, metrics.EventUploadFailed).Property("code", string(upload.CodeOf(err)))
		var uploadErr *upload.Error
		if errors.As(err, &uploadErr) && uploadErr.Attempts > 0 {
			rec.Property("attempts", uploadErr.Attempts)
		}
		rec.Flush(context.WithoutCancel(ctx))
		return err
	}

	if res.UserID != "" {
		if err := env.session.RememberUserID(res.UserID); err != nil {
			log.Warn().Err(err).Msg("Failed to save user id")
		}
	}
	metrics.New(env.client, metrics.EventUploadComplete).
		Session(res.SessionID).
		Property("attempts", res.Attempts).
		Property("size_bytes", req.Size).
		Property("mime_type", req.MIMEType).
		Duration("upload", time.Since(start)).
		Flush(ctx)

	fmt.Fprintf(env.out, "Uploaded %s (%s)\nSession ID: %s\n", req.Name, cli.FormatBytes(req.Size), res.SessionID)

	if !uploadProcessFlag && !uploadWatchFlag {
		fmt.Fprintf(env.out, "Start analysis with: mentor-metrics process %s\n", res.SessionID)
		return nil
	}
	if err := env.client.StartProcessing(ctx, res.SessionID); err != nil {
		return err
	}
	fmt.Fprintln(env.out, "Processing started.")

	if !uploadWatchFlag {
		return nil
	}
	return watchSession(ctx, res.SessionID, env.cfg.Polling.Interval, false)
}

// chooseFile returns the path to upload from --file, --pick, or a prompt.
// An empty result means nothing was chosen.
func chooseFile() (string, error) {
	switch {
	case uploadFileFlag != "":
		return uploadFileFlag, nil
	case uploadPickFlag:
		return cli.PickFile()
	case stdinIsTerminal():
		return cli.PromptForFile(env.prompter)
	}
	return "", nil
}

// buildRequest loads the local file. A blank path yields a nil request so
// the adapter reports "No file selected".
func buildRequest(ctx context.Context, path string) (*upload.Request, error) {
	if path == "" {
		return nil, nil
	}
	abs, err := cli.ResolveFile(path)
	if err != nil {
		return nil, err
	}
	vf, err := filehandler.LoadVideoFile(abs)
	if err != nil {
		return nil, err
	}

	if meta, err := filehandler.ProbeVideo(ctx, abs); err == nil {
		vf.Metadata = meta
		fmt.Fprintf(env.out, "%s: %s, %s, %s\n", vf.Name, cli.FormatDurationShort(meta.Duration), meta.Resolution(), meta.Codec)
	} else {
		log.Debug().Err(err).Msg("Skipping video probe")
	}
	return upload.FromVideo(vf), nil
}
