package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fpang/mentor-metrics-cli/internal/api"
	"github.com/fpang/mentor-metrics-cli/internal/cli"
	"github.com/fpang/mentor-metrics-cli/internal/export"
	"github.com/fpang/mentor-metrics-cli/internal/metrics"
	"github.com/fpang/mentor-metrics-cli/internal/s3util"
)

// Download flags
var (
	downloadOutFlag     string
	downloadZstdFlag    bool
	downloadArchiveFlag bool
)

var downloadCmd = &cobra.Command{
	Use:   "download report|raw SESSION_ID",
	Short: "Save the PDF report or raw JSON export of a session",
	Long: `Save an export of a completed session.

  report  the PDF feedback report (report-<id>.pdf)
  raw     all analysis data as JSON (mentor-metrics-session-<id>.json)

With --archive the file is also stored in the S3 bucket named by
MENTOR_ARCHIVE_BUCKET and a link valid for 24 hours is printed.`,
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{string(api.ExportReport), string(api.ExportRaw)},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		kind, err := api.ParseExportKind(args[0])
		if err != nil {
			return err
		}
		sessionID := args[1]

		if downloadArchiveFlag && !env.cfg.ArchiveEnabled() {
			return fmt.Errorf("--archive needs an S3 bucket; set MENTOR_ARCHIVE_BUCKET")
		}

		f, err := export.Save(ctx, env.client, kind, sessionID, export.Options{
			OutPath:  downloadOutFlag,
			Compress: downloadZstdFlag,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(env.out, "Saved %s (%s)\n", f.Path, cli.FormatBytes(f.Bytes))

		rec := metrics.New(env.client, metrics.EventExport).
			Session(sessionID).
			Property("kind", string(kind)).
			Property("compressed", downloadZstdFlag).
			Property("archived", downloadArchiveFlag)
		defer rec.Flush(ctx)

		if !downloadArchiveFlag {
			return nil
		}

		clients, err := env.aws.S3(ctx, env.cfg.Archive.Bucket)
		if err != nil {
			return err
		}
		archiver := s3util.NewArchiver(clients.Client, clients.Presigner, clients.Bucket, env.cfg.Archive.Prefix)
		key, err := archiver.ArchiveFile(ctx, sessionID, f.Path, f.ContentType, f.ContentEncoding)
		if err != nil {
			return err
		}
		link, err := archiver.GeneratePresignedURL(ctx, key, s3util.DefaultLinkExpiry)
		if err != nil {
			return err
		}
		fmt.Fprintf(env.out, "Archived to s3://%s/%s\nLink (valid %s): %s\n", clients.Bucket, key, s3util.DefaultLinkExpiry, link)
		return nil
	},
}

func init() {
	downloadCmd.Flags().StringVarP(&downloadOutFlag, "out", "o", "", "Output file or directory")
	downloadCmd.Flags().BoolVar(&downloadZstdFlag, "zstd", false, "Compress the file with Zstandard (.zst)")
	downloadCmd.Flags().BoolVar(&downloadArchiveFlag, "archive", false, "Also store the file in S3 and print a download link")
}
