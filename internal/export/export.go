// Package export saves session exports (PDF report, raw JSON) to disk,
// optionally compressed with Zstandard.
package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"github.com/fpang/mentor-metrics-cli/internal/api"
)

// zstdLevel matches the level used for archived bundles.
const zstdLevel = 12

// Downloader streams one export into w. *api.Client satisfies it.
type Downloader interface {
	Download(ctx context.Context, kind api.ExportKind, sessionID string, w io.Writer) (int64, error)
}

// Options controls where and how an export is written.
type Options struct {
	// OutPath is the destination file or directory. Empty means the
	// conventional file name in the current directory.
	OutPath string
	// Compress wraps the file in a zstd frame and appends ".zst".
	Compress bool
}

// File describes a saved export.
type File struct {
	Path            string
	Kind            api.ExportKind
	Bytes           int64 // bytes received from the server
	ContentType     string
	ContentEncoding string // "zstd" or empty
}

// ContentType returns the media type of an export kind.
func ContentType(kind api.ExportKind) string {
	if kind == api.ExportReport {
		return "application/pdf"
	}
	return "application/json"
}

// Target returns the path an export will be written to.
func Target(kind api.ExportKind, sessionID string, opts Options) string {
	name := kind.FileName(sessionID)
	if opts.Compress {
		name += ".zst"
	}
	if opts.OutPath == "" {
		return name
	}
	if info, err := os.Stat(opts.OutPath); err == nil && info.IsDir() {
		return filepath.Join(opts.OutPath, name)
	}
	return opts.OutPath
}

// Save downloads an export and writes it to disk. The file appears at its
// final path only after the download finished; a failed download leaves
// nothing behind.
func Save(ctx context.Context, d Downloader, kind api.ExportKind, sessionID string, opts Options) (*File, error) {
	target := Target(kind, sessionID, opts)
	dir := filepath.Dir(target)

	tmp, err := os.CreateTemp(dir, ".mentor-metrics-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	var w io.Writer = tmp
	var enc *zstd.Encoder
	if opts.Compress {
		enc, err = zstd.NewWriter(tmp, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(zstdLevel)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		w = enc
	}

	n, err := d.Download(ctx, kind, sessionID, w)
	if err != nil {
		if enc != nil {
			enc.Close()
		}
		return nil, err
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("failed to finish zstd stream: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return nil, fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return nil, fmt.Errorf("failed to move export into place: %w", err)
	}
	committed = true

	f := &File{
		Path:        target,
		Kind:        kind,
		Bytes:       n,
		ContentType: ContentType(kind),
	}
	if opts.Compress {
		f.ContentEncoding = "zstd"
	}

	log.Info().
		Str("sessionId", sessionID).
		Str("kind", string(kind)).
		Str("path", target).
		Int64("bytes", n).
		Bool("compressed", opts.Compress).
		Msg("Export saved")
	return f, nil
}
