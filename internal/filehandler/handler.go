// Package filehandler loads local video files for upload.
package filehandler

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// SupportedVideoExtensions maps the video extensions the client recognizes
// to their MIME types. Whether a type is accepted for upload is decided by
// the configured allowed set, not by this table.
var SupportedVideoExtensions = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
}

// VideoFile is a local file selected for upload. Data is never held in
// memory; Open streams it from disk.
type VideoFile struct {
	Path     string
	Name     string
	MIMEType string
	Size     int64
	Metadata *VideoMetadata
}

// Open opens the file for reading.
func (v *VideoFile) Open() (io.ReadCloser, error) {
	return os.Open(v.Path)
}

// LoadVideoFile stats filePath and determines its MIME type from the
// extension. It does not reject unsupported types; that is the upload
// adapter's job, so the user gets the same message for every entry point.
func LoadVideoFile(filePath string) (*VideoFile, error) {
	log.Debug().Str("path", filePath).Msg("Loading video file")

	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", filePath)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", filePath)
	}

	vf := &VideoFile{
		Path:     filePath,
		Name:     filepath.Base(filePath),
		MIMEType: GetMIMEType(filepath.Ext(filePath)),
		Size:     info.Size(),
	}

	log.Info().
		Str("path", filePath).
		Str("mime_type", vf.MIMEType).
		Int64("size_bytes", vf.Size).
		Msg("Video file loaded")
	return vf, nil
}

// GetMIMEType returns the MIME type for a file extension. Unknown video
// extensions fall back to the system MIME table, then to
// application/octet-stream.
func GetMIMEType(ext string) string {
	ext = strings.ToLower(ext)
	if mimeType, ok := SupportedVideoExtensions[ext]; ok {
		return mimeType
	}
	if mimeType := mime.TypeByExtension(ext); mimeType != "" {
		if i := strings.IndexByte(mimeType, ';'); i >= 0 {
			mimeType = mimeType[:i]
		}
		return mimeType
	}
	return "application/octet-stream"
}

// IsVideo returns true if the file extension corresponds to a video.
func IsVideo(ext string) bool {
	_, ok := SupportedVideoExtensions[strings.ToLower(ext)]
	return ok
}
