package filehandler

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// VideoMetadata holds the properties shown before an upload is confirmed.
// It is informational only and never sent to the backend.
type VideoMetadata struct {
	Duration   time.Duration
	Width      int
	Height     int
	FrameRate  float64
	Codec      string
	AudioCodec string
}

// Resolution returns "WxH", or "" when unknown.
func (m *VideoMetadata) Resolution() string {
	if m == nil || m.Width == 0 || m.Height == 0 {
		return ""
	}
	return fmt.Sprintf("%dx%d", m.Width, m.Height)
}

// ffprobeOutput represents the JSON structure from ffprobe.
type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

type ffprobeStream struct {
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	RFrameRate string `json:"r_frame_rate"`
}

// ProbeVideo reads video properties with ffprobe. It fails when ffprobe is
// not installed; callers treat that as "no metadata".
func ProbeVideo(ctx context.Context, filePath string) (*VideoMetadata, error) {
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	meta, err := parseProbe(output)
	if err != nil {
		return nil, err
	}
	log.Debug().
		Dur("duration", meta.Duration).
		Str("resolution", meta.Resolution()).
		Str("codec", meta.Codec).
		Msg("Video metadata extracted via ffprobe")
	return meta, nil
}

func parseProbe(output []byte) (*VideoMetadata, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	meta := &VideoMetadata{}
	if probe.Format.Duration != "" {
		if dur, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
			meta.Duration = time.Duration(dur * float64(time.Second))
		}
	}
	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			if meta.Codec == "" {
				meta.Codec = stream.CodecName
				meta.Width = stream.Width
				meta.Height = stream.Height
				meta.FrameRate = parseFrameRate(stream.RFrameRate)
			}
		case "audio":
			if meta.AudioCodec == "" {
				meta.AudioCodec = stream.CodecName
			}
		}
	}
	return meta, nil
}

// parseFrameRate parses ffprobe's rational frame rate ("30000/1001").
func parseFrameRate(value string) float64 {
	num, den, ok := strings.Cut(value, "/")
	if !ok {
		f, _ := strconv.ParseFloat(value, 64)
		return f
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
