package api

import (
	"encoding/json"
	"io"

	"github.com/fpang/mentor-metrics-cli/internal/pipeline"
)

// UploadFile describes a file to send to POST /upload/. Open is called once
// per attempt so retries always start from the first byte.
type UploadFile struct {
	Name     string
	MIMEType string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// UploadResponse is the body of a successful upload.
type UploadResponse struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

// StatusResponse is the body of GET /status/{id}. Status is kept as the
// raw backend string; callers parse it with pipeline.ParseStatus.
type StatusResponse struct {
	SessionID string             `json:"session_id,omitempty"`
	Status    string             `json:"status"`
	Metadata  *pipeline.Metadata `json:"metadata,omitempty"`
}

// Results is the body of GET /results/{id}.
type Results struct {
	SessionID  string             `json:"session_id,omitempty"`
	Status     string             `json:"status"`
	Scores     map[string]float64 `json:"scores,omitempty"`
	Transcript *Transcript        `json:"transcript,omitempty"`
	Audio      *AudioMetrics      `json:"audio,omitempty"`
	Visual     json.RawMessage    `json:"visual,omitempty"`
	Text       json.RawMessage    `json:"text,omitempty"`
	Report     *Report            `json:"report,omitempty"`
}

// Transcript is the speech-to-text output for a session.
type Transcript struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments,omitempty"`
}

// Segment is one timed transcript span. Times are in seconds.
type Segment struct {
	Start      float64  `json:"start"`
	End        float64  `json:"end"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// AudioMetrics are the audio sub-scores.
type AudioMetrics struct {
	WPM          float64 `json:"wpm"`
	ClarityScore float64 `json:"clarity_score"`
	SilenceRatio float64 `json:"silence_ratio"`
}

// Report is the generated feedback report.
type Report struct {
	Summary        string   `json:"summary"`
	Strengths      []string `json:"strengths,omitempty"`
	Improvements   []string `json:"improvements,omitempty"`
	ActionableTips []string `json:"actionable_tips,omitempty"`
}

// Duration returns the transcript length in seconds, taken from the end of
// the last segment.
func (t *Transcript) Duration() float64 {
	if t == nil || len(t.Segments) == 0 {
		return 0
	}
	return t.Segments[len(t.Segments)-1].End
}

// SessionSummary is one entry of GET /sessions/list.
type SessionSummary struct {
	ID          string   `json:"id"`
	Filename    string   `json:"filename"`
	Status      string   `json:"status"`
	CreatedAt   string   `json:"created_at"`
	MentorScore *float64 `json:"mentor_score,omitempty"`
}

// Event is a client telemetry event for POST /analytics/frontend.
type Event struct {
	Name      string                 `json:"event_name"`
	SessionID *string                `json:"session_id"`
	Metadata  map[string]interface{} `json:"metadata"`
}
