// Package pipeline models the backend processing pipeline as seen by the
// client: the closed set of session statuses the backend reports, the fixed
// ordered list of stages, and the mapping from a status (plus the backend's
// stages_completed metadata) to a per-stage display state.
package pipeline

import (
	"errors"
	"fmt"
)

// Status is a backend session status. The set is closed: values outside
// AllStatuses are rejected by ParseStatus rather than rendered with a
// default state.
type Status string

const (
	StatusPending            Status = "pending"
	StatusUploaded           Status = "uploaded"
	StatusProcessingStarted  Status = "processing_started"
	StatusProcessing         Status = "processing"
	StatusProcessingSTT      Status = "processing_stt"
	StatusSTTCompleted       Status = "stt_completed"
	StatusProcessingAudio    Status = "processing_audio"
	StatusAudioCompleted     Status = "audio_completed"
	StatusProcessingVisual   Status = "processing_visual"
	StatusVisualCompleted    Status = "visual_completed"
	StatusProcessingTextEval Status = "processing_text_eval"
	StatusTextEvalCompleted  Status = "text_eval_completed"
	StatusProcessingFusion   Status = "processing_fusion"
	StatusFusionCompleted    Status = "fusion_completed"
	StatusProcessingReport   Status = "processing_report"
	StatusReportCompleted    Status = "report_completed"
	StatusComplete           Status = "complete"
	StatusFailed             Status = "failed"
)

// AllStatuses lists every status in pipeline order. StatusFailed is last;
// it can follow any non-terminal status.
var AllStatuses = []Status{
	StatusPending,
	StatusUploaded,
	StatusProcessingStarted,
	StatusProcessing,
	StatusProcessingSTT,
	StatusSTTCompleted,
	StatusProcessingAudio,
	StatusAudioCompleted,
	StatusProcessingVisual,
	StatusVisualCompleted,
	StatusProcessingTextEval,
	StatusTextEvalCompleted,
	StatusProcessingFusion,
	StatusFusionCompleted,
	StatusProcessingReport,
	StatusReportCompleted,
	StatusComplete,
	StatusFailed,
}

// ErrUnknownStatus is returned by ParseStatus for values outside the closed set.
var ErrUnknownStatus = errors.New("unknown session status")

var statusRank = func() map[Status]int {
	m := make(map[Status]int, len(AllStatuses))
	for i, s := range AllStatuses {
		m[s] = i
	}
	return m
}()

// ParseStatus converts a backend status string into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := statusRank[st]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return st, nil
}

// Valid reports whether s is a member of the closed set.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// IsTerminal reports whether no further transitions follow s.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// InProgress reports whether the backend is actively working on the session.
func (s Status) InProgress() bool {
	return s.Valid() && !s.IsTerminal() && s != StatusPending && s != StatusUploaded
}

// CanStartProcessing reports whether processing has not been triggered yet.
func (s Status) CanStartProcessing() bool {
	return s == StatusPending || s == StatusUploaded
}

// Before reports whether s precedes other along the pipeline. StatusFailed
// is not ordered against anything and always reports false.
func (s Status) Before(other Status) bool {
	if s == StatusFailed || other == StatusFailed {
		return false
	}
	a, okA := statusRank[s]
	b, okB := statusRank[other]
	return okA && okB && a < b
}

// Label is the short uppercase indicator shown next to a status.
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusUploaded:
		return "UPLOADED"
	case StatusProcessingStarted:
		return "STARTING..."
	case StatusProcessing:
		return "PROCESSING"
	case StatusProcessingSTT:
		return "TRANSCRIBING..."
	case StatusSTTCompleted, StatusProcessingAudio:
		return "ANALYZING AUDIO..."
	case StatusAudioCompleted, StatusProcessingVisual:
		return "ANALYZING VIDEO..."
	case StatusVisualCompleted, StatusProcessingTextEval:
		return "ANALYZING TEXT..."
	case StatusTextEvalCompleted, StatusProcessingFusion:
		return "SCORING..."
	case StatusFusionCompleted, StatusProcessingReport, StatusReportCompleted:
		return "FINALIZING..."
	case StatusComplete:
		return "COMPLETE"
	case StatusFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

func (s Status) String() string {
	return string(s)
}
