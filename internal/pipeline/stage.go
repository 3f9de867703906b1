package pipeline

// StageID identifies one pipeline stage.
type StageID string

const (
	StageUpload         StageID = "upload"
	StageSTT            StageID = "stt"
	StageAudioAnalysis  StageID = "audio_analysis"
	StageVisualAnalysis StageID = "visual_analysis"
	StageTextAnalysis   StageID = "text_analysis"
	StageFusion         StageID = "fusion"
	StageReport         StageID = "report"
	StageComplete       StageID = "complete"
)

// Stage is a pipeline stage with its display text.
type Stage struct {
	ID          StageID
	Label       string
	Description string
}

// stages is the fixed stage order. It is never reordered.
var stages = [...]Stage{
	{StageUpload, "Video Uploaded", "Video file received and stored."},
	{StageSTT, "Transcript Extracted", "Speech-to-text conversion complete."},
	{StageAudioAnalysis, "Audio Analysis", "Tone, pitch, and clarity analyzed."},
	{StageVisualAnalysis, "Visual Analysis", "Gestures and facial expressions analyzed."},
	{StageTextAnalysis, "Text Analysis", "Content structure and quality evaluated."},
	{StageFusion, "Fusion & Scoring", "Multimodal data combined for final score."},
	{StageReport, "Report Generated", "Detailed feedback report created."},
	{StageComplete, "Session Complete", "Ready for review."},
}

// Stages returns the ordered pipeline stages. The returned slice is a copy.
func Stages() []Stage {
	out := make([]Stage, len(stages))
	copy(out, stages[:])
	return out
}

// LookupStage returns the stage with the given id.
func LookupStage(id StageID) (Stage, bool) {
	for _, s := range stages {
		if s.ID == id {
			return s, true
		}
	}
	return Stage{}, false
}

// stagesThrough returns the ids of the first n stages.
func stagesThrough(n int) []StageID {
	ids := make([]StageID, n)
	for i := 0; i < n; i++ {
		ids[i] = stages[i].ID
	}
	return ids
}
