package pipeline

// State is the display state of one stage.
type State string

const (
	StateDone       State = "done"
	StateInProgress State = "in-progress"
	StatePending    State = "pending"
)

// Metadata is the optional status metadata reported by the backend.
type Metadata struct {
	StagesCompleted []string `json:"stages_completed,omitempty"`
}

// StageState pairs a stage with its display state.
type StageState struct {
	Stage Stage
	State State
}

// completedCount returns how many leading stages are complete at status s.
// The switch covers every member of the closed Status set; ok is false only
// for values that bypassed ParseStatus.
func completedCount(s Status) (n int, ok bool) {
	switch s {
	case StatusPending:
		return 0, true
	case StatusUploaded, StatusProcessingStarted, StatusProcessing, StatusProcessingSTT:
		return 1, true
	case StatusSTTCompleted, StatusProcessingAudio:
		return 2, true
	case StatusAudioCompleted, StatusProcessingVisual:
		return 3, true
	case StatusVisualCompleted, StatusProcessingTextEval:
		return 4, true
	case StatusTextEvalCompleted, StatusProcessingFusion:
		return 5, true
	case StatusFusionCompleted, StatusProcessingReport:
		return 6, true
	case StatusReportCompleted:
		return 7, true
	case StatusComplete:
		return len(stages), true
	case StatusFailed:
		// Completed stages of a failed session come from metadata only.
		return 0, true
	}
	return 0, false
}

// currentStage returns the stage the backend is working on at status s.
// has is false when nothing is in progress.
func currentStage(s Status) (id StageID, has bool, ok bool) {
	switch s {
	case StatusPending, StatusUploaded, StatusComplete, StatusFailed:
		return "", false, true
	case StatusProcessingStarted, StatusProcessing, StatusProcessingSTT:
		return StageSTT, true, true
	case StatusSTTCompleted, StatusProcessingAudio:
		return StageAudioAnalysis, true, true
	case StatusAudioCompleted, StatusProcessingVisual:
		return StageVisualAnalysis, true, true
	case StatusVisualCompleted, StatusProcessingTextEval:
		return StageTextAnalysis, true, true
	case StatusTextEvalCompleted, StatusProcessingFusion:
		return StageFusion, true, true
	case StatusFusionCompleted, StatusProcessingReport:
		return StageReport, true, true
	case StatusReportCompleted:
		return StageComplete, true, true
	}
	return "", false, false
}

// CompletedStages returns the stages the static status table considers
// complete at s.
func CompletedStages(s Status) []StageID {
	n, _ := completedCount(s)
	return stagesThrough(n)
}

// CurrentStage returns the in-progress stage at s, if any.
func CurrentStage(s Status) (StageID, bool) {
	id, has, _ := currentStage(s)
	return id, has
}

// metadataStages returns the distinct known stage ids in meta, in the
// order reported.
func metadataStages(meta *Metadata) []StageID {
	if meta == nil {
		return nil
	}
	seen := make(map[StageID]bool, len(meta.StagesCompleted))
	var ids []StageID
	for _, raw := range meta.StagesCompleted {
		id := StageID(raw)
		if _, known := LookupStage(id); !known || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// MapStatusToStages maps a status and optional metadata to the display
// state of every stage, in pipeline order.
//
// The completed set comes from the static status table unless the
// backend's stages_completed list is strictly longer, in which case the
// metadata wins. Upload is done for every status except pending. A failed
// session shows no stage in progress. The result depends only on its
// arguments.
func MapStatusToStages(status Status, meta *Metadata) []StageState {
	done := make(map[StageID]bool, len(stages))

	fromStatus := CompletedStages(status)
	fromMeta := metadataStages(meta)
	completed := fromStatus
	if len(fromMeta) > len(fromStatus) {
		completed = fromMeta
	}
	for _, id := range completed {
		done[id] = true
	}
	if status != StatusPending {
		done[StageUpload] = true
	}

	current, hasCurrent := CurrentStage(status)

	out := make([]StageState, len(stages))
	for i, st := range stages {
		state := StatePending
		switch {
		case done[st.ID]:
			state = StateDone
		case hasCurrent && current == st.ID:
			state = StateInProgress
		}
		out[i] = StageState{Stage: st, State: state}
	}
	return out
}

// Progress returns how many stages are done out of the total.
func Progress(states []StageState) (done, total int) {
	for _, s := range states {
		if s.State == StateDone {
			done++
		}
	}
	return done, len(states)
}

// Timeline keeps the stage display stable across successive polls of one
// session: a stage shown as done stays done while polling continues. A
// failed status is shown exactly as mapped since no transitions follow it.
// The zero value is ready to use.
type Timeline struct {
	done map[StageID]bool
}

// Advance maps the latest status and metadata, merging in stages already
// shown as done.
func (t *Timeline) Advance(status Status, meta *Metadata) []StageState {
	states := MapStatusToStages(status, meta)
	if status == StatusFailed {
		return states
	}
	if t.done == nil {
		t.done = make(map[StageID]bool, len(stages))
	}
	for i := range states {
		id := states[i].Stage.ID
		if t.done[id] {
			states[i].State = StateDone
		}
		if states[i].State == StateDone {
			t.done[id] = true
		}
	}
	return states
}
