package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// statesByID flattens a mapping for easier assertions.
func statesByID(states []StageState) map[StageID]State {
	m := make(map[StageID]State, len(states))
	for _, s := range states {
		m[s.Stage.ID] = s.State
	}
	return m
}

func idsInState(states []StageState, want State) []StageID {
	var ids []StageID
	for _, s := range states {
		if s.State == want {
			ids = append(ids, s.Stage.ID)
		}
	}
	return ids
}

func TestMapStatusToStages_STTCompleted(t *testing.T) {
	states := MapStatusToStages(StatusSTTCompleted, &Metadata{})

	assert.Equal(t, []StageID{StageUpload, StageSTT}, idsInState(states, StateDone))
	assert.Equal(t, []StageID{StageAudioAnalysis}, idsInState(states, StateInProgress))
	assert.Equal(t, []StageID{
		StageVisualAnalysis, StageTextAnalysis, StageFusion, StageReport, StageComplete,
	}, idsInState(states, StatePending))
}

func TestMapStatusToStages_FailedUsesMetadata(t *testing.T) {
	states := MapStatusToStages(StatusFailed, &Metadata{StagesCompleted: []string{"upload", "stt"}})

	assert.Equal(t, []StageID{StageUpload, StageSTT}, idsInState(states, StateDone))
	assert.Empty(t, idsInState(states, StateInProgress))
	assert.Len(t, idsInState(states, StatePending), 6)
}

func TestMapStatusToStages_FailedWithoutMetadata(t *testing.T) {
	states := MapStatusToStages(StatusFailed, nil)

	// Upload necessarily preceded a failure.
	assert.Equal(t, []StageID{StageUpload}, idsInState(states, StateDone))
	assert.Empty(t, idsInState(states, StateInProgress))
}

func TestMapStatusToStages_CompleteMarksAllDone(t *testing.T) {
	states := MapStatusToStages(StatusComplete, &Metadata{})

	require.Len(t, states, 8)
	for _, s := range states {
		assert.Equal(t, StateDone, s.State, "stage %s", s.Stage.ID)
	}
}

func TestMapStatusToStages_Pending(t *testing.T) {
	states := MapStatusToStages(StatusPending, nil)

	assert.Len(t, idsInState(states, StatePending), 8)
}

func TestMapStatusToStages_UploadedHasNoCurrentStage(t *testing.T) {
	states := statesByID(MapStatusToStages(StatusUploaded, nil))

	assert.Equal(t, StateDone, states[StageUpload])
	assert.Equal(t, StatePending, states[StageSTT])
}

func TestMapStatusToStages_MetadataWinsOnlyWhenLonger(t *testing.T) {
	tests := []struct {
		name     string
		status   Status
		meta     []string
		wantDone []StageID
		wantCur  []StageID
	}{
		{
			name:     "richer metadata wins",
			status:   StatusProcessingSTT,
			meta:     []string{"upload", "stt", "audio_analysis"},
			wantDone: []StageID{StageUpload, StageSTT, StageAudioAnalysis},
			wantCur:  nil, // stt is current but already done
		},
		{
			name:     "equal length keeps the status table",
			status:   StatusSTTCompleted,
			meta:     []string{"upload", "visual_analysis"},
			wantDone: []StageID{StageUpload, StageSTT},
			wantCur:  []StageID{StageAudioAnalysis},
		},
		{
			name:     "unknown and duplicate ids are ignored",
			status:   StatusProcessing,
			meta:     []string{"upload", "upload", "bogus", "warmup"},
			wantDone: []StageID{StageUpload},
			wantCur:  []StageID{StageSTT},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			states := MapStatusToStages(tt.status, &Metadata{StagesCompleted: tt.meta})
			assert.Equal(t, tt.wantDone, idsInState(states, StateDone))
			assert.Equal(t, tt.wantCur, idsInState(states, StateInProgress))
		})
	}
}

func TestMapStatusToStages_Deterministic(t *testing.T) {
	meta := &Metadata{StagesCompleted: []string{"upload", "stt", "audio_analysis"}}
	for _, s := range AllStatuses {
		first := MapStatusToStages(s, meta)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, MapStatusToStages(s, meta), "status %s", s)
		}
	}
}

func TestMapStatusToStages_MonotonicAlongPipeline(t *testing.T) {
	prevDone := map[StageID]bool{}
	for _, s := range AllStatuses {
		if s == StatusFailed {
			continue
		}
		states := statesByID(MapStatusToStages(s, nil))
		for id := range prevDone {
			assert.Equal(t, StateDone, states[id], "stage %s reverted at status %s", id, s)
		}
		for id, st := range states {
			if st == StateDone {
				prevDone[id] = true
			}
		}
	}
}

func TestStatusTablesAreExhaustive(t *testing.T) {
	for _, s := range AllStatuses {
		_, ok := completedCount(s)
		assert.True(t, ok, "completed-stage table misses %s", s)
		_, _, ok = currentStage(s)
		assert.True(t, ok, "current-stage table misses %s", s)
		assert.NotEqual(t, "UNKNOWN", s.Label(), "label missing for %s", s)
	}
}

func TestCurrentStage_NilForIdleAndTerminal(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusUploaded, StatusComplete, StatusFailed} {
		_, has := CurrentStage(s)
		assert.False(t, has, "status %s should have no current stage", s)
	}
}

func TestProgress(t *testing.T) {
	done, total := Progress(MapStatusToStages(StatusAudioCompleted, nil))
	assert.Equal(t, 3, done)
	assert.Equal(t, 8, total)
}

func TestTimeline_KeepsDoneStages(t *testing.T) {
	var tl Timeline

	first := tl.Advance(StatusProcessingAudio, &Metadata{StagesCompleted: []string{"upload", "stt", "audio_analysis"}})
	assert.Equal(t, StateDone, statesByID(first)[StageAudioAnalysis])

	// A later poll with a poorer signal does not un-complete audio analysis.
	second := tl.Advance(StatusProcessingAudio, nil)
	assert.Equal(t, StateDone, statesByID(second)[StageAudioAnalysis])
}

func TestTimeline_FailedShowsMapping(t *testing.T) {
	var tl Timeline
	tl.Advance(StatusVisualCompleted, nil)

	states := tl.Advance(StatusFailed, &Metadata{StagesCompleted: []string{"upload", "stt"}})
	assert.Equal(t, []StageID{StageUpload, StageSTT}, idsInState(states, StateDone))
}
