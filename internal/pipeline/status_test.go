package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	for _, s := range AllStatuses {
		got, err := ParseStatus(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

func TestParseStatus_Unknown(t *testing.T) {
	for _, raw := range []string{"", "queued", "COMPLETE", "processing_ocr"} {
		_, err := ParseStatus(raw)
		assert.True(t, errors.Is(err, ErrUnknownStatus), "expected ErrUnknownStatus for %q", raw)
	}
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusComplete.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusReportCompleted.IsTerminal())

	assert.True(t, StatusPending.CanStartProcessing())
	assert.True(t, StatusUploaded.CanStartProcessing())
	assert.False(t, StatusProcessing.CanStartProcessing())

	assert.True(t, StatusProcessingFusion.InProgress())
	assert.False(t, StatusUploaded.InProgress())
	assert.False(t, StatusFailed.InProgress())
	assert.False(t, Status("mystery").InProgress())
}

func TestStatusBefore(t *testing.T) {
	assert.True(t, StatusUploaded.Before(StatusSTTCompleted))
	assert.False(t, StatusSTTCompleted.Before(StatusUploaded))
	assert.False(t, StatusComplete.Before(StatusComplete))
	assert.False(t, StatusPending.Before(StatusFailed))
	assert.False(t, StatusFailed.Before(StatusComplete))
}

func TestStages_FixedOrder(t *testing.T) {
	want := []StageID{
		StageUpload, StageSTT, StageAudioAnalysis, StageVisualAnalysis,
		StageTextAnalysis, StageFusion, StageReport, StageComplete,
	}
	got := Stages()
	require.Len(t, got, len(want))
	for i, id := range want {
		assert.Equal(t, id, got[i].ID)
		assert.NotEmpty(t, got[i].Label)
		assert.NotEmpty(t, got[i].Description)
	}

	// Mutating the copy must not affect the package order.
	got[0].ID = "mutated"
	assert.Equal(t, StageUpload, Stages()[0].ID)
}
