//go:build integration

package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/cucumber/godog"

	"github.com/fpang/mentor-metrics-cli/internal/pipeline"
)

// timelineContext holds state for one timeline scenario
type timelineContext struct {
	meta     *pipeline.Metadata
	timeline pipeline.Timeline
	states   []pipeline.StageState
	err      error
}

var sharedTimeline *timelineContext

func InitializeTimelineScenario(ctx *godog.ScenarioContext) {
	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		sharedTimeline = &timelineContext{}
		return c, nil
	})

	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		sharedTimeline = nil
		return c, nil
	})

	ctx.Step(`^the backend reports no metadata$`, theBackendReportsNoMetadata)
	ctx.Step(`^the backend reports completed stages "([^"]*)"$`, theBackendReportsCompletedStages)
	ctx.Step(`^the session status is "([^"]*)"$`, theSessionStatusIs)
	ctx.Step(`^the poller sees statuses "([^"]*)"$`, thePollerSeesStatuses)
	ctx.Step(`^the stages should be:$`, theStagesShouldBe)
	ctx.Step(`^(\d+) of (\d+) stages should be done$`, stagesShouldBeDone)
	ctx.Step(`^no stage should be in progress$`, noStageShouldBeInProgress)
	ctx.Step(`^the status should be rejected$`, theStatusShouldBeRejected)
}

func theBackendReportsNoMetadata() error {
	sharedTimeline.meta = nil
	return nil
}

func theBackendReportsCompletedStages(list string) error {
	sharedTimeline.meta = &pipeline.Metadata{StagesCompleted: splitList(list)}
	return nil
}

func theSessionStatusIs(raw string) error {
	status, err := pipeline.ParseStatus(raw)
	if err != nil {
		sharedTimeline.err = err
		return nil
	}
	sharedTimeline.states = pipeline.MapStatusToStages(status, sharedTimeline.meta)
	return nil
}

func thePollerSeesStatuses(list string) error {
	for _, raw := range splitList(list) {
		status, err := pipeline.ParseStatus(raw)
		if err != nil {
			return err
		}
		sharedTimeline.states = sharedTimeline.timeline.Advance(status, sharedTimeline.meta)
	}
	return nil
}

func theStagesShouldBe(table *godog.Table) error {
	want := make(map[string]string)
	for _, row := range table.Rows[1:] {
		want[row.Cells[0].Value] = row.Cells[1].Value
	}
	if len(sharedTimeline.states) == 0 {
		return fmt.Errorf("no timeline was computed")
	}
	for _, s := range sharedTimeline.states {
		expected, ok := want[string(s.Stage.ID)]
		if !ok {
			continue
		}
		if string(s.State) != expected {
			return fmt.Errorf("stage %s: expected %s, got %s", s.Stage.ID, expected, s.State)
		}
	}
	return nil
}

func stagesShouldBeDone(done, total int) error {
	gotDone, gotTotal := pipeline.Progress(sharedTimeline.states)
	if gotDone != done || gotTotal != total {
		return fmt.Errorf("expected %d/%d stages done, got %d/%d", done, total, gotDone, gotTotal)
	}
	return nil
}

func noStageShouldBeInProgress() error {
	for _, s := range sharedTimeline.states {
		if s.State == pipeline.StateInProgress {
			return fmt.Errorf("stage %s is in progress", s.Stage.ID)
		}
	}
	return nil
}

func theStatusShouldBeRejected() error {
	if sharedTimeline.err == nil {
		return fmt.Errorf("expected the status to be rejected")
	}
	return nil
}

func splitList(list string) []string {
	var out []string
	for _, part := range strings.Split(list, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
