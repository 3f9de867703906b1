package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fpang/mentor-metrics-cli/internal/api"
)

type captureSink struct {
	events []api.Event
	err    error
}

func (c *captureSink) RecordEvent(ctx context.Context, evt api.Event) error {
	c.events = append(c.events, evt)
	return c.err
}

func TestRecorder_Event(t *testing.T) {
	SetVersion("1.2.3")
	sink := &captureSink{}

	New(sink, EventUploadComplete).
		Session("sess-1").
		Property("mime_type", "video/mp4").
		Duration("upload", 1500*time.Millisecond).
		Count("attempts").
		Count("attempts").
		Flush(context.Background())

	if len(sink.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(sink.events))
	}
	evt := sink.events[0]
	if evt.Name != EventUploadComplete {
		t.Errorf("expected %s, got %s", EventUploadComplete, evt.Name)
	}
	if evt.SessionID == nil || *evt.SessionID != "sess-1" {
		t.Errorf("expected session sess-1, got %v", evt.SessionID)
	}
	if evt.Metadata["upload_ms"] != int64(1500) {
		t.Errorf("expected upload_ms 1500, got %v", evt.Metadata["upload_ms"])
	}
	if evt.Metadata["attempts"] != 2 {
		t.Errorf("expected attempts 2, got %v", evt.Metadata["attempts"])
	}
	if evt.Metadata["client_version"] != "1.2.3" {
		t.Errorf("expected client_version 1.2.3, got %v", evt.Metadata["client_version"])
	}
}

func TestPageView_NullSession(t *testing.T) {
	sink := &captureSink{}
	PageView(context.Background(), sink, PageUpload, "")

	evt := sink.events[0]
	if evt.SessionID != nil {
		t.Errorf("expected nil session id, got %q", *evt.SessionID)
	}
	if evt.Metadata["page"] != PageUpload {
		t.Errorf("expected page upload, got %v", evt.Metadata["page"])
	}
}

func TestFlush_FailureIsSwallowed(t *testing.T) {
	sink := &captureSink{err: errors.New("503")}
	// Must not panic or block.
	New(sink, EventPageView).Flush(context.Background())
	if len(sink.events) != 1 {
		t.Errorf("expected one attempt, got %d", len(sink.events))
	}
}

func TestFlush_NilSink(t *testing.T) {
	New(nil, EventPageView).Flush(context.Background())
}

func TestRecorder_EventIDStable(t *testing.T) {
	r := New(nil, EventRestart)
	first, _ := r.Event().Metadata["event_id"].(string)
	second, _ := r.Event().Metadata["event_id"].(string)
	if first == "" || first != second {
		t.Errorf("expected a stable event id, got %q and %q", first, second)
	}
	if other, _ := New(nil, EventRestart).Event().Metadata["event_id"].(string); other == first {
		t.Error("expected distinct ids for distinct events")
	}
}

// stallSink blocks until the caller gives up.
type stallSink struct {
	err error
}

func (s *stallSink) RecordEvent(ctx context.Context, evt api.Event) error {
	<-ctx.Done()
	s.err = ctx.Err()
	return s.err
}

func TestFlush_BoundedBySlowSink(t *testing.T) {
	saved := flushTimeout
	flushTimeout = 20 * time.Millisecond
	defer func() { flushTimeout = saved }()

	sink := &stallSink{}
	start := time.Now()
	PageView(context.Background(), sink, PageStatus, "s1")

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("expected flush to give up quickly, took %s", elapsed)
	}
	if !errors.Is(sink.err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", sink.err)
	}
}
