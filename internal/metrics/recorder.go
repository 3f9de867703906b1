// Package metrics records client telemetry events on the backend's
// POST /analytics/frontend endpoint.
//
// Recording is best-effort: a failed post is logged at warn level and never
// surfaces to the caller, so telemetry can't break a command.
package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fpang/mentor-metrics-cli/internal/api"
)

// Event names.
const (
	EventPageView       = "page_view"
	EventUploadComplete = "upload_completed"
	EventUploadFailed   = "upload_failed"
	EventRestart        = "session_restarted"
	EventExport         = "export_downloaded"
)

// Page names for page_view events.
const (
	PageUpload  = "upload"
	PageStatus  = "status"
	PageResults = "results"
)

// flushTimeout bounds a single post so a slow analytics endpoint cannot
// hold up the command that emitted the event.
var flushTimeout = 2 * time.Second

// Sink accepts events. *api.Client satisfies it.
type Sink interface {
	RecordEvent(ctx context.Context, evt api.Event) error
}

// Recorder accumulates the fields of a single event. It is NOT safe for
// concurrent use; create one per event.
type Recorder struct {
	sink      Sink
	name      string
	id        string
	sessionID *string
	metadata  map[string]interface{}
}

// clientVersion is set by cmd/ at startup and attached to every event.
var clientVersion = "dev"

// SetVersion records the CLI version reported with every event.
func SetVersion(v string) {
	if v != "" {
		clientVersion = v
	}
}

// New starts an event. A nil sink makes Flush a no-op.
func New(sink Sink, name string) *Recorder {
	return &Recorder{
		sink:     sink,
		name:     name,
		id:       uuid.NewString(),
		metadata: make(map[string]interface{}),
	}
}

// Session attaches the session id. An empty id is sent as null.
func (r *Recorder) Session(id string) *Recorder {
	if id != "" {
		r.sessionID = &id
	}
	return r
}

// Property adds a metadata field.
func (r *Recorder) Property(key string, value interface{}) *Recorder {
	r.metadata[key] = value
	return r
}

// Duration adds a duration field in milliseconds, suffixed "_ms".
func (r *Recorder) Duration(key string, d time.Duration) *Recorder {
	r.metadata[key+"_ms"] = d.Milliseconds()
	return r
}

// Count increments an integer metadata field.
func (r *Recorder) Count(key string) *Recorder {
	n, _ := r.metadata[key].(int)
	r.metadata[key] = n + 1
	return r
}

// Event returns the event as it will be posted.
func (r *Recorder) Event() api.Event {
	md := make(map[string]interface{}, len(r.metadata)+2)
	for k, v := range r.metadata {
		md[k] = v
	}
	md["event_id"] = r.id
	md["client"] = "cli"
	md["client_version"] = clientVersion
	md["os"] = runtime.GOOS
	return api.Event{Name: r.name, SessionID: r.sessionID, Metadata: md}
}

// Flush posts the event. After flushing, the Recorder should not be reused.
func (r *Recorder) Flush(ctx context.Context) {
	if r.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()
	if err := r.sink.RecordEvent(ctx, r.Event()); err != nil {
		log.Warn().Err(err).Str("event", r.name).Msg("Failed to record analytics event")
		return
	}
	log.Trace().Str("event", r.name).Msg("Analytics event recorded")
}

// PageView records a page_view event for page.
func PageView(ctx context.Context, sink Sink, page, sessionID string) {
	New(sink, EventPageView).Session(sessionID).Property("page", page).Flush(ctx)
}
