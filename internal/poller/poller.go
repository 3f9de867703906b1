// Package poller watches a session's pipeline status until it completes,
// fails, or the caller stops watching.
//
// The loop is strictly serialized: fetch, deliver, wait one interval, fetch
// again. A fetch is never started while another is outstanding, however
// slow the backend is.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/mentor-metrics-cli/internal/api"
	"github.com/fpang/mentor-metrics-cli/internal/pipeline"
)

const (
	defaultInterval = 3000 * time.Millisecond
	defaultTimeout  = 30 * time.Second
)

// StatusFetcher fetches one status snapshot. *api.Client satisfies it.
type StatusFetcher interface {
	Status(ctx context.Context, sessionID string) (*api.StatusResponse, error)
}

// Update is one delivered status snapshot.
type Update struct {
	SessionID string
	Status    pipeline.Status
	Metadata  *pipeline.Metadata
	// Stages is the timeline for this snapshot. Stages shown done earlier in
	// the same run stay done.
	Stages    []pipeline.StageState
	FetchedAt time.Time
}

// Handler receives poll results. All callbacks run on the polling
// goroutine, one at a time, and may be nil. They must not call the stop
// function returned by Start; cancel the context passed to Start instead.
type Handler struct {
	// OnUpdate receives every parsed snapshot, including the final one.
	OnUpdate func(Update)
	// OnComplete fires exactly once, after the complete snapshot.
	OnComplete func(Update)
	// OnFailed fires once when the backend reports the session failed.
	OnFailed func(Update)
	// OnError fires once for a terminal fetch error (404 or 5xx).
	OnError func(error)
}

// Options configure a Poller.
type Options struct {
	Interval       time.Duration
	RequestTimeout time.Duration
}

// Poller polls GET /status/{id}. It holds no per-session state and may run
// any number of sessions.
type Poller struct {
	fetcher  StatusFetcher
	interval time.Duration
	timeout  time.Duration
	after    func(time.Duration) <-chan time.Time
	now      func() time.Time
}

// New creates a Poller. Zero options select a 3s interval and 30s timeout.
func New(fetcher StatusFetcher, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultTimeout
	}
	return &Poller{
		fetcher:  fetcher,
		interval: opts.Interval,
		timeout:  opts.RequestTimeout,
		after:    time.After,
		now:      time.Now,
	}
}

// Interval returns the delay between fetches.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// watch is the state of one polling run.
type watch struct {
	sessionID string
	handler   Handler
	timeline  pipeline.Timeline

	// mu is held across each fetch and its callbacks. stopped is only
	// read and written under mu.
	mu      sync.Mutex
	stopped bool
}

// Start polls sessionID in a new goroutine. The returned stop function
// cancels the in-flight fetch and the pending wait; once it returns no
// further fetch is issued and no callback fires. Calling stop more than
// once is safe.
func (p *Poller) Start(ctx context.Context, sessionID string, h Handler) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	w := &watch{sessionID: sessionID, handler: h}
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer cancel()
		if err := p.loop(ctx, w); err != nil && ctx.Err() == nil {
			log.Debug().Err(err).Str("sessionId", sessionID).Msg("Polling ended with error")
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			w.mu.Lock()
			w.stopped = true
			w.mu.Unlock()
			log.Debug().Str("sessionId", sessionID).Msg("Polling stopped")
		})
	}
}

// Run polls sessionID on the calling goroutine until the session completes
// or fails (nil), a terminal fetch error occurs (that error), or ctx ends
// (ctx.Err()).
func (p *Poller) Run(ctx context.Context, sessionID string, h Handler) error {
	return p.loop(ctx, &watch{sessionID: sessionID, handler: h})
}

func (p *Poller) loop(ctx context.Context, w *watch) error {
	log.Debug().Str("sessionId", w.sessionID).Dur("interval", p.interval).Msg("Polling started")
	for {
		finished, err := p.step(ctx, w)
		if finished {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.after(p.interval):
		}
	}
}

// step performs one fetch and delivers its result. It reports whether
// polling is over.
func (p *Poller) step(ctx context.Context, w *watch) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return true, context.Canceled
	}
	if err := ctx.Err(); err != nil {
		return true, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	resp, err := p.fetcher.Status(fetchCtx, w.sessionID)
	cancel()

	if err != nil {
		if ctx.Err() != nil {
			return true, ctx.Err()
		}
		if api.IsNotFound(err) || api.IsServerError(err) {
			log.Error().Err(err).Str("sessionId", w.sessionID).Int("statusCode", api.StatusCode(err)).Msg("Status poll failed")
			if w.handler.OnError != nil {
				w.handler.OnError(err)
			}
			return true, err
		}
		log.Warn().Err(err).Str("sessionId", w.sessionID).Msg("Status poll error, retrying")
		return false, nil
	}

	status, err := pipeline.ParseStatus(resp.Status)
	if err != nil {
		log.Warn().Str("sessionId", w.sessionID).Str("status", resp.Status).Msg("Unknown session status, retrying")
		return false, nil
	}

	u := Update{
		SessionID: w.sessionID,
		Status:    status,
		Metadata:  resp.Metadata,
		Stages:    w.timeline.Advance(status, resp.Metadata),
		FetchedAt: p.now(),
	}
	log.Debug().Str("sessionId", w.sessionID).Str("status", string(status)).Msg("Status update")

	if w.handler.OnUpdate != nil {
		w.handler.OnUpdate(u)
	}

	switch status {
	case pipeline.StatusComplete:
		log.Info().Str("sessionId", w.sessionID).Msg("Session processing complete")
		if w.handler.OnComplete != nil {
			w.handler.OnComplete(u)
		}
		return true, nil
	case pipeline.StatusFailed:
		log.Warn().Str("sessionId", w.sessionID).Msg("Session processing failed")
		if w.handler.OnFailed != nil {
			w.handler.OnFailed(u)
		}
		return true, nil
	}
	return false, nil
}
