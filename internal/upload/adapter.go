// Package upload validates a video and sends it to the backend, retrying
// transient failures with a linear backoff.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/mentor-metrics-cli/internal/api"
)

const (
	defaultMaxAttempts = 3
	defaultRetryDelay  = 1 * time.Second
	bytesPerMB         = 1024 * 1024
)

// Request is one file selected for upload. Open is called once per attempt.
type Request struct {
	Name     string
	MIMEType string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// Result is a successful upload.
type Result struct {
	SessionID string
	UserID    string
	Attempts  int
}

// Transport sends one upload attempt. *api.Client satisfies it.
type Transport interface {
	Upload(ctx context.Context, f api.UploadFile, onProgress func(int)) (*api.UploadResponse, error)
}

// Options configure validation and retry.
type Options struct {
	MaxBytes     int64
	AllowedTypes []string
	MaxAttempts  int
	// RetryDelay is the base delay; the wait before attempt n+1 is n*RetryDelay.
	RetryDelay time.Duration
}

// Adapter runs validated uploads. It holds no per-upload state, so one
// Adapter may serve any number of sequential or concurrent uploads.
type Adapter struct {
	transport Transport
	opts      Options
	allowed   map[string]bool
	sleep     func(ctx context.Context, d time.Duration) error
}

// New creates an Adapter. Zero MaxAttempts and RetryDelay select 3 and 1s.
func New(transport Transport, opts Options) *Adapter {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	allowed := make(map[string]bool, len(opts.AllowedTypes))
	for _, t := range opts.AllowedTypes {
		allowed[t] = true
	}
	return &Adapter{
		transport: transport,
		opts:      opts,
		allowed:   allowed,
		sleep:     sleepContext,
	}
}

// Validate checks a request without contacting the backend.
func (a *Adapter) Validate(req *Request) error {
	if req == nil {
		return &Error{Code: CodeNoFile, Message: msgNoFile}
	}
	if !a.allowed[req.MIMEType] {
		return &Error{Code: CodeInvalidType, Message: msgInvalidType}
	}
	if a.opts.MaxBytes > 0 && req.Size > a.opts.MaxBytes {
		return &Error{
			Code:    CodeInvalidSize,
			Message: fmt.Sprintf("File size exceeds limit of %dMB", a.opts.MaxBytes/bytesPerMB),
		}
	}
	return nil
}

// Upload validates req and sends it, retrying network errors and 5xx
// responses up to MaxAttempts. A 4xx response fails immediately.
//
// onProgress may be nil. It receives 0 at the start of every attempt and
// non-decreasing percentages within an attempt.
func (a *Adapter) Upload(ctx context.Context, req *Request, onProgress func(int)) (*Result, error) {
	if err := a.Validate(req); err != nil {
		log.Debug().Err(err).Msg("Upload rejected before transmission")
		return nil, err
	}

	file := api.UploadFile{
		Name:     req.Name,
		MIMEType: req.MIMEType,
		Size:     req.Size,
		Open:     req.Open,
	}
	gate := &progressGate{fn: onProgress}

	var lastErr error
	for attempt := 1; attempt <= a.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(attempt-1) * a.opts.RetryDelay
			log.Warn().
				Err(lastErr).
				Int("attempt", attempt-1).
				Dur("retryIn", delay).
				Msg("Upload attempt failed, retrying")
			if err := a.sleep(ctx, delay); err != nil {
				return nil, failed(err, attempt-1)
			}
		}

		gate.reset()
		resp, err := a.transport.Upload(ctx, file, gate.report)
		if err == nil {
			log.Info().
				Str("sessionId", resp.SessionID).
				Int("attempt", attempt).
				Msg("Upload succeeded")
			return &Result{SessionID: resp.SessionID, UserID: resp.UserID, Attempts: attempt}, nil
		}
		lastErr = err

		if api.IsClientError(err) {
			log.Error().Err(err).Int("statusCode", api.StatusCode(err)).Msg("Upload rejected by server")
			return nil, failed(err, attempt)
		}
		if ctx.Err() != nil {
			return nil, failed(ctx.Err(), attempt)
		}
	}

	log.Error().Err(lastErr).Int("attempts", a.opts.MaxAttempts).Msg("Upload failed after retries")
	return nil, failed(lastErr, a.opts.MaxAttempts)
}

// progressGate enforces per-attempt monotonic progress.
type progressGate struct {
	fn   func(int)
	last int
}

func (g *progressGate) reset() {
	g.last = 0
	if g.fn != nil {
		g.fn(0)
	}
}

func (g *progressGate) report(pct int) {
	if pct > 100 {
		pct = 100
	}
	if g.fn == nil || pct <= g.last {
		return
	}
	g.last = pct
	g.fn(pct)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsCanceled reports whether an upload error was caused by cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
