// Package api provides a client for the MentorMetrics backend REST API.
//
// Every request carries an X-Request-ID and is authenticated with a bearer
// token when the configured Authenticator has one, falling back to the
// anonymous X-User-ID header otherwise. JSON calls are bounded by the
// request timeout; uploads and downloads by the longer transfer timeout.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// defaultTimeout bounds JSON API calls.
	defaultTimeout = 30 * time.Second

	// defaultTransferTimeout bounds uploads and downloads.
	defaultTransferTimeout = 30 * time.Minute

	// maxErrorBody caps how much of an error response is read.
	maxErrorBody = 64 << 10
)

// Authenticator supplies request credentials. BearerToken returns "" for an
// anonymous session, in which case UserID is sent instead.
type Authenticator interface {
	BearerToken(ctx context.Context) (string, error)
	Refresh(ctx context.Context) error
	UserID() string
}

// Client talks to the backend under {base}/api.
type Client struct {
	httpClient      *http.Client
	baseURL         string
	auth            Authenticator
	timeout         time.Duration
	transferTimeout time.Duration
	newRequestID    func() string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout for JSON calls.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithTransferTimeout sets the timeout for uploads and downloads.
func WithTransferTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.transferTimeout = d
		}
	}
}

// WithRequestIDFunc overrides X-Request-ID generation.
func WithRequestIDFunc(fn func() string) Option {
	return func(c *Client) { c.newRequestID = fn }
}

// NewClient creates a client for apiRoot, which already includes the /api
// path (see config.Config.APIRoot). auth may be nil for a fully anonymous
// client.
func NewClient(apiRoot string, auth Authenticator, opts ...Option) *Client {
	c := &Client{
		httpClient:      &http.Client{},
		baseURL:         apiRoot,
		auth:            auth,
		timeout:         defaultTimeout,
		transferTimeout: defaultTransferTimeout,
		newRequestID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// --- JSON endpoints ---

// StartProcessing triggers the pipeline for an uploaded session.
func (c *Client) StartProcessing(ctx context.Context, sessionID string) error {
	if err := c.doJSON(ctx, http.MethodPost, "/process/"+url.PathEscape(sessionID), nil, nil); err != nil {
		return fmt.Errorf("start processing: %w", err)
	}
	log.Info().Str("sessionId", sessionID).Msg("Processing started")
	return nil
}

// Status fetches the current pipeline status of a session.
func (c *Client) Status(ctx context.Context, sessionID string) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.doJSON(ctx, http.MethodGet, "/status/"+url.PathEscape(sessionID), nil, &resp); err != nil {
		return nil, fmt.Errorf("get status: %w", err)
	}
	return &resp, nil
}

// Restart re-runs a failed or stalled session.
func (c *Client) Restart(ctx context.Context, sessionID string) error {
	if err := c.doJSON(ctx, http.MethodPost, "/restart/"+url.PathEscape(sessionID), nil, nil); err != nil {
		return fmt.Errorf("restart session: %w", err)
	}
	log.Info().Str("sessionId", sessionID).Msg("Session restarted")
	return nil
}

// Results fetches the analysis results of a completed session.
func (c *Client) Results(ctx context.Context, sessionID string) (*Results, error) {
	var resp Results
	if err := c.doJSON(ctx, http.MethodGet, "/results/"+url.PathEscape(sessionID), nil, &resp); err != nil {
		return nil, fmt.Errorf("get results: %w", err)
	}
	return &resp, nil
}

// ListSessions returns the caller's sessions, newest first as ordered by
// the backend.
func (c *Client) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	var resp []SessionSummary
	if err := c.doJSON(ctx, http.MethodGet, "/sessions/list", nil, &resp); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return resp, nil
}

// Dashboard returns the analytics dashboard as an opaque JSON document.
func (c *Client) Dashboard(ctx context.Context) (json.RawMessage, error) {
	var resp json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/analytics/dashboard", nil, &resp); err != nil {
		return nil, fmt.Errorf("get dashboard: %w", err)
	}
	return resp, nil
}

// Debug returns the backend's diagnostic dump of a session as an opaque
// JSON document.
func (c *Client) Debug(ctx context.Context, sessionID string) (json.RawMessage, error) {
	var resp json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/debug/"+url.PathEscape(sessionID), nil, &resp); err != nil {
		return nil, fmt.Errorf("get debug info: %w", err)
	}
	return resp, nil
}

// LogQuery filters GET /admin/logs. Zero fields are omitted.
type LogQuery struct {
	EventType string
	SessionID string
	UserID    string
	Limit     int
	Offset    int
}

// Encode renders q as a query string.
func (q LogQuery) Encode() string {
	v := url.Values{}
	if q.EventType != "" {
		v.Set("event_type", q.EventType)
	}
	if q.SessionID != "" {
		v.Set("session_id", q.SessionID)
	}
	if q.UserID != "" {
		v.Set("user_id", q.UserID)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	return v.Encode()
}

// Logs returns a page of the backend's event log.
func (c *Client) Logs(ctx context.Context, q LogQuery) (json.RawMessage, error) {
	path := "/admin/logs"
	if qs := q.Encode(); qs != "" {
		path += "?" + qs
	}
	var resp json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("get logs: %w", err)
	}
	return resp, nil
}

// RecordEvent posts a client telemetry event.
func (c *Client) RecordEvent(ctx context.Context, evt Event) error {
	if evt.Metadata == nil {
		evt.Metadata = map[string]interface{}{}
	}
	if err := c.doJSON(ctx, http.MethodPost, "/analytics/frontend", evt, nil); err != nil {
		return fmt.Errorf("record event %s: %w", evt.Name, err)
	}
	return nil
}

// --- Request plumbing ---

// doJSON performs a JSON request bounded by the request timeout. A 401 on a
// token-authenticated request triggers one forced refresh and a retry.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := c.roundTrip(ctx, method, path, payload, true)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w (body: %s)", err, truncate(string(body), 200))
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte, allowRefresh bool) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	bearer, err := c.authorize(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(req, path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if allowRefresh && c.refreshAfter401(ctx, resp, bearer, path) {
		return c.roundTrip(ctx, method, path, payload, false)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.errorFrom(resp, method, path)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	log.Trace().Str("body", truncate(string(body), 500)).Msg("API response body")
	return body, nil
}

// refreshAfter401 reports whether resp rejected a bearer token and the
// session has since been refreshed, in which case resp is drained and closed
// and the caller may send the request once more.
func (c *Client) refreshAfter401(ctx context.Context, resp *http.Response, bearer bool, path string) bool {
	if resp.StatusCode != http.StatusUnauthorized || !bearer || c.auth == nil {
		return false
	}
	log.Debug().Str("path", path).Msg("Bearer token rejected, refreshing session")
	if err := c.auth.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("Session refresh failed")
		return false
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
	return true
}

// authorize sets the identity headers. It reports whether a bearer token
// was attached.
func (c *Client) authorize(ctx context.Context, req *http.Request) (bool, error) {
	req.Header.Set("X-Request-ID", c.newRequestID())
	if c.auth == nil {
		return false, nil
	}

	token, err := c.auth.BearerToken(ctx)
	if err != nil {
		return false, fmt.Errorf("auth token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
		return true, nil
	}
	if uid := c.auth.UserID(); uid != "" {
		req.Header.Set("X-User-ID", uid)
	}
	return false, nil
}

// send executes req and logs the request/response pair.
func (c *Client) send(req *http.Request, path string) (*http.Response, error) {
	log.Debug().
		Str("method", req.Method).
		Str("path", path).
		Str("requestId", req.Header.Get("X-Request-ID")).
		Msg("API request")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		log.Debug().Int("statusCode", 0).Dur("duration", duration).Err(err).Msg("API response")
		return nil, fmt.Errorf("%s %s: %w", req.Method, path, err)
	}
	log.Debug().Int("statusCode", resp.StatusCode).Dur("duration", duration).Msg("API response")
	return resp, nil
}

func (c *Client) errorFrom(resp *http.Response, method, path string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := newAPIError(method, path, resp.StatusCode, body)
	log.Debug().
		Int("statusCode", apiErr.StatusCode).
		Str("detail", apiErr.Detail).
		Msg("API error response")
	return apiErr
}
