package upload

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/fpang/mentor-metrics-cli/internal/api"
)

// fakeTransport returns scripted results, one per call.
type fakeTransport struct {
	results []error
	calls   int
	// progress is reported by each call before returning.
	progress []int
}

func (f *fakeTransport) Upload(ctx context.Context, file api.UploadFile, onProgress func(int)) (*api.UploadResponse, error) {
	f.calls++
	for _, p := range f.progress {
		onProgress(p)
	}
	var err error
	if f.calls <= len(f.results) {
		err = f.results[f.calls-1]
	}
	if err != nil {
		return nil, err
	}
	return &api.UploadResponse{SessionID: "sess-1", UserID: "user-1"}, nil
}

func newTestAdapter(t *fakeTransport) (*Adapter, *[]time.Duration) {
	a := New(t, Options{
		MaxBytes:     10 * bytesPerMB,
		AllowedTypes: []string{"video/mp4", "video/webm", "video/quicktime"},
		MaxAttempts:  3,
		RetryDelay:   time.Second,
	})
	var waits []time.Duration
	a.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return a, &waits
}

func validRequest() *Request {
	return &Request{
		Name:     "lesson.mp4",
		MIMEType: "video/mp4",
		Size:     1024,
		Open:     func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader("x")), nil },
	}
}

func serverError(code int, detail string) error {
	return &api.APIError{Method: "POST", Path: "/upload/", StatusCode: code, Detail: detail}
}

func TestUpload_ValidationMakesNoTransportCalls(t *testing.T) {
	tests := []struct {
		name    string
		req     *Request
		code    Code
		message string
	}{
		{"no file", nil, CodeNoFile, "No file selected"},
		{"disallowed type", &Request{Name: "a.avi", MIMEType: "video/x-msvideo", Size: 10}, CodeInvalidType,
			"Invalid file type. Please upload MP4, MOV, or WEBM."},
		{"too large", &Request{Name: "a.mp4", MIMEType: "video/mp4", Size: 10*bytesPerMB + 1}, CodeInvalidSize,
			"File size exceeds limit of 10MB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &fakeTransport{}
			a, _ := newTestAdapter(transport)

			_, err := a.Upload(context.Background(), tt.req, nil)
			if got := CodeOf(err); got != tt.code {
				t.Fatalf("expected %s, got %s (%v)", tt.code, got, err)
			}
			if err.Error() != tt.message {
				t.Errorf("expected message %q, got %q", tt.message, err.Error())
			}
			if transport.calls != 0 {
				t.Errorf("expected zero transport calls, got %d", transport.calls)
			}
		})
	}
}

func TestUpload_ExactlyAtLimitIsAccepted(t *testing.T) {
	transport := &fakeTransport{}
	a, _ := newTestAdapter(transport)
	req := validRequest()
	req.Size = 10 * bytesPerMB

	if _, err := a.Upload(context.Background(), req, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpload_RetriesServerErrorsThenSucceeds(t *testing.T) {
	transport := &fakeTransport{
		results:  []error{serverError(503, ""), serverError(503, "")},
		progress: []int{40, 100},
	}
	a, waits := newTestAdapter(transport)

	var progress []int
	res, err := a.Upload(context.Background(), validRequest(), func(p int) { progress = append(progress, p) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Attempts != 3 || transport.calls != 3 {
		t.Errorf("expected success on attempt 3, got attempts=%d calls=%d", res.Attempts, transport.calls)
	}
	if res.SessionID != "sess-1" || res.UserID != "user-1" {
		t.Errorf("unexpected result: %+v", res)
	}

	wantWaits := []time.Duration{1 * time.Second, 2 * time.Second}
	if len(*waits) != len(wantWaits) {
		t.Fatalf("expected waits %v, got %v", wantWaits, *waits)
	}
	for i, w := range wantWaits {
		if (*waits)[i] != w {
			t.Errorf("wait %d: expected %s, got %s", i, w, (*waits)[i])
		}
	}

	// Each attempt restarts at 0.
	want := []int{0, 40, 100, 0, 40, 100, 0, 40, 100}
	if len(progress) != len(want) {
		t.Fatalf("expected progress %v, got %v", want, progress)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Fatalf("expected progress %v, got %v", want, progress)
		}
	}
}

func TestUpload_ClientErrorIsNotRetried(t *testing.T) {
	transport := &fakeTransport{results: []error{serverError(400, "Corrupt video container")}}
	a, waits := newTestAdapter(transport)

	_, err := a.Upload(context.Background(), validRequest(), nil)
	var ue *Error
	if !errors.As(err, &ue) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if ue.Code != CodeUploadFailed {
		t.Errorf("expected UPLOAD_FAILED, got %s", ue.Code)
	}
	if ue.StatusCode != 400 || ue.Message != "Corrupt video container" {
		t.Errorf("expected backend detail and status, got %d %q", ue.StatusCode, ue.Message)
	}
	if transport.calls != 1 {
		t.Errorf("expected exactly one attempt, got %d", transport.calls)
	}
	if len(*waits) != 0 {
		t.Errorf("expected no waits, got %v", *waits)
	}
}

func TestUpload_ExhaustedRetriesUsesGenericMessage(t *testing.T) {
	netErr := errors.New("dial tcp: connection refused")
	transport := &fakeTransport{results: []error{netErr, netErr, netErr}}
	a, _ := newTestAdapter(transport)

	_, err := a.Upload(context.Background(), validRequest(), nil)
	var ue *Error
	if !errors.As(err, &ue) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if ue.Message != "Upload failed. Please check your connection and try again." {
		t.Errorf("unexpected message: %q", ue.Message)
	}
	if ue.Attempts != 3 || transport.calls != 3 {
		t.Errorf("expected 3 attempts, got %d (calls %d)", ue.Attempts, transport.calls)
	}
	if !errors.Is(err, netErr) {
		t.Errorf("expected wrapped network error")
	}
}

func TestUpload_ExhaustedRetriesPrefersDetail(t *testing.T) {
	transport := &fakeTransport{results: []error{
		serverError(502, ""), serverError(502, ""), serverError(503, "Storage unavailable"),
	}}
	a, _ := newTestAdapter(transport)

	_, err := a.Upload(context.Background(), validRequest(), nil)
	if err == nil || err.Error() != "Storage unavailable" {
		t.Fatalf("expected backend detail, got %v", err)
	}
}

func TestUpload_CancelDuringBackoff(t *testing.T) {
	transport := &fakeTransport{results: []error{serverError(503, "")}}
	a := New(transport, Options{
		MaxBytes:     bytesPerMB,
		AllowedTypes: []string{"video/mp4"},
		RetryDelay:   time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := a.Upload(ctx, validRequest(), nil)
	if !IsCanceled(err) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if transport.calls != 1 {
		t.Errorf("expected 1 attempt before cancel, got %d", transport.calls)
	}
}

func TestProgressGate_DropsRegressions(t *testing.T) {
	var got []int
	g := &progressGate{fn: func(p int) { got = append(got, p) }}
	g.reset()
	for _, p := range []int{0, 10, 5, 10, 60, 150} {
		g.report(p)
	}
	want := []int{0, 10, 60, 100}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
