//go:build integration

package steps

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"github.com/fpang/mentor-metrics-cli/internal/api"
	"github.com/fpang/mentor-metrics-cli/internal/upload"
)

// scriptedTransport answers each attempt with the next scripted HTTP status
type scriptedTransport struct {
	statuses []int
	calls    int
}

func (s *scriptedTransport) Upload(ctx context.Context, f api.UploadFile, onProgress func(int)) (*api.UploadResponse, error) {
	s.calls++
	code := 200
	if len(s.statuses) > 0 {
		code, s.statuses = s.statuses[0], s.statuses[1:]
	}
	if onProgress != nil {
		onProgress(0)
		onProgress(100)
	}
	if code >= 300 {
		return nil, &api.APIError{Method: "POST", Path: "/upload/", StatusCode: code}
	}
	return &api.UploadResponse{SessionID: "session-1", UserID: "user-1"}, nil
}

// uploadContext holds state for one upload scenario
type uploadContext struct {
	transport *scriptedTransport
	maxMB     int64
	req       *upload.Request
	result    *upload.Result
	err       error
	progress  []int
}

var sharedUpload *uploadContext

func InitializeUploadScenario(ctx *godog.ScenarioContext) {
	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		sharedUpload = &uploadContext{transport: &scriptedTransport{}, maxMB: 500}
		return c, nil
	})

	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		sharedUpload = nil
		return c, nil
	})

	ctx.Step(`^the upload limit is (\d+) MB$`, theUploadLimitIs)
	ctx.Step(`^a file "([^"]*)" of type "([^"]*)" and size (\d+) MB$`, aFileOfTypeAndSize)
	ctx.Step(`^no file is selected$`, noFileIsSelected)
	ctx.Step(`^the server answers "([^"]*)"$`, theServerAnswers)
	ctx.Step(`^I upload the file$`, iUploadTheFile)
	ctx.Step(`^the upload should succeed after (\d+) attempts?$`, theUploadShouldSucceedAfter)
	ctx.Step(`^the upload should fail with "([^"]*)"$`, theUploadShouldFailWith)
	ctx.Step(`^the server should have received (\d+) requests?$`, theServerShouldHaveReceived)
	ctx.Step(`^the error message should be "([^"]*)"$`, theErrorMessageShouldBe)
}

func theUploadLimitIs(mb int) error {
	sharedUpload.maxMB = int64(mb)
	return nil
}

func aFileOfTypeAndSize(name, mimeType string, mb int) error {
	sharedUpload.req = &upload.Request{
		Name:     name,
		MIMEType: mimeType,
		Size:     int64(mb) * 1024 * 1024,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("video")), nil
		},
	}
	return nil
}

func noFileIsSelected() error {
	sharedUpload.req = nil
	return nil
}

func theServerAnswers(list string) error {
	for _, part := range splitList(list) {
		var code int
		if _, err := fmt.Sscanf(part, "%d", &code); err != nil {
			return fmt.Errorf("bad status %q: %w", part, err)
		}
		sharedUpload.transport.statuses = append(sharedUpload.transport.statuses, code)
	}
	return nil
}

func iUploadTheFile() error {
	adapter := upload.New(sharedUpload.transport, upload.Options{
		MaxBytes:     sharedUpload.maxMB * 1024 * 1024,
		AllowedTypes: []string{"video/mp4", "video/webm", "video/quicktime"},
		MaxAttempts:  3,
		RetryDelay:   time.Millisecond,
	})
	sharedUpload.result, sharedUpload.err = adapter.Upload(context.Background(), sharedUpload.req, func(pct int) {
		sharedUpload.progress = append(sharedUpload.progress, pct)
	})
	return nil
}

func theUploadShouldSucceedAfter(attempts int) error {
	if sharedUpload.err != nil {
		return fmt.Errorf("expected success, got %v", sharedUpload.err)
	}
	if sharedUpload.result.Attempts != attempts {
		return fmt.Errorf("expected %d attempts, got %d", attempts, sharedUpload.result.Attempts)
	}
	return nil
}

func theUploadShouldFailWith(code string) error {
	if sharedUpload.err == nil {
		return fmt.Errorf("expected failure %s, got success", code)
	}
	if got := upload.CodeOf(sharedUpload.err); string(got) != code {
		return fmt.Errorf("expected %s, got %s (%v)", code, got, sharedUpload.err)
	}
	return nil
}

func theServerShouldHaveReceived(n int) error {
	if sharedUpload.transport.calls != n {
		return fmt.Errorf("expected %d requests, got %d", n, sharedUpload.transport.calls)
	}
	return nil
}

func theErrorMessageShouldBe(msg string) error {
	if sharedUpload.err == nil || sharedUpload.err.Error() != msg {
		return fmt.Errorf("expected message %q, got %v", msg, sharedUpload.err)
	}
	return nil
}
