package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fpang/mentor-metrics-cli/internal/api"
	"github.com/fpang/mentor-metrics-cli/internal/auth"
	"github.com/fpang/mentor-metrics-cli/internal/upload"
)

// ResolveFile checks that the path exists and is a regular file, then
// returns the absolute path. An empty path is returned unchanged.
func ResolveFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %s", path)
		}
		return "", fmt.Errorf("failed to access file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("path is a directory, not a file: %s", path)
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return path, nil
}

// UserMessage turns an error into the single line shown to the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var uploadErr *upload.Error
	if errors.As(err, &uploadErr) {
		return uploadErr.Message
	}

	var tokenErr *auth.TokenError
	if errors.As(err, &tokenErr) {
		switch tokenErr.Type {
		case auth.ErrTypeInvalidToken:
			return "Your session has expired. Sign in again and update MENTOR_REFRESH_TOKEN."
		case auth.ErrTypeNetworkError:
			return "Could not reach the sign-in service. Please check your internet connection."
		case auth.ErrTypeRateLimited:
			return "Too many sign-in attempts. Please try again later."
		default:
			return "Sign-in failed: " + tokenErr.Error()
		}
	}

	if errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled) {
		return "Canceled."
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "The request timed out. Please try again."
	}

	if apiErr, ok := api.AsAPIError(err); ok {
		switch {
		case apiErr.StatusCode == 404:
			return "Session not found."
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return "Not authorized. Check your access token."
		case apiErr.IsServerError():
			if apiErr.Detail != "" {
				return "Server error: " + apiErr.Detail
			}
			return "The server encountered an error. Please try again later."
		case apiErr.Detail != "":
			return apiErr.Detail
		}
		return apiErr.Error()
	}

	return err.Error()
}

// Notify writes the one-line notification for a terminal error.
func Notify(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(w, "Error: %s\n", UserMessage(err))
}
