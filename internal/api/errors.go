package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	// Detail is the backend's human-readable message (the "detail" field of
	// the error envelope), empty when the body carried none.
	Detail string
	// Body is a truncated copy of the raw response body.
	Body string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// IsClientError reports whether the status is in [400,500).
func (e *APIError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// IsServerError reports whether the status is 5xx.
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// AsAPIError unwraps err to an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsClientError reports whether err carries a 4xx response.
func IsClientError(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.IsClientError()
}

// IsServerError reports whether err carries a 5xx response.
func IsServerError(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.IsServerError()
}

// IsNotFound reports whether err carries a 404 response.
func IsNotFound(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	if apiErr, ok := AsAPIError(err); ok {
		return apiErr.StatusCode
	}
	return 0
}

// Detail returns the backend detail message carried by err, or "".
func Detail(err error) string {
	if apiErr, ok := AsAPIError(err); ok {
		return apiErr.Detail
	}
	return ""
}

// newAPIError builds an APIError from a response body. The backend uses
// the FastAPI envelope {"detail": ...} where detail is either a string or
// a list of validation errors.
func newAPIError(method, path string, statusCode int, body []byte) *APIError {
	e := &APIError{
		Method:     method,
		Path:       path,
		StatusCode: statusCode,
		Body:       truncate(string(body), 200),
	}

	var envelope struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return e
	}

	if len(envelope.Detail) > 0 {
		var s string
		if err := json.Unmarshal(envelope.Detail, &s); err == nil {
			e.Detail = s
		} else {
			e.Detail = validationDetail(envelope.Detail)
		}
	}
	if e.Detail == "" {
		e.Detail = envelope.Error
	}
	return e
}

// validationDetail flattens a FastAPI validation error list into one line.
func validationDetail(raw json.RawMessage) string {
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return truncate(string(raw), 200)
	}
	msgs := make([]string, 0, len(items))
	for _, it := range items {
		if it.Msg != "" {
			msgs = append(msgs, it.Msg)
		}
	}
	return strings.Join(msgs, "; ")
}

// truncate returns the first n characters of s, appending "..." if truncated.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
