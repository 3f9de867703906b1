package upload

import (
	"errors"

	"github.com/fpang/mentor-metrics-cli/internal/api"
)

// Code classifies an upload failure.
type Code string

const (
	CodeNoFile       Code = "NO_FILE"
	CodeInvalidType  Code = "INVALID_TYPE"
	CodeInvalidSize  Code = "INVALID_SIZE"
	CodeUploadFailed Code = "UPLOAD_FAILED"
)

const (
	msgNoFile       = "No file selected"
	msgInvalidType  = "Invalid file type. Please upload MP4, MOV, or WEBM."
	msgUploadFailed = "Upload failed. Please check your connection and try again."
)

// Error is a classified upload failure. Message is safe to show to users.
type Error struct {
	Code    Code
	Message string
	// StatusCode is the HTTP status of the final attempt, 0 for validation
	// and network failures.
	StatusCode int
	Attempts   int
	Err        error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of an upload error, or "" when err is not one.
func CodeOf(err error) Code {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Code
	}
	return ""
}

// failed wraps the last transport error as UPLOAD_FAILED, preferring the
// backend's detail message.
func failed(err error, attempts int) *Error {
	msg := msgUploadFailed
	if d := api.Detail(err); d != "" {
		msg = d
	}
	return &Error{
		Code:       CodeUploadFailed,
		Message:    msg,
		StatusCode: api.StatusCode(err),
		Attempts:   attempts,
		Err:        err,
	}
}
