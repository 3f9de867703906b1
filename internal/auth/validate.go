package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// TokenError represents a specific type of token acquisition failure.
type TokenError struct {
	Type    TokenErrorType
	Source  string
	Message string
	Err     error
}

// TokenErrorType categorizes token failures.
type TokenErrorType int

const (
	// ErrTypeInvalidToken indicates the refresh token or stored credential
	// was rejected.
	ErrTypeInvalidToken TokenErrorType = iota
	// ErrTypeNetworkError indicates a network connectivity issue.
	ErrTypeNetworkError
	// ErrTypeRateLimited indicates the auth provider throttled the request.
	ErrTypeRateLimited
	// ErrTypeUnknown indicates an unknown error occurred.
	ErrTypeUnknown
)

func (e *TokenError) Error() string {
	msg := e.Message
	if e.Source != "" {
		msg = e.Source + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *TokenError) Unwrap() error {
	return e.Err
}

// IsInvalidToken reports whether err is a rejected credential.
func IsInvalidToken(err error) bool {
	var te *TokenError
	return errors.As(err, &te) && te.Type == ErrTypeInvalidToken
}

// classifyError maps a transport error to a TokenError.
func classifyError(source string, err error) *TokenError {
	if err == nil {
		return nil
	}

	errLower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errLower, "connection") ||
		strings.Contains(errLower, "network") ||
		strings.Contains(errLower, "timeout") ||
		strings.Contains(errLower, "dial") ||
		strings.Contains(errLower, "no such host") ||
		strings.Contains(errLower, "unreachable"):
		log.Error().Err(err).Str("source", source).Msg("Network error during token refresh")
		return &TokenError{
			Type:    ErrTypeNetworkError,
			Source:  source,
			Message: "network error - check your internet connection",
			Err:     err,
		}
	default:
		log.Error().Err(err).Str("source", source).Msg("Unknown error during token refresh")
		return &TokenError{
			Type:    ErrTypeUnknown,
			Source:  source,
			Message: "failed to obtain access token",
			Err:     err,
		}
	}
}

// classifyStatus maps an auth provider HTTP status to a TokenError.
func classifyStatus(source string, code int, detail string) *TokenError {
	switch {
	case code == http.StatusBadRequest || code == http.StatusUnauthorized || code == http.StatusForbidden:
		log.Error().Int("code", code).Str("source", source).Msg("Credential rejected")
		return &TokenError{
			Type:    ErrTypeInvalidToken,
			Source:  source,
			Message: "refresh token is invalid or expired - sign in again",
			Err:     errors.New(detail),
		}
	case code == http.StatusTooManyRequests:
		log.Error().Int("code", code).Str("source", source).Msg("Token refresh rate limited")
		return &TokenError{
			Type:    ErrTypeRateLimited,
			Source:  source,
			Message: "auth rate limit exceeded - try again later",
			Err:     errors.New(detail),
		}
	case code >= 500:
		log.Error().Int("code", code).Str("source", source).Msg("Auth server error")
		return &TokenError{
			Type:    ErrTypeNetworkError,
			Source:  source,
			Message: "auth server error - try again later",
			Err:     errors.New(detail),
		}
	default:
		log.Error().Int("code", code).Str("source", source).Msg("Unexpected auth response")
		return &TokenError{
			Type:    ErrTypeUnknown,
			Source:  source,
			Message: detail,
		}
	}
}
