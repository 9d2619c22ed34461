package models

import (
	"errors"
	"fmt"
)

// Error codes carried in ScraperResult.Error and API responses.
const (
	ErrCodeCaptcha            = "CAPTCHA_DETECTED"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeParseFailure       = "PARSE_FAILURE"
	ErrCodeBrowserUnavailable = "BROWSER_UNAVAILABLE"
	ErrCodeNavigationTimeout  = "NAVIGATION_TIMEOUT"
	ErrCodeUnknown            = "UNKNOWN"

	ErrCodeHTTPFailure     = "HTTP_FAILURE"
	ErrCodeAPIFailure      = "API_FAILURE"
	ErrCodeUnsupportedType = "UNSUPPORTED_SEARCH_TYPE"

	// Caller errors; the orchestrator returns these instead of a result.
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnknownSource = "UNKNOWN_SOURCE"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternal      = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScrapeError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ScrapeError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ScrapeError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// CodeOf extracts the code from the first ScrapeError in err's chain,
// falling back to fallback when there is none.
func CodeOf(err error, fallback string) string {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Code
	}
	return fallback
}

// IsCallerError reports whether err is a caller programming error rather than
// a source failure.
func IsCallerError(err error) bool {
	switch CodeOf(err, "") {
	case ErrCodeInvalidInput, ErrCodeUnknownSource:
		return true
	}
	return false
}
