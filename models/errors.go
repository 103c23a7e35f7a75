package models

import (
	"errors"
	"fmt"
)

// Error codes used in API responses and internal error handling.
const (
	ErrCodeInvalidURL       = "INVALID_URL"
	ErrCodeAcquisition      = "ACQUISITION_FAILED"
	ErrCodeTimeout          = "SCORE_TIMEOUT"
	ErrCodeCriterionFailure = "CRITERION_FAILED"
	ErrCodeCircuitOpen      = "CIRCUIT_OPEN"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeInternal         = "INTERNAL_ERROR"

	// AI judge error codes.
	ErrCodeAIFailure     = "AI_FAILURE"
	ErrCodeAIAuthFailure = "AI_AUTH_FAILURE"
	ErrCodeAIRateLimited = "AI_RATE_LIMITED"

	// External performance API error codes.
	ErrCodePageSpeedFailure = "PAGESPEED_FAILURE"
	ErrCodePageSpeedQuota   = "PAGESPEED_QUOTA_EXCEEDED"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScoreError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ScoreError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ScoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScoreError) Unwrap() error {
	return e.Err
}

// NewScoreError creates a new ScoreError.
func NewScoreError(code, message string, err error) *ScoreError {
	return &ScoreError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ScoreError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// IsPermanent reports whether an error should never be retried: bad
// credentials and invalid input stay broken no matter how often the call
// is repeated. Timeouts, network blips and provider 5xx responses are
// transient and eligible for retry.
func IsPermanent(err error) bool {
	var se *ScoreError
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code {
	case ErrCodeAIAuthFailure, ErrCodeInvalidURL, ErrCodeUnauthorized:
		return true
	}
	return false
}
