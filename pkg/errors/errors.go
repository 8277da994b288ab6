// Package errors defines structured error types for the authcore service.
// Every error carries a code from a closed set that maps to an OAuth 2.0 error code and an HTTP status.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/turtacn/authcore/pkg/constants"
)

// ================================================================================
// Base Error Interface
// ================================================================================

// AuthError represents a structured error with additional metadata
type AuthError interface {
	error

	// Code returns the error kind
	Code() constants.ErrorCode

	// HTTPStatus returns the HTTP status code
	HTTPStatus() int

	// Description returns a human-readable description safe to show to callers
	Description() string

	// Unwrap returns the underlying error for error chain support
	Unwrap() error

	// WithCause adds a cause error to the error chain
	WithCause(cause error) AuthError

	// WithMetadata adds additional context metadata
	WithMetadata(key string, value interface{}) AuthError

	// Metadata returns all metadata
	Metadata() map[string]interface{}
}

type baseError struct {
	code        constants.ErrorCode
	httpStatus  int
	description string
	cause       error
	metadata    map[string]interface{}
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.description, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.description)
}

func (e *baseError) Code() constants.ErrorCode { return e.code }

func (e *baseError) HTTPStatus() int { return e.httpStatus }

func (e *baseError) Description() string { return e.description }

func (e *baseError) Unwrap() error { return e.cause }

func (e *baseError) WithCause(cause error) AuthError {
	e.cause = cause
	return e
}

func (e *baseError) WithMetadata(key string, value interface{}) AuthError {
	if e.metadata == nil {
		e.metadata = make(map[string]interface{})
	}
	e.metadata[key] = value
	return e
}

func (e *baseError) Metadata() map[string]interface{} {
	return e.metadata
}

// NewError creates a new AuthError with the specified parameters
func NewError(code constants.ErrorCode, httpStatus int, description string) AuthError {
	return &baseError{
		code:        code,
		httpStatus:  httpStatus,
		description: description,
	}
}

// ================================================================================
// OAuth 2.0 Error Constructors
// ================================================================================

// ErrInvalidRequest creates an invalid_request error
func ErrInvalidRequest(description string) AuthError {
	return NewError(constants.ErrCodeInvalidRequest, http.StatusBadRequest, description)
}

// invalidClientDescription is identical for every client authentication failure.
const invalidClientDescription = "Client authentication failed"

// ErrInvalidClient creates the generic invalid_client error. The reason a client
// failed to authenticate is never exposed.
func ErrInvalidClient() AuthError {
	return NewError(constants.ErrCodeInvalidClient, http.StatusUnauthorized, invalidClientDescription)
}

// ErrInvalidGrant creates an invalid_grant error
func ErrInvalidGrant(description string) AuthError {
	return NewError(constants.ErrCodeInvalidGrant, http.StatusBadRequest, description)
}

// ErrUnauthorizedClient creates an unauthorized_client error
func ErrUnauthorizedClient(description string) AuthError {
	return NewError(constants.ErrCodeUnauthorizedClient, http.StatusBadRequest, description)
}

// ErrUnsupportedGrantType creates an unsupported_grant_type error
func ErrUnsupportedGrantType(grantType string) AuthError {
	return NewError(constants.ErrCodeUnsupportedGrantType, http.StatusBadRequest,
		fmt.Sprintf("Unsupported grant_type: %q", grantType)).
		WithMetadata("grant_type", grantType)
}

// ErrUnsupportedResponseType creates an unsupported_response_type error
func ErrUnsupportedResponseType(responseType string) AuthError {
	return NewError(constants.ErrCodeUnsupportedResponseType, http.StatusBadRequest,
		fmt.Sprintf("Unsupported response_type: %q", responseType))
}

// ErrInvalidScope creates an invalid_scope error
func ErrInvalidScope(description string) AuthError {
	return NewError(constants.ErrCodeInvalidScope, http.StatusBadRequest, description)
}

// ErrAccessDenied creates an access_denied error
func ErrAccessDenied(description string) AuthError {
	return NewError(constants.ErrCodeAccessDenied, http.StatusForbidden, description)
}

// ErrServerError creates a server_error error
func ErrServerError(description string) AuthError {
	return NewError(constants.ErrCodeServerError, http.StatusInternalServerError, description)
}

// ================================================================================
// Domain Error Constructors
// ================================================================================

// ErrConfiguration reports bad or missing key material. It is fatal at startup.
func ErrConfiguration(description string) AuthError {
	return NewError(constants.ErrCodeConfiguration, http.StatusInternalServerError, description)
}

// ErrDecryptionFailed reports truncated ciphertext or an authentication tag mismatch.
func ErrDecryptionFailed(description string) AuthError {
	return NewError(constants.ErrCodeDecryptionFailed, http.StatusInternalServerError, description)
}

// ErrTokenExpired reports a correctly signed token past its exp.
func ErrTokenExpired(expiredAt, now time.Time) AuthError {
	return NewError(constants.ErrCodeTokenExpired, http.StatusUnauthorized,
		fmt.Sprintf("token expired %s ago at %s", HumanizeDuration(now.Sub(expiredAt)), expiredAt.UTC().Format(time.RFC3339))).
		WithMetadata("expired_at", expiredAt.UTC()).
		WithMetadata("now", now.UTC())
}

// ErrTokenInvalid reports an unknown key, a bad signature, or rejected claims.
func ErrTokenInvalid(reason string) AuthError {
	return NewError(constants.ErrCodeTokenInvalid, http.StatusUnauthorized,
		fmt.Sprintf("token is invalid: %s", reason)).
		WithMetadata("reason", reason)
}

// ErrTokenMalformed reports a value that is not a JWT of the expected shape.
func ErrTokenMalformed(details string) AuthError {
	return NewError(constants.ErrCodeTokenMalformed, http.StatusUnauthorized,
		fmt.Sprintf("token is malformed: %s", details)).
		WithMetadata("details", details)
}

// ErrRateLimitExceeded creates a rate limit exceeded error
func ErrRateLimitExceeded(scope string, limit int, retryAfter time.Duration) AuthError {
	return NewError(constants.ErrCodeRateLimitExceeded, http.StatusTooManyRequests,
		"Rate limit exceeded. Please try again later.").
		WithMetadata("scope", scope).
		WithMetadata("limit", limit).
		WithMetadata("retry_after_seconds", int(retryAfter.Round(time.Second).Seconds()))
}

// ErrUserHasNoTenant is returned when an authenticated user belongs to no tenant.
func ErrUserHasNoTenant(userID string) AuthError {
	return NewError(constants.ErrCodeUserHasNoTenant, http.StatusForbidden,
		"User does not belong to any tenant").
		WithMetadata("user_id", userID)
}

// ErrNotFound creates a not_found error
func ErrNotFound(resource, id string) AuthError {
	return NewError(constants.ErrCodeNotFound, http.StatusNotFound,
		fmt.Sprintf("%s not found", resource)).
		WithMetadata("resource", resource).
		WithMetadata("id", id)
}

// ================================================================================
// Error Inspection Utilities
// ================================================================================

// AsAuthError finds the first AuthError in err's chain.
func AsAuthError(err error) (AuthError, bool) {
	var authErr AuthError
	if stderrors.As(err, &authErr) {
		return authErr, true
	}
	return nil, false
}

// IsCode reports whether err's chain contains an AuthError of the given kind.
func IsCode(err error, code constants.ErrorCode) bool {
	authErr, ok := AsAuthError(err)
	return ok && authErr.Code() == code
}

// IsNotFound reports whether err is a not_found error.
func IsNotFound(err error) bool {
	return IsCode(err, constants.ErrCodeNotFound)
}

// ShouldLogError determines if an error should be logged at error level
func ShouldLogError(err error) bool {
	if authErr, ok := AsAuthError(err); ok {
		status := authErr.HTTPStatus()
		return status >= 500
	}
	return true
}

// ================================================================================
// Error Response Builder
// ================================================================================

// ErrorResponse is the JSON body of every error response (RFC 6749 section 5.2)
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// ToErrorResponse converts any error to an ErrorResponse and an HTTP status.
// Errors outside the taxonomy become an opaque server_error.
func ToErrorResponse(err error) (int, *ErrorResponse) {
	if authErr, ok := AsAuthError(err); ok {
		return authErr.HTTPStatus(), &ErrorResponse{
			Error:            string(wireCode(authErr.Code())),
			ErrorDescription: authErr.Description(),
		}
	}
	return http.StatusInternalServerError, &ErrorResponse{
		Error:            string(constants.ErrCodeServerError),
		ErrorDescription: "An unexpected error occurred",
	}
}

// wireCode maps internal kinds onto codes clients understand.
func wireCode(code constants.ErrorCode) constants.ErrorCode {
	switch code {
	case constants.ErrCodeTokenExpired, constants.ErrCodeTokenInvalid, constants.ErrCodeTokenMalformed:
		return "invalid_token"
	case constants.ErrCodeConfiguration, constants.ErrCodeDecryptionFailed:
		return constants.ErrCodeServerError
	default:
		return code
	}
}

// HumanizeDuration renders d with the largest whole unit, e.g. "3 hours".
func HumanizeDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	unit := func(n int64, name string) string {
		if n == 1 {
			return fmt.Sprintf("1 %s", name)
		}
		return fmt.Sprintf("%d %ss", n, name)
	}
	switch {
	case d >= 24*time.Hour:
		return unit(int64(d/(24*time.Hour)), "day")
	case d >= time.Hour:
		return unit(int64(d/time.Hour), "hour")
	case d >= time.Minute:
		return unit(int64(d/time.Minute), "minute")
	default:
		return unit(int64(d/time.Second), "second")
	}
}
