package client

import (
	"fmt"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeUnauthorized       = "UNAUTHORIZED"
	TextCodeRequestFailed      = "REQUEST_FAILED"
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	TextCodeLoginFailed        = "LOGIN_FAILED"
)

// ErrUnauthorized is returned when the backend answers 401 to an authenticated request.
var ErrUnauthorized = errors.New("session is no longer authorized", errors.CategoryAuth).
	WithTextCode(TextCodeUnauthorized).
	WithCode(errors.CodeUnauthorized)

// ErrRequestFailed is returned for any other non-2xx answer.
var ErrRequestFailed = errors.New("request failed", errors.CategoryOperation).
	WithTextCode(TextCodeRequestFailed)

// ErrInvalidCredentials is returned when login input fails validation.
var ErrInvalidCredentials = errors.New("Please enter both email and password", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeBadRequest)

// ErrLoginFailed is returned when the backend refuses a login.
var ErrLoginFailed = errors.New("Invalid credentials or not authorized", errors.CategoryAuth).
	WithTextCode(TextCodeLoginFailed).
	WithCode(errors.CodeUnauthorized)

// ResponseError describes a non-2xx answer.
type ResponseError struct {
	Method  string
	Path    string
	Status  int
	Message string
	// RedirectTo is the login entry point after a 401.
	RedirectTo string
	Err        *errors.Error
}

func (e *ResponseError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: %d", e.Method, e.Path, e.Status)
}

func (e *ResponseError) Unwrap() error {
	return e.Err
}

// IsUnauthorized reports whether err is a 401 answer.
func IsUnauthorized(err error) bool {
	return hasTextCode(err, TextCodeUnauthorized)
}

// LoginRedirect returns where the user must log in again after err.
func LoginRedirect(err error) (string, bool) {
	var re *ResponseError
	if errors.As(err, &re) && re.RedirectTo != "" {
		return re.RedirectTo, true
	}
	return "", false
}

func hasTextCode(err error, code string) bool {
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.TextCode == code
	}
	return false
}

func withMessage(sentinel *errors.Error, message string, source error) *errors.Error {
	clone := sentinel.Clone()
	if message != "" {
		clone.Message = message
	}
	if source != nil {
		clone.Source = source
	}
	return clone
}

// IsInvalidCredentials reports login input that failed validation.
func IsInvalidCredentials(err error) bool {
	return hasTextCode(err, TextCodeInvalidCredentials)
}
