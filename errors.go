package session

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeSessionInvalid       = "SESSION_INVALID"
	TextCodeTokenExpired         = "TOKEN_EXPIRED"
	TextCodeBackendUnavailable   = "BACKEND_UNAVAILABLE"
	TextCodeUnparseableResponse  = "UNPARSEABLE_RESPONSE"
	TextCodeCorruptedCache       = "CORRUPTED_CACHE"
	TextCodeStorageFailure       = "STORAGE_FAILURE"
	TextCodeInvalidLoginResponse = "INVALID_LOGIN_RESPONSE"
	TextCodeMissingPharmacy      = "MISSING_PHARMACY_ID"
	TextCodeRetryExhausted       = "RETRY_EXHAUSTED"
	TextCodeInvalidProfile       = "INVALID_PROFILE"
)

// ErrSessionInvalid is returned when the backend rejects a bearer token.
var ErrSessionInvalid = goerrors.New("session token is invalid or expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionInvalid).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenExpired is returned when the token carries an exp claim in the past.
var ErrTokenExpired = goerrors.New("session token has expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrBackendUnavailable is returned when the backend cannot be reached.
var ErrBackendUnavailable = goerrors.New("backend is unavailable", goerrors.CategoryInternal).
	WithTextCode(TextCodeBackendUnavailable)

// ErrUnparseableResponse is returned for response bodies that are not a user.
var ErrUnparseableResponse = goerrors.New("unable to parse backend response", goerrors.CategoryBadInput).
	WithTextCode(TextCodeUnparseableResponse).
	WithCode(goerrors.CodeBadRequest)

// ErrCorruptedCache is returned when the persisted user cannot be decoded.
var ErrCorruptedCache = goerrors.New("cached user data is corrupted", goerrors.CategoryBadInput).
	WithTextCode(TextCodeCorruptedCache).
	WithCode(goerrors.CodeBadRequest)

// ErrStorageFailure wraps errors surfaced by a Store implementation.
var ErrStorageFailure = goerrors.New("session storage failure", goerrors.CategoryInternal).
	WithTextCode(TextCodeStorageFailure)

// ErrInvalidLoginResponse is returned when a login response lacks a token or user.
var ErrInvalidLoginResponse = goerrors.New("invalid response format from server", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidLoginResponse).
	WithCode(goerrors.CodeBadRequest)

// ErrMissingPharmacyID is returned when a staff record cannot be tied to a pharmacy.
var ErrMissingPharmacyID = goerrors.New("cannot determine pharmacy ID from server response", goerrors.CategoryValidation).
	WithTextCode(TextCodeMissingPharmacy).
	WithCode(goerrors.CodeBadRequest)

// ErrRetryExhausted is returned when every retry attempt failed.
var ErrRetryExhausted = goerrors.New("retry attempts exhausted", goerrors.CategoryInternal).
	WithTextCode(TextCodeRetryExhausted)

// ErrInvalidProfile is returned when a profile fails validation.
var ErrInvalidProfile = goerrors.New("profile data is invalid", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidProfile).
	WithCode(goerrors.CodeBadRequest)

// withDetails clones a sentinel so callers never mutate the shared value.
func withDetails(sentinel *goerrors.Error, source error, metadata map[string]any) *goerrors.Error {
	clone := sentinel.Clone()
	if clone == nil {
		return sentinel
	}
	if source != nil {
		clone.Source = source
	}
	if len(metadata) > 0 {
		clone = clone.WithMetadata(metadata)
	}
	return clone
}

func storageError(op, key string, err error) error {
	return withDetails(ErrStorageFailure, err, map[string]any{
		"op":    op,
		"key":   key,
		"error": err.Error(),
	})
}

// HasTextCode reports whether err carries the given go-errors text code.
func HasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == code
	}
	return false
}

// IsSessionInvalid reports a rejected or expired token.
func IsSessionInvalid(err error) bool {
	return HasTextCode(err, TextCodeSessionInvalid) || HasTextCode(err, TextCodeTokenExpired)
}

// IsBackendUnavailable reports a transport level failure.
func IsBackendUnavailable(err error) bool {
	return HasTextCode(err, TextCodeBackendUnavailable)
}

// IsCorruptedCache reports an undecodable cached user.
func IsCorruptedCache(err error) bool {
	return HasTextCode(err, TextCodeCorruptedCache)
}

// ErrorMessage returns the user facing message of a go-errors value, or err.Error().
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Message != "" {
		return richErr.Message
	}
	return err.Error()
}
