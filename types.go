package session

import (
	"context"
	"fmt"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Store is the persisted key/value storage that mirrors the session.
// Implementations must report a missing key with ok == false and a nil error.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Validator confirms a bearer token is live and returns the canonical user.
type Validator interface {
	Validate(ctx context.Context, token string) (*ValidationResult, error)
}

// ValidatorFunc adapts a function into a Validator.
type ValidatorFunc func(ctx context.Context, token string) (*ValidationResult, error)

// Validate satisfies the Validator interface.
func (f ValidatorFunc) Validate(ctx context.Context, token string) (*ValidationResult, error) {
	if f == nil {
		return nil, withDetails(ErrSessionInvalid, nil, nil)
	}
	return f(ctx, token)
}

// Navigator moves the user to another entry point, ie after logout.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function into a Navigator.
type NavigatorFunc func(path string)

// Navigate satisfies the Navigator interface.
func (f NavigatorFunc) Navigate(path string) {
	if f != nil {
		f(path)
	}
}

type noopNavigator struct{}

func (noopNavigator) Navigate(string) {}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] SESSION "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] SESSION "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] SESSION "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] SESSION "+newline(format), args...)
}

// NopLogger discards every message.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any) {}
func (NopLogger) Warn(string, ...any) {}
func (NopLogger) Error(string, ...any) {}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
