package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"unicode/utf8"
)

// ErrorKind classifies a failed generation call.
type ErrorKind string

const (
	// NotConfigured means the model cannot be used as configured; no call was made.
	NotConfigured ErrorKind = "not_configured"
	// Timeout means the provider did not answer within the request bound.
	Timeout ErrorKind = "timeout"
	// APIError means the provider answered with an unusable response.
	APIError ErrorKind = "api_error"
)

const maxErrorBody = 512

// DispatchError is returned by adapters and the registry for every provider failure.
type DispatchError struct {
	Kind       ErrorKind
	Provider   Kind
	StatusCode int
	Body       string
	Reason     string
	Err        error
}

func (e *DispatchError) Error() string {
	switch e.Kind {
	case NotConfigured:
		return fmt.Sprintf("%s: not configured: %s", e.provider(), e.Reason)
	case Timeout:
		return fmt.Sprintf("%s: request timed out: %v", e.provider(), e.Err)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: api error: status=%d, body=%s", e.provider(), e.StatusCode, e.Body)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: api error: %v", e.provider(), e.Err)
	}
	return fmt.Sprintf("%s: api error: %s", e.provider(), e.Reason)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

func (e *DispatchError) provider() string {
	if e.Provider == "" {
		return "backend"
	}
	return string(e.Provider)
}

// NewNotConfigured reports a configuration gap for provider.
func NewNotConfigured(provider Kind, reason string) *DispatchError {
	return &DispatchError{Kind: NotConfigured, Provider: provider, Reason: reason}
}

// KindOf extracts the ErrorKind of err if it wraps a DispatchError.
func KindOf(err error) (ErrorKind, bool) {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}

// IsNotConfigured reports whether err is a NotConfigured DispatchError.
func IsNotConfigured(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == NotConfigured
}

// transportError classifies a failure to obtain a response from provider.
func transportError(provider Kind, err error) *DispatchError {
	if isTimeout(err) {
		return &DispatchError{Kind: Timeout, Provider: provider, Err: err}
	}
	return &DispatchError{Kind: APIError, Provider: provider, Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
