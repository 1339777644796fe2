package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var (
	// ErrNotFound marks a non-retryable remote miss; callers map it to an
	// immediate stage failure.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable marks a reachable-later failure such as the reference
	// manager not running.
	ErrUnavailable = errors.New("service unavailable")
	// ErrTransient marks retryable remote failures (429, 5xx, timeouts).
	ErrTransient = errors.New("transient failure")
	// ErrValidation marks bad input that no retry can fix.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks missing or malformed settings.
	ErrConfiguration = errors.New("configuration error")
	// ErrContentUnreadable marks a URL with nothing extractable behind it;
	// callers route the item straight to exhausted.
	ErrContentUnreadable = errors.New("content unreadable")
)

// Wrap builds an error message that includes component context while
// tagging it with the provided marker for later classification. The marker
// should be one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRetryable reports whether the retry wrapper should attempt the call
// again. Context cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, ErrUnavailable) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}
	return false
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
