package services

import "net/http"

// MarkerForStatus maps an HTTP response status to the sentinel that
// classifies it: 429 and 5xx are retryable, 404/410 are hard misses, the
// remaining 4xx fail immediately as validation errors.
func MarkerForStatus(status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrTransient
	case status >= http.StatusInternalServerError:
		return ErrTransient
	case status == http.StatusNotFound, status == http.StatusGone:
		return ErrNotFound
	case status >= http.StatusBadRequest:
		return ErrValidation
	default:
		return nil
	}
}
