// Package services holds the shared plumbing for external collaborators:
// the error taxonomy with retryable/non-retryable classification, the
// token-bucket limiter, and the retry wrapper with capped exponential
// backoff and jitter. Concrete clients live in subpackages.
package services
