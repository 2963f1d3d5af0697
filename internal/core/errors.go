package core

import (
	"errors"
	"time"
)

var (
	ErrRateLimit         = errors.New("rate limit exceeded")
	ErrNotFound          = errors.New("no matching record found")
	ErrCheckpointCorrupt = errors.New("checkpoint file corrupt")
	ErrRobotsDisallowed  = errors.New("robots.txt disallows scraping")
	ErrSecurityCheck     = errors.New("upstream returned a security-check page")
	ErrPipelineBusy      = errors.New("pipeline run already in progress")
	ErrIndexUnavailable  = errors.New("vector index not initialized")
)

// RetryableError wraps a transient failure (typically HTTP 429) with a
// server-suggested wait before the next attempt.
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

func IsRetryable(err error) (bool, time.Duration) {
	var re *RetryableError
	if errors.As(err, &re) {
		return true, re.RetryAfter
	}
	return false, 0
}
