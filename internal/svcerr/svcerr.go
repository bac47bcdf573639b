// Package svcerr defines the error kinds shared across the linking engine.
// Callers classify failures with errors.Is; packages wrap these sentinels
// with fmt.Errorf("...: %w", ...) to add context.
package svcerr

import "errors"

// ErrTimeout marks an external call (index, embedding, LLM) that exceeded
// its deadline. Retryable.
var ErrTimeout = errors.New("external service timeout")

// ErrExternal marks a non-timeout external failure such as a malformed
// response or an upstream 5xx. Not retried indefinitely.
var ErrExternal = errors.New("external service error")

// ErrUnauthorized marks a query that resolved against the wrong owner.
// Never swallowed: it indicates a security defect, not a transient fault.
var ErrUnauthorized = errors.New("authorization violation")

// ErrMalformedInput marks input rejected locally before any network call.
var ErrMalformedInput = errors.New("malformed input")

// ErrRateLimited marks a per-user AI budget that has been exhausted.
var ErrRateLimited = errors.New("rate limit exceeded")
