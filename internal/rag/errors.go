package rag

import (
	"errors"
	"fmt"
)

// ErrRateLimited is the only per-query failure surfaced to callers; every
// other error is absorbed by the fallback chain.
var ErrRateLimited = errors.New("rate limit exceeded")

var errEmptyCompletion = errors.New("empty completion")

// RetrievalError covers an unreachable index, embedding failure, or an
// empty result set. It routes the query into the fallback chain.
type RetrievalError struct {
	Reason string
	Err    error
}

func (e *RetrievalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("retrieval failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("retrieval failed: %s", e.Reason)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// GenerationError covers generation-service failures and malformed
// responses. It routes the query into the fallback chain.
type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed at %s: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
