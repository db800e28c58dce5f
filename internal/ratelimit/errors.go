package ratelimit

import "errors"

var (
	// ErrInvalidProvider is returned for blank provider ids and for
	// providers that were never configured.
	ErrInvalidProvider = errors.New("unknown or invalid provider")
	// ErrInvalidConfig is returned when limits are not positive.
	ErrInvalidConfig = errors.New("invalid rate limit configuration")
	// ErrCostExceedsLimit means the requested token cost can never be
	// satisfied, even by an empty window.
	ErrCostExceedsLimit = errors.New("token cost exceeds provider token limit")
	// ErrQueueFull is the backpressure signal: the wait queue is at capacity
	// and the caller should shed load.
	ErrQueueFull = errors.New("rate limiter wait queue is full")
)
