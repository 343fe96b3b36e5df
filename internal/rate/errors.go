package rate

import "errors"

var (
	// ErrRateLimited is returned once a subject exceeds its window budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis failures in the Redis backend.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
