package rate

import "errors"

var (
	ErrRateLimited      = errors.New("rate limited")
	ErrRedisUnavailable = errors.New("rate: redis unavailable")
	ErrUnknownScope     = errors.New("rate: unknown scope")
)
