package cache

import "errors"

var (
	// ErrRedisNotAvailable redis is not configured or unreachable
	ErrRedisNotAvailable = errors.New("redis not available")

	// ErrLockNotAcquired the distributed lock is held elsewhere
	ErrLockNotAcquired = errors.New("distributed lock not acquired")
)
