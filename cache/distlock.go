package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// DistributedLockService guards work that must not run on two bot
// instances at once.
type DistributedLockService struct {
	rs *redsync.Redsync
}

// NewLockService builds a redsync instance on top of an existing client.
func NewLockService(client *redis.Client) *DistributedLockService {
	pool := goredis.NewPool(client)
	return &DistributedLockService{rs: redsync.New(pool)}
}

// AcquireLock tries to take the named lock.
func (s *DistributedLockService) AcquireLock(ctx context.Context, lockName string, expiry time.Duration) (*redsync.Mutex, error) {
	mutex := s.rs.NewMutex(lockName,
		redsync.WithExpiry(expiry),
		redsync.WithTries(5),
		redsync.WithRetryDelay(50*time.Millisecond),
		redsync.WithDriftFactor(0.01),
	)

	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLockNotAcquired, lockName, err)
	}
	return mutex, nil
}

// WithLock runs action while holding the named lock.
func (s *DistributedLockService) WithLock(ctx context.Context, lockName string, expiry time.Duration, action func() error) error {
	mutex, err := s.AcquireLock(ctx, lockName, expiry)
	if err != nil {
		return err
	}

	defer func() {
		if _, err := mutex.UnlockContext(context.Background()); err != nil {
			log.Printf("cache: release lock %s: %v", lockName, err)
		}
	}()

	return action()
}
