package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rocketarb/rocketarb/internal/domain"
)

const releaseLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockManager leases a bundle record to one run at a time. The lease value
// names the holding host so a refused run can say who has it.
type LockManager struct {
	rdb     *redis.Client
	release *redis.Script
	owner   string
}

// NewLockManager creates a LockManager on c.
func NewLockManager(c *Client) *LockManager {
	host, _ := os.Hostname()
	return &LockManager{
		rdb:     c.rdb,
		release: redis.NewScript(releaseLua),
		owner:   fmt.Sprintf("%s/%d", host, os.Getpid()),
	}
}

// LockKey is the Redis key guarding the record identified by name.
func LockKey(name string) string {
	return "rocketarb:lock:" + name
}

// Acquire takes the lease on key for ttl. The returned unlock is idempotent
// and releases only a lease this call took.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	k := LockKey(key)
	token := lm.owner + "/" + uuid.NewString()

	ok, err := lm.rdb.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: lock %s: %w", key, err)
	}
	if !ok {
		holder, err := lm.rdb.Get(ctx, k).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("redis: lock %s: %w", key, err)
		}
		return nil, fmt.Errorf("redis: %s held by %q: %w", key, holder, domain.ErrLockHeld)
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = lm.release.Run(ctx, lm.rdb, []string{k}, token).Err()
	}, nil
}

var _ domain.LockManager = (*LockManager)(nil)
