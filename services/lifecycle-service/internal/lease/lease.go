package lease

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Release gives a held lease back.
type Release func(ctx context.Context) error

// Lease grants exclusive ownership of one named activity. TryAcquire never
// waits: ok is false when somebody else holds it.
type Lease interface {
	TryAcquire(ctx context.Context) (release Release, ok bool, err error)
}

// Local is an in-process lease used when no Redis is configured.
type Local struct {
	mu sync.Mutex
}

func NewLocal() *Local {
	return &Local{}
}

func (l *Local) TryAcquire(context.Context) (Release, bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	return func(context.Context) error {
		l.mu.Unlock()
		return nil
	}, true, nil
}

// Redis is a lease shared by every replica. The key expires after ttl so a
// crashed holder cannot block others forever.
type Redis struct {
	rdb redis.Cmdable
	key string
	ttl time.Duration
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewRedis(rdb redis.Cmdable, key string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Redis{rdb: rdb, key: key, ttl: ttl}
}

func (l *Redis) TryAcquire(ctx context.Context) (Release, bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lease %s: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return func(ctx context.Context) error {
		// Only the holder's token may delete the key.
		err := releaseScript.Run(ctx, l.rdb, []string{l.key}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("release lease %s: %w", l.key, err)
		}
		return nil
	}, true, nil
}
