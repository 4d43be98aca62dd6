package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotHeld is returned by Unlock when the key expired or belongs to another holder.
var ErrLockNotHeld = errors.New("lock not held")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

// Lock is a single-holder lease in Redis. Each acquisition carries its own random token.
type Lock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewLock builds a lease for key. A missing client yields nil, which callers treat as "no locking".
func NewLock(r *Redis, key string, ttl time.Duration) *Lock {
	if r == nil || r.Client == nil {
		return nil
	}
	return &Lock{client: r.Client, key: key, ttl: ttl}
}

// TryAcquire takes the lease. When acquired is false someone else holds it and release is nil.
func (l *Lock) TryAcquire(ctx context.Context) (release func(context.Context) error, acquired bool, err error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	return func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Int()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrLockNotHeld
		}
		return nil
	}, true, nil
}
