package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout indicates the per-key lock could not be acquired in time.
var ErrLockTimeout = errors.New("timed out waiting for result lock")

// KeyLocker serializes work on a single key. The returned function releases it.
type KeyLocker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

const defaultLockRetry = 25 * time.Millisecond

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisKeyLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisKeyLocker builds a lock shared by every API instance using the
// same Redis. The ttl bounds how long a crashed holder blocks the key.
func NewRedisKeyLocker(client *redis.Client, prefix string, ttl time.Duration) KeyLocker {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &redisKeyLocker{client: client, prefix: prefix, ttl: ttl, retry: defaultLockRetry}
}

func (l *redisKeyLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := l.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		acquired, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ErrLockTimeout
			}
			return nil, err
		}
		if acquired {
			return func() {
				// the request context may already be done here
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = releaseScript.Run(releaseCtx, l.client, []string{lockKey}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ErrLockTimeout
		case <-ticker.C:
		}
	}
}

type localKeyLocker struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	ch      chan struct{}
	waiters int
}

// NewLocalKeyLocker builds an in-process lock for single-instance deployments.
func NewLocalKeyLocker() KeyLocker {
	return &localKeyLocker{slots: make(map[string]*lockSlot)}
}

func (l *localKeyLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.waiters++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
	case <-ctx.Done():
		l.leave(key, slot)
		return nil, ErrLockTimeout
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-slot.ch
			l.leave(key, slot)
		})
	}, nil
}

func (l *localKeyLocker) leave(key string, slot *lockSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.waiters--
	if slot.waiters == 0 {
		delete(l.slots, key)
	}
}
