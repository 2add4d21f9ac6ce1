package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"hotel-stays-backend/internal/apperror"
)

// releaseScript deletes the key only if it still carries our token, so an
// expired lock taken over by another instance is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker serializes rooms across every instance sharing one Redis.
type RedisLocker struct {
	client    redis.Cmdable
	prefix    string
	ttl       time.Duration
	wait      time.Duration
	retryStep time.Duration
	log       *zap.Logger
}

// NewRedisLocker creates a locker. ttl bounds how long a crashed holder
// can keep a room; it must exceed the longest check-and-insert.
func NewRedisLocker(client redis.Cmdable, prefix string, ttl, wait time.Duration, log *zap.Logger) *RedisLocker {
	return &RedisLocker{
		log:       log,
		client:    client,
		prefix:    prefix,
		ttl:       ttl,
		wait:      wait,
		retryStep: 25 * time.Millisecond,
	}
}

// Acquire polls SET NX until it wins, the wait bound elapses or ctx ends.
func (l *RedisLocker) Acquire(ctx context.Context, roomID string) (func(), error) {
	key := l.prefix + roomID
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	step := l.retryStep
	for {
		ok, err := l.client.SetNX(waitCtx, key, token, l.ttl).Result()
		if err != nil {
			if waitCtx.Err() != nil {
				return nil, fmt.Errorf("%w: room %s is locked by another request", apperror.ErrBusy, roomID)
			}
			return nil, fmt.Errorf("%w: room lock: %v", apperror.ErrStorageUnavailable, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(step)
		select {
		case <-waitCtx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: room %s is locked by another request", apperror.ErrBusy, roomID)
		case <-timer.C:
		}
		if step < 200*time.Millisecond {
			step *= 2
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Release must outlive a cancelled request context.
			releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
				l.log.Warn("room lock release failed; waiting for TTL", zap.String("room_id", roomID), zap.Error(err))
			}
		})
	}, nil
}
