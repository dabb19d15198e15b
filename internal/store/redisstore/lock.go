package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/suPer8Hu/gopherchat/internal/chat"
	"github.com/suPer8Hu/gopherchat/internal/observability"
)

const lockPrefix = "gopherchat:turn:"

// releaseScript deletes the key only while it still holds our token, so a lock that
// expired and was taken by someone else is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker serialises turns of a session across processes with SET NX PX.
// The TTL bounds how long a crashed holder can block a session.
type Locker struct {
	rdb   redis.Cmdable
	ttl   time.Duration
	retry time.Duration
}

var _ chat.Locker = (*Locker)(nil)

func NewLocker(rdb redis.Cmdable, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Locker{rdb: rdb, ttl: ttl, retry: 50 * time.Millisecond}
}

func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	k := lockPrefix + key
	token := uuid.NewString()

	for {
		ok, err := l.rdb.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			break
		}

		t := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(ctx, key, k, token) })
	}, nil
}

func (l *Locker) release(ctx context.Context, key, k, token string) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := releaseScript.Run(rctx, l.rdb, []string{k}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		observability.LoggerFromContext(ctx).Warn("redis unlock failed", "key", key, "error", err)
	}
}
