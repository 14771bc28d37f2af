package lanelock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/fd1az/arbitrage-engine/internal/apperror"
)

// acquireLua sets every key to the caller's token only if none of them exists.
const acquireLua = `
for i = 1, #KEYS do
    if redis.call('EXISTS', KEYS[i]) == 1 then
        return 0
    end
end
for i = 1, #KEYS do
    redis.call('SET', KEYS[i], ARGV[1], 'PX', ARGV[2])
end
return 1
`

// releaseLua deletes the keys still holding the caller's token.
const releaseLua = `
local n = 0
for i = 1, #KEYS do
    if redis.call('GET', KEYS[i]) == ARGV[1] then
        n = n + redis.call('DEL', KEYS[i])
    end
end
return n
`

// Redis locks lanes across processes. Locks expire after ttl so a crashed holder
// cannot block a lane forever.
type Redis struct {
	rdb       *redis.Client
	ttl       time.Duration
	prefix    string
	acquireSc *redis.Script
	releaseSc *redis.Script
}

// NewRedis creates a Redis locker. ttl must exceed the longest execution.
func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Redis{
		rdb:       rdb,
		ttl:       ttl,
		prefix:    "lock:lane:",
		acquireSc: redis.NewScript(acquireLua),
		releaseSc: redis.NewScript(releaseLua),
	}
}

func (r *Redis) keys(lanes []string) []string {
	keys := make([]string, len(lanes))
	for i, l := range lanes {
		keys[i] = r.prefix + l
	}
	return keys
}

// Acquire takes every lane or none. The release function is safe to call more than
// once and ignores the caller's context.
func (r *Redis) Acquire(ctx context.Context, lanes []string) (func(), error) {
	token := uuid.New().String()
	keys := r.keys(lanes)

	ok, err := r.acquireSc.Run(ctx, r.rdb, keys, token, r.ttl.Milliseconds()).Int()
	if err != nil {
		return nil, apperror.New(apperror.CodeStorageError,
			apperror.WithCause(fmt.Errorf("redis: acquire lanes: %w", err)))
	}
	if ok == 0 {
		return nil, apperror.New(apperror.CodeLaneBusy, apperror.WithContext(fmt.Sprintf("%v", lanes)))
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = r.releaseSc.Run(releaseCtx, r.rdb, keys, token).Err()
		})
	}, nil
}
