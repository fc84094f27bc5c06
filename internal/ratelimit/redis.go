package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// allowScript counts the check and stamps the window TTL in one atomic
// step, so a failure between the two can never leave an immortal
// counter key.
var allowScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// RedisWindow is the multi-instance limiter: one counted key per user,
// expiring a window after its first increment.
type RedisWindow struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
}

func NewRedisWindow(rdb *redis.Client, limit int, window time.Duration) *RedisWindow {
	if limit <= 0 {
		limit = 5
	}
	if window <= 0 {
		window = 60 * time.Second
	}
	return &RedisWindow{rdb: rdb, limit: limit, window: window}
}

func (l *RedisWindow) Allow(ctx context.Context, userID string) (bool, error) {
	key := "ratelimit:stream:" + userID
	n, err := allowScript.Run(ctx, l.rdb, []string{key}, l.window.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n <= int64(l.limit), nil
}
