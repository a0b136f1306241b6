package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// Claim sets key only when absent; false means another worker already holds it.
func Claim(ctx context.Context, rdb redis.Cmdable, key string, ttl time.Duration) (bool, error) {
	ok, err := rdb.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return ok, nil
}

// Release drops a claim so a failed delivery can be retried.
func Release(ctx context.Context, rdb redis.Cmdable, key string) error {
	return rdb.Del(ctx, key).Err()
}

// consumeCode deletes KEYS[1] when it holds ARGV[1]. Otherwise it counts the
// miss in KEYS[2], which expires with the code, and burns the code once
// ARGV[2] misses were seen. ARGV[2] <= 0 disables the limit.
var consumeCode = redis.NewScript(`
local code = redis.call("GET", KEYS[1])
if not code then
	return 0
end
if code == ARGV[1] then
	redis.call("DEL", KEYS[1], KEYS[2])
	return 1
end
local max = tonumber(ARGV[2])
if max > 0 then
	local n = redis.call("INCR", KEYS[2])
	if n == 1 then
		local ttl = redis.call("PTTL", KEYS[1])
		if ttl > 0 then
			redis.call("PEXPIRE", KEYS[2], ttl)
		end
	end
	if n >= max then
		redis.call("DEL", KEYS[1], KEYS[2])
	end
end
return 0
`)

// AttemptsKey is the miss counter of a one-time code key.
func AttemptsKey(key string) string { return fmt.Sprintf(KeyVerifyAttempts, key) }

// ConsumeIfMatch atomically deletes key when its value equals want. After
// maxAttempts wrong values the key is deleted as well.
func ConsumeIfMatch(ctx context.Context, rdb redis.Scripter, key, want string, maxAttempts int) (bool, error) {
	n, err := consumeCode.Run(ctx, rdb, []string{key, AttemptsKey(key)}, want, maxAttempts).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
