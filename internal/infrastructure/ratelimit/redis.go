package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RedisStore keeps each key as a sorted set of hits scored by their unix
// millisecond timestamp, so several instances can share one budget.
type RedisStore struct {
	client *redis.Client
	newID  func() uuid.UUID
}

// RedisOpts customizes a RedisStore
type RedisOpts struct {
	UuidProvider func() uuid.UUID
}

// NewRedisStore wraps an existing client
func NewRedisStore(client *redis.Client, opts *RedisOpts) *RedisStore {
	newID := uuid.New
	if opts != nil && opts.UuidProvider != nil {
		newID = opts.UuidProvider
	}
	return &RedisStore{client: client, newID: newID}
}

// DialRedis parses a redis:// URL and checks the server answers
func DialRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// hitLua trims expired hits, counts the window and, when there is room,
// records the new hit in one atomic step.
//
// KEYS[1] key; ARGV window start (exclusive, ms), now (ms), limit, member,
// ttl (ms). Returns {allowed, count, oldest score}.
const hitLua = `
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
local count = redis.call('ZCOUNT', KEYS[1], '(' .. ARGV[1], ARGV[2])
if count >= tonumber(ARGV[3]) then
	local first = redis.call('ZRANGEBYSCORE', KEYS[1], '(' .. ARGV[1], ARGV[2], 'WITHSCORES', 'LIMIT', 0, 1)
	local oldest = ARGV[2]
	if first[2] then
		oldest = first[2]
	end
	return {0, count, oldest}
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return {1, count + 1, ARGV[2]}
`

var hitScript = redis.NewScript(hitLua)

// Hit implements CounterStore
func (s *RedisStore) Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (int, time.Time, bool, error) {
	nowMs := strconv.FormatInt(now.UnixMilli(), 10)
	windowStart := strconv.FormatInt(now.Add(-window).UnixMilli(), 10)
	member := nowMs + ":" + s.newID().String()

	res, err := hitScript.Run(ctx, s.client, []string{key},
		windowStart, nowMs, strconv.Itoa(limit), member, strconv.FormatInt(window.Milliseconds(), 10),
	).Slice()
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("failed to record hit: %w", err)
	}

	allowed, count, oldest, err := parseHit(res)
	if err != nil {
		return 0, time.Time{}, false, err
	}
	return count, oldest, allowed, nil
}

func parseHit(res []interface{}) (bool, int, time.Time, error) {
	if len(res) != 3 {
		return false, 0, time.Time{}, fmt.Errorf("unexpected rate limit reply %v", res)
	}
	allowed, ok1 := res[0].(int64)
	count, ok2 := res[1].(int64)
	score, ok3 := res[2].(string)
	if !ok1 || !ok2 || !ok3 {
		return false, 0, time.Time{}, fmt.Errorf("unexpected rate limit reply %v", res)
	}
	ms, err := strconv.ParseFloat(score, 64)
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("invalid hit score %q: %w", score, err)
	}
	return allowed == 1, int(count), time.UnixMilli(int64(ms)), nil
}

// Close closes the underlying client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
