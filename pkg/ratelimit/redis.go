package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var _ Store = (*RedisStore)(nil)

// slidingWindowScript keeps one sorted set per key, scored by hit time in
// milliseconds. Running it as a script makes prune+count+add atomic across
// every server instance sharing the Redis.
//
// Returns {admitted, count, oldest_ms}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)
local admitted = 0
if count < limit then
	redis.call('ZADD', key, now, member)
	count = count + 1
	admitted = 1
end

local oldest = now
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if first[2] then
	oldest = tonumber(first[2])
end

redis.call('PEXPIRE', key, window)
return {admitted, count, oldest}
`)

// RedisStore keeps sliding window logs in Redis sorted sets and is safe to
// share between any number of server instances.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a RedisStore using client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Hit implements Store.
func (s *RedisStore) Hit(ctx context.Context, key string, now time.Time, limit int, window time.Duration) (Window, error) {
	nowMs := now.UnixMilli()
	// Members must be unique so hits in the same millisecond are all kept.
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()

	vals, err := slidingWindowScript.Run(ctx, s.client, []string{key},
		nowMs, window.Milliseconds(), limit, member,
	).Int64Slice()
	if err != nil {
		return Window{}, errors.Wrapf(err, "run sliding window script for %q", key)
	}
	if len(vals) != 3 {
		return Window{}, errors.Errorf("unexpected script reply length %d", len(vals))
	}

	return Window{
		Admitted: vals[0] == 1,
		Count:    int(vals[1]),
		Oldest:   time.UnixMilli(vals[2]),
	}, nil
}
