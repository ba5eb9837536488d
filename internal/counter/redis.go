// Package counter provides per-parent sibling rank counters backed by Redis.
package counter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// raiseAndIncr lifts the counter to the caller's floor when it lags behind,
// then increments it. Redis runs the script atomically.
var raiseAndIncr = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local floor = tonumber(ARGV[1])
if current < floor then
	redis.call("SET", KEYS[1], floor)
end
return redis.call("INCR", KEYS[1])
`)

// RedisCounter allocates sibling ranks with one key per parent page.
type RedisCounter struct {
	client *redis.Client
	prefix string
}

func NewRedisCounter(redisURL string) (*RedisCounter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisCounterWithClient(client), nil
}

func NewRedisCounterWithClient(client *redis.Client) *RedisCounter {
	return &RedisCounter{
		client: client,
		prefix: "rank:",
	}
}

func (c *RedisCounter) key(parentID string) string {
	return c.prefix + parentID
}

// NextRank returns max(counter, floor) + 1 and stores it as the new counter.
func (c *RedisCounter) NextRank(ctx context.Context, parentID string, floor int) (int, error) {
	rank, err := raiseAndIncr.Run(ctx, c.client, []string{c.key(parentID)}, floor).Int()
	if err != nil {
		return 0, fmt.Errorf("next rank: %w", err)
	}
	return rank, nil
}

func (c *RedisCounter) Close() error {
	return c.client.Close()
}

func (c *RedisCounter) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
