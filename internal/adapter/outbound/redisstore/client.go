// Package redisstore wraps go-redis v9 behind the key-value, pub/sub,
// priority-queue, and rate-counter operations the services need. Deployments
// without Redis fall back to the in-memory stores.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("key not found")

// rateIncrScript increments a counter and sets its TTL only on first use,
// atomically. Returns the new count.
var rateIncrScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
    redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// Client wraps a Redis connection.
type Client struct {
	rdb *redis.Client
}

// New connects to Redis and verifies connectivity with a ping.
func New(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     20,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed (%s): %w", addr, err)
	}

	slog.Info("redis connected", "addr", addr, "db", db)
	return &Client{rdb: rdb}, nil
}

// Close shuts down the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Get returns the value of key, or ErrNotFound.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return val, err
}

// Set stores value under key with the given TTL. Zero TTL means no expiry.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// Delete removes the given keys.
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

// Exists reports whether key exists.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// Scan returns all keys matching pattern. Uses cursor iteration rather than
// KEYS so large keyspaces do not block the server.
func (c *Client) Scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", pattern, err)
	}
	return keys, nil
}

// Publish sends a message on a channel.
func (c *Client) Publish(ctx context.Context, channel string, message []byte) error {
	return c.rdb.Publish(ctx, channel, message).Err()
}

// Subscribe registers a handler for messages on a channel and returns an
// unsubscribe function. The handler runs on a dedicated goroutine.
func (c *Client) Subscribe(ctx context.Context, channel string, handler func([]byte)) (func(), error) {
	sub := c.rdb.Subscribe(ctx, channel)

	// Wait for subscription confirmation before returning.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", channel, err)
	}

	ch := sub.Channel()
	go func() {
		for msg := range ch {
			handler([]byte(msg.Payload))
		}
	}()

	return func() { sub.Close() }, nil
}

// Enqueue adds a member to a priority queue. Lower priority values are
// dequeued first.
func (c *Client) Enqueue(ctx context.Context, queue, member string, priority float64) error {
	return c.rdb.ZAdd(ctx, queue, redis.Z{Score: priority, Member: member}).Err()
}

// Dequeue pops the lowest-priority member from a queue. Returns ErrNotFound
// when the queue is empty.
func (c *Client) Dequeue(ctx context.Context, queue string) (string, error) {
	res, err := c.rdb.ZPopMin(ctx, queue, 1).Result()
	if err != nil {
		return "", err
	}
	if len(res) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNotFound, queue)
	}
	member, ok := res[0].Member.(string)
	if !ok {
		return "", fmt.Errorf("unexpected member type %T", res[0].Member)
	}
	return member, nil
}

// QueueLen returns the number of members waiting in a queue.
func (c *Client) QueueLen(ctx context.Context, queue string) (int64, error) {
	return c.rdb.ZCard(ctx, queue).Result()
}

// IncrementRate bumps a windowed counter and returns its new value. The TTL
// is applied atomically on the first increment, so the window cannot leak.
func (c *Client) IncrementRate(ctx context.Context, key string, window time.Duration) (int64, error) {
	res, err := rateIncrScript.Run(ctx, c.rdb, []string{key}, window.Milliseconds()).Result()
	if err != nil {
		return 0, fmt.Errorf("rate increment failed: %w", err)
	}
	count, ok := res.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected script result %T", res)
	}
	return count, nil
}
