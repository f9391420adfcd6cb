package middleware

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
	"github.com/redis/go-redis/v9"
)

const defaultRedisCounterPrefix = "tasktrack:ratelimit:"

// RedisLimitCounter is an httprate.LimitCounter backed by Redis so every API
// instance sees the same per-window counts. Each window is one key that
// expires after two window lengths, long enough to serve as the previous window.
type RedisLimitCounter struct {
	client       *redis.Client
	prefix       string
	windowLength time.Duration
	timeout      time.Duration
}

var _ httprate.LimitCounter = (*RedisLimitCounter)(nil)

// NewRedisLimitCounter creates a counter on client. An empty prefix uses the default.
func NewRedisLimitCounter(client *redis.Client, prefix string) *RedisLimitCounter {
	if prefix == "" {
		prefix = defaultRedisCounterPrefix
	}
	return &RedisLimitCounter{
		client:       client,
		prefix:       prefix,
		windowLength: time.Minute,
		timeout:      500 * time.Millisecond,
	}
}

// Config is called by httprate with the limiter's settings
func (c *RedisLimitCounter) Config(requestLimit int, windowLength time.Duration) {
	c.windowLength = windowLength
}

// Increment adds one request to key's current window
func (c *RedisLimitCounter) Increment(key string, currentWindow time.Time) error {
	return c.IncrementBy(key, currentWindow, 1)
}

// IncrementBy adds amount requests to key's current window
func (c *RedisLimitCounter) IncrementBy(key string, currentWindow time.Time, amount int) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	k := c.key(key, currentWindow)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.IncrBy(ctx, k, int64(amount))
		pipe.Expire(ctx, k, 2*c.windowLength)
		return nil
	})
	if err != nil {
		return fmt.Errorf("rate limit counter increment: %w", err)
	}
	return nil
}

// Get returns the counts for key's current and previous windows
func (c *RedisLimitCounter) Get(key string, currentWindow, previousWindow time.Time) (int, int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	values, err := c.client.MGet(ctx, c.key(key, currentWindow), c.key(key, previousWindow)).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("rate limit counter get: %w", err)
	}
	if len(values) != 2 {
		return 0, 0, errors.New("rate limit counter get: unexpected reply")
	}

	current, err := parseCount(values[0])
	if err != nil {
		return 0, 0, err
	}
	previous, err := parseCount(values[1])
	if err != nil {
		return 0, 0, err
	}
	return current, previous, nil
}

func (c *RedisLimitCounter) key(key string, window time.Time) string {
	return c.prefix + key + ":" + strconv.FormatInt(window.Unix(), 10)
}

// parseCount converts an MGET element; missing keys come back as nil
func parseCount(v interface{}) (int, error) {
	if v == nil {
		return 0, nil
	}
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("rate limit counter: unexpected value type %T", v)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("rate limit counter: %w", err)
	}
	return n, nil
}
