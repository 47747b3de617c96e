package redis

import (
	"context"
	"time"
)

// Both scripts run server side so the read and the write cannot interleave
// with another client.
const (
	// incrExpire bumps KEYS[1] and arms its TTL (ARGV[1], ms) on creation.
	incrExpire = `local n = redis.call("INCR", KEYS[1])
if n == 1 and tonumber(ARGV[1]) > 0 then redis.call("PEXPIRE", KEYS[1], ARGV[1]) end
return n`

	// compareAndDelete removes KEYS[1] only while it still holds ARGV[1].
	compareAndDelete = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`
)

// IncrWithTTL increments key and starts its TTL when the key is new, which is
// one fixed window for rate counters.
func (c *Client) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	return c.store.Eval(ctx, incrExpire, []string{key}, ttl.Milliseconds()).Int64()
}

// DelIfValue deletes key only while it still holds value and reports whether
// it did.
func (c *Client) DelIfValue(ctx context.Context, key, value string) (bool, error) {
	if err := c.ready(); err != nil {
		return false, err
	}
	n, err := c.store.Eval(ctx, compareAndDelete, []string{key}, value).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
