package redis

import "strings"

// Every key lives under ds:<purpose>:..., so one Redis can back all services.
const keyNamespace = "ds"

func (c *Client) IdempotencyKey(scope, id string) string {
	return joinKey("idempotency", scope, id)
}

func (c *Client) RateLimitKey(scope string) string {
	return joinKey("rate_limit", scope)
}

func (c *Client) CacheKey(parts ...string) string {
	return joinKey(append([]string{"cache"}, parts...)...)
}

func (c *Client) LockKey(name string) string {
	return joinKey("lock", name)
}

// joinKey drops blank segments so optional parts never leave "::" behind.
func joinKey(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			b.WriteByte(':')
			b.WriteString(part)
		}
	}
	return b.String()
}
