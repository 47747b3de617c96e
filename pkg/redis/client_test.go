package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/digistore-backend/pkg/config"
)

func TestIncrWithTTLArmsWindowOnce(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	for want := int64(1); want <= 3; want++ {
		n, err := client.IncrWithTTL(ctx, "ds:rate_limit:login", time.Minute)
		if err != nil {
			t.Fatalf("incr %d: %v", want, err)
		}
		if n != want {
			t.Fatalf("expected count %d, got %d", want, n)
		}
	}
	if got := mock.ttls["ds:rate_limit:login"]; got != time.Minute {
		t.Fatalf("expected ttl armed to 1m, got %v", got)
	}
	if mock.armed != 1 {
		t.Fatalf("expected ttl armed once, got %d", mock.armed)
	}
}

func TestDelIfValue(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}

	if err := client.Set(ctx, "ds:lock:cron", "owner-a", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	deleted, err := client.DelIfValue(ctx, "ds:lock:cron", "owner-b")
	if err != nil || deleted {
		t.Fatalf("expected no delete for foreign owner, deleted=%v err=%v", deleted, err)
	}
	deleted, err = client.DelIfValue(ctx, "ds:lock:cron", "owner-a")
	if err != nil || !deleted {
		t.Fatalf("expected delete for owner, deleted=%v err=%v", deleted, err)
	}
	if _, err := client.Get(ctx, "ds:lock:cron"); !IsNil(err) {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	cases := map[string]string{
		client.IdempotencyKey("stripe_webhook", "evt_1"): "ds:idempotency:stripe_webhook:evt_1",
		client.RateLimitKey("ip:login:10.0.0.1"):         "ds:rate_limit:ip:login:10.0.0.1",
		client.CacheKey("coupon", "pct", "10"):           "ds:cache:coupon:pct:10",
		client.LockKey("cron:prod"):                      "ds:lock:cron:prod",
		client.IdempotencyKey("scope", " "):              "ds:idempotency:scope",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("expected %s got %s", want, got)
		}
	}
}

func TestUninitializedClient(t *testing.T) {
	var nilClient *Client
	if err := nilClient.Ping(context.Background()); !errors.Is(err, errNotInitialized) {
		t.Fatalf("expected errNotInitialized, got %v", err)
	}
	if _, err := (&Client{}).IncrWithTTL(context.Background(), "k", time.Second); !errors.Is(err, errNotInitialized) {
		t.Fatalf("expected errNotInitialized, got %v", err)
	}
	if err := nilClient.Close(); err != nil {
		t.Fatalf("close on nil client: %v", err)
	}
}

func TestOptions(t *testing.T) {
	opts, err := options(config.RedisConfig{URL: "redis://:pw@cache:6380/3", PoolSize: 7, DB: 9, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Addr != "cache:6380" || opts.DB != 3 || opts.Password != "pw" {
		t.Fatalf("url settings not applied: %+v", opts)
	}
	if opts.PoolSize != 7 || opts.DialTimeout != time.Second {
		t.Fatalf("config fallbacks not applied: pool=%d dial=%v", opts.PoolSize, opts.DialTimeout)
	}

	opts, err = options(config.RedisConfig{Address: "localhost:6379", DB: 2})
	if err != nil || opts.Addr != "localhost:6379" || opts.DB != 2 {
		t.Fatalf("address config: %+v %v", opts, err)
	}
	if _, err := options(config.RedisConfig{}); err == nil {
		t.Fatal("expected error without url or address")
	}
	if _, err := options(config.RedisConfig{URL: "http://nope"}); err == nil {
		t.Fatal("expected error for non-redis url")
	}
}

type mockCmdable struct {
	data  map[string]string
	ttls  map[string]time.Duration
	armed int
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

// Eval emulates the two scripts the client ships.
func (m *mockCmdable) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	key := keys[0]
	switch script {
	case incrExpire:
		var n int64
		_, _ = fmt.Sscan(m.data[key], &n)
		n++
		m.data[key] = fmt.Sprint(n)
		if ms := args[0].(int64); n == 1 && ms > 0 {
			m.ttls[key] = time.Duration(ms) * time.Millisecond
			m.armed++
		}
		return redis.NewCmdResult(n, nil)
	case compareAndDelete:
		if v, ok := m.data[key]; ok && v == fmt.Sprint(args[0]) {
			delete(m.data, key)
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	}
	return redis.NewCmdResult(nil, fmt.Errorf("unexpected script %q", script))
}
