package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"slidewright/internal/config"
)

func TestMemoryClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient()
	if _, err := c.Get(ctx, "missing"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
	value := []byte("payload")
	if err := c.Set(ctx, Key("analysis", "abc"), value, time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	value[0] = 'X'
	got, err := c.Get(ctx, "analysis:abc")
	if err != nil || string(got) != "payload" {
		t.Fatalf("unexpected value %q: %v", got, err)
	}
}

func TestMemoryClientExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryClient()
	c.now = func() time.Time { return now }

	_ = c.Set(ctx, "short", []byte("v"), time.Minute)
	_ = c.Set(ctx, "forever", []byte("v"), 0)
	now = now.Add(2 * time.Minute)

	if _, err := c.Get(ctx, "short"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expired entry to miss, got %v", err)
	}
	if _, err := c.Get(ctx, "forever"); err != nil {
		t.Fatalf("expected entry without ttl to survive: %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("expected expired entry to be dropped, len=%d", c.Len())
	}
}

func TestNewFromConfigDisabled(t *testing.T) {
	cfg := config.Default()
	client, err := NewFromConfig(context.Background(), &cfg)
	if err != nil || client != nil {
		t.Fatalf("expected disabled cache, got %v %v", client, err)
	}
}

func TestRedisClientRoundTrip(t *testing.T) {
	addr := os.Getenv("SLIDEWRIGHT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SLIDEWRIGHT_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client, err := NewRedisClient(ctx, RedisConfig{Addr: addr, Prefix: "sw-test:"})
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	defer client.Close()

	key := Key("roundtrip", time.Now().Format(time.RFC3339Nano))
	if err := client.Set(ctx, key, []byte("hello"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := client.Get(ctx, key)
	if err != nil || string(got) != "hello" {
		t.Fatalf("unexpected value %q: %v", got, err)
	}
	if _, err := client.Get(ctx, key+":missing"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
}
