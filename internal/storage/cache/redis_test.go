package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"listing-watcher/pkg/config"
	pkgerrors "listing-watcher/pkg/errors"
)

// 需要真实 Redis：设置 REDIS_ADDR 后运行
func TestRedisStore_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	s := NewRedisStore(redis.NewClient(&redis.Options{Addr: addr}), "watcher-test:")
	defer s.Close()

	if err := s.Set(ctx, "k", map[string]string{"a": "b"}, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	var got map[string]string
	if err := s.Get(ctx, "k", &got); err != nil || got["a"] != "b" {
		t.Fatalf("Get: %v %v", got, err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Get(ctx, "k", &got); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("Get after delete: %v", err)
	}
}

func TestNewCache(t *testing.T) {
	if _, err := NewCache(configFor("memory")); err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, err := NewCache(configFor("redis")); err == nil {
		t.Fatal("redis without addr should error")
	}
	if _, err := NewCache(configFor("memcached")); err == nil {
		t.Fatal("unknown type should error")
	}
}

func configFor(typ string) config.CacheConfig {
	return config.CacheConfig{Type: typ}
}
