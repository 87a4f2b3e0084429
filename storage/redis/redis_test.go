package redis

import (
	"context"
	"testing"

	"github.com/ggoodman/storefront-go/storage"
	"github.com/ggoodman/storefront-go/storage/storagetest"
	"github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	// Skip test if Redis is not available
	client := redis.NewClient(&redis.Options{
		Addr: "127.0.0.1:6379",
		DB:   2, // Use separate DB for storage tests
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestRedisStorage(t *testing.T) {
	storagetest.RunStorageTests(t, func(t *testing.T) storage.Storage {
		client := newTestClient(t)
		client.FlushDB(context.Background())

		s, err := New(Config{Client: client, KeyPrefix: "storefront-test:"})
		if err != nil {
			t.Fatalf("Failed to create Redis storage: %v", err)
		}
		t.Cleanup(func() {
			client.FlushDB(context.Background())
			_ = s.Close()
		})
		return s
	})
}

func TestNewRequiresClient(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without client")
	}
}

func TestKeyPrefixApplied(t *testing.T) {
	client := newTestClient(t)
	defer client.Close()

	ctx := context.Background()
	defer client.FlushDB(ctx)

	s, err := New(Config{Client: client})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := s.Set(ctx, "app_cart_v1", []byte(`{"items":[]}`)); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	n, err := client.Exists(ctx, DefaultKeyPrefix+"app_cart_v1").Result()
	if err != nil {
		t.Fatalf("Exists() failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected prefixed key to exist, got %d", n)
	}
}
