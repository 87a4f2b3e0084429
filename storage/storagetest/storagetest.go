// Package storagetest provides a conformance suite that every
// storage.Storage backend runs from its own tests.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ggoodman/storefront-go/storage"
)

// Factory creates a fresh, empty Storage for a single subtest.
type Factory func(t *testing.T) storage.Storage

// RunStorageTests runs the complete Storage test suite against the provided factory.
func RunStorageTests(t *testing.T, factory Factory) {
	t.Run("SetAndGet", func(t *testing.T) { testSetAndGet(t, factory) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, factory) })
	t.Run("Overwrite", func(t *testing.T) { testOverwrite(t, factory) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, factory) })
	t.Run("DeleteMissing", func(t *testing.T) { testDeleteMissing(t, factory) })
	t.Run("TTLExpiry", func(t *testing.T) { testTTL(t, factory) })
	t.Run("InputIsCopied", func(t *testing.T) { testInputIsCopied(t, factory) })
	t.Run("DistinctKeys", func(t *testing.T) { testDistinctKeys(t, factory) })
	t.Run("EmptyKeyRejected", func(t *testing.T) { testEmptyKey(t, factory) })
}

func testSetAndGet(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := context.Background()

	if err := s.Set(ctx, "app_cart_v1", []byte(`{"items":[]}`)); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	item, err := s.Get(ctx, "app_cart_v1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if item == nil {
		t.Fatal("Get() returned nil item")
	}
	if string(item.Data) != `{"items":[]}` {
		t.Fatalf("Get() returned wrong data: got %s", string(item.Data))
	}
	if item.CreatedAt.IsZero() {
		t.Fatal("expected CreatedAt to be set")
	}
	if item.ExpiresAt != nil {
		t.Fatal("expected no expiry without TTL")
	}
}

func testGetMissing(t *testing.T, factory Factory) {
	s := factory(t)
	item, err := s.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if item != nil {
		t.Fatalf("expected nil item for missing key, got %q", string(item.Data))
	}
}

func testOverwrite(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := context.Background()

	if err := s.Set(ctx, "k", []byte("first")); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := s.Set(ctx, "k", []byte("second")); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	item, err := s.Get(ctx, "k")
	if err != nil || item == nil {
		t.Fatalf("Get() = %v, %v", item, err)
	}
	if string(item.Data) != "second" {
		t.Fatalf("expected overwritten value, got %q", string(item.Data))
	}
}

func testDelete(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := context.Background()

	if err := s.Set(ctx, "has_session", []byte("1")); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := s.Delete(ctx, "has_session"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	item, err := s.Get(ctx, "has_session")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if item != nil {
		t.Fatal("expected key to be gone after Delete")
	}
}

func testDeleteMissing(t *testing.T, factory Factory) {
	s := factory(t)
	if err := s.Delete(context.Background(), "never-set"); err != nil {
		t.Fatalf("Delete() of missing key should succeed, got %v", err)
	}
}

func testTTL(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := context.Background()

	if err := s.Set(ctx, "short", []byte("x"), storage.WithTTL(50*time.Millisecond)); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	item, err := s.Get(ctx, "short")
	if err != nil || item == nil {
		t.Fatalf("expected item before expiry, got %v, %v", item, err)
	}
	if item.ExpiresAt == nil {
		t.Fatal("expected ExpiresAt with TTL")
	}

	time.Sleep(200 * time.Millisecond)

	item, err = s.Get(ctx, "short")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if item != nil {
		t.Fatal("expected item to be expired")
	}
}

func testInputIsCopied(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := context.Background()

	data := []byte("abc")
	if err := s.Set(ctx, "k", data); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	data[0] = 'z'

	item, err := s.Get(ctx, "k")
	if err != nil || item == nil {
		t.Fatalf("Get() = %v, %v", item, err)
	}
	if string(item.Data) != "abc" {
		t.Fatalf("stored data changed with caller slice: %q", string(item.Data))
	}
}

func testDistinctKeys(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := context.Background()

	if err := s.Set(ctx, "app_cart_v1", []byte("cart")); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := s.Set(ctx, "has_session", []byte("1")); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := s.Delete(ctx, "has_session"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	item, err := s.Get(ctx, "app_cart_v1")
	if err != nil || item == nil {
		t.Fatalf("unrelated key affected by Delete: %v, %v", item, err)
	}
	if string(item.Data) != "cart" {
		t.Fatalf("unexpected data %q", string(item.Data))
	}
}

func testEmptyKey(t *testing.T, factory Factory) {
	s := factory(t)
	err := s.Set(context.Background(), "", []byte("x"))
	if !errors.Is(err, storage.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}
