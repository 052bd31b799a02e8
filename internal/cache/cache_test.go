package cache

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func domainCacheConfig(typ string) domain.CacheConfig {
	return domain.CacheConfig{Type: typ, LocalMaxSize: 10}
}

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("SetAndGet", func(t *testing.T) {
		err := cache.Set(ctx, tenantID, "key1", []byte("value1"), time.Minute)
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, tenantID, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}

		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, tenantID, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, tenantID, "key2", []byte("value2"), time.Minute)

		err := cache.Delete(ctx, tenantID, "key2")
		if err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, _ := cache.Get(ctx, tenantID, "key2")
		if val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		_ = cache.Set(ctx, tenantID, "expiring", []byte("temp"), 10*time.Millisecond)

		// Should be available immediately
		val, _ := cache.Get(ctx, tenantID, "expiring")
		if val == nil {
			t.Error("expected value before expiration")
		}

		// Wait for expiration
		time.Sleep(20 * time.Millisecond)

		val, _ = cache.Get(ctx, tenantID, "expiring")
		if val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		smallCache := NewLRUCache(3)

		_ = smallCache.Set(ctx, tenantID, "a", []byte("1"), time.Minute)
		_ = smallCache.Set(ctx, tenantID, "b", []byte("2"), time.Minute)
		_ = smallCache.Set(ctx, tenantID, "c", []byte("3"), time.Minute)

		// Touch "a" so "b" becomes the oldest
		_, _ = smallCache.Get(ctx, tenantID, "a")

		_ = smallCache.Set(ctx, tenantID, "d", []byte("4"), time.Minute)

		val, _ := smallCache.Get(ctx, tenantID, "b")
		if val != nil {
			t.Error("expected 'b' to be evicted")
		}
		val, _ = smallCache.Get(ctx, tenantID, "a")
		if val == nil {
			t.Error("expected 'a' to survive eviction")
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		_ = cache.Set(ctx, "tenant-a", "shared-key", []byte("a-value"), time.Minute)
		_ = cache.Set(ctx, "tenant-b", "shared-key", []byte("b-value"), time.Minute)

		val, _ := cache.Get(ctx, "tenant-a", "shared-key")
		if string(val) != "a-value" {
			t.Errorf("tenant-a got '%s'", string(val))
		}
		val, _ = cache.Get(ctx, "tenant-b", "shared-key")
		if string(val) != "b-value" {
			t.Errorf("tenant-b got '%s'", string(val))
		}
	})

	t.Run("TenantIDRequired", func(t *testing.T) {
		if _, err := cache.Get(ctx, "", "key"); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if err := cache.Set(ctx, "", "key", []byte("v"), time.Minute); err == nil {
			t.Error("expected error for empty tenantID")
		}
	})
}

func TestLRUVectorCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("VectorRoundTrip", func(t *testing.T) {
		want := []float32{0.1, -0.5, 0.9}
		if err := cache.SetVector(ctx, tenantID, "digest-1", want, time.Minute); err != nil {
			t.Fatalf("SetVector failed: %v", err)
		}

		got, err := cache.GetVector(ctx, tenantID, "digest-1")
		if err != nil {
			t.Fatalf("GetVector failed: %v", err)
		}
		if len(got) != len(want) {
			t.Fatalf("got %d dims, want %d", len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("dim %d = %v, want %v", i, got[i], want[i])
			}
		}
	})

	t.Run("VectorMiss", func(t *testing.T) {
		got, err := cache.GetVector(ctx, tenantID, "unknown-digest")
		if err != nil {
			t.Fatalf("GetVector failed: %v", err)
		}
		if got != nil {
			t.Errorf("expected nil for unknown digest, got %v", got)
		}
	})
}

func TestLRUCounter(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("Increment", func(t *testing.T) {
		for want := int64(1); want <= 3; want++ {
			got, err := cache.IncrementCounter(ctx, tenantID, "velocity:client-1:3600", time.Minute)
			if err != nil {
				t.Fatalf("IncrementCounter failed: %v", err)
			}
			if got != want {
				t.Errorf("count = %d, want %d", got, want)
			}
		}
	})

	t.Run("WindowExpiry", func(t *testing.T) {
		_, _ = cache.IncrementCounter(ctx, tenantID, "short-window", 10*time.Millisecond)
		time.Sleep(20 * time.Millisecond)

		got, err := cache.IncrementCounter(ctx, tenantID, "short-window", 10*time.Millisecond)
		if err != nil {
			t.Fatalf("IncrementCounter failed: %v", err)
		}
		if got != 1 {
			t.Errorf("count = %d, want 1 after window reset", got)
		}
	})

	t.Run("ReadableThroughGet", func(t *testing.T) {
		_, _ = cache.IncrementCounter(ctx, tenantID, "readable", time.Minute)
		_, _ = cache.IncrementCounter(ctx, tenantID, "readable", time.Minute)

		val, err := cache.Get(ctx, tenantID, "readable")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "2" {
			t.Errorf("counter via Get = %q, want \"2\"", string(val))
		}
	})
}

func TestNewCacheConfig(t *testing.T) {
	cache, err := New(domainCacheConfig("memory"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := cache.(*LRUCache); !ok {
		t.Errorf("expected *LRUCache, got %T", cache)
	}

	if _, err := New(domainCacheConfig("memcached")); err == nil {
		t.Error("expected error for unsupported cache type")
	}
}
