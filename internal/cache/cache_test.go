package cache

import (
	"context"
	"testing"
	"time"

	"github.com/returnsx/returnsx/internal/domain"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(3)
	ctx := context.Background()
	storeID := "store-001"

	t.Run("SetAndGet", func(t *testing.T) {
		if err := cache.Set(ctx, storeID, "key1", []byte("value1"), 1*time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, storeID, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected value1, got %s", val)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		val, err := cache.Get(ctx, storeID, "nope")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for missing key, got %s", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		cache.Set(ctx, storeID, "key2", []byte("v"), 1*time.Minute)
		if err := cache.Delete(ctx, storeID, "key2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		val, _ := cache.Get(ctx, storeID, "key2")
		if val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiry", func(t *testing.T) {
		cache.Set(ctx, storeID, "short", []byte("v"), 1*time.Millisecond)
		time.Sleep(5 * time.Millisecond)

		val, _ := cache.Get(ctx, storeID, "short")
		if val != nil {
			t.Error("expected nil after TTL expiry")
		}
	})

	t.Run("EvictsOldest", func(t *testing.T) {
		small := NewLRUCache(2)
		small.Set(ctx, storeID, "a", []byte("1"), 1*time.Minute)
		small.Set(ctx, storeID, "b", []byte("2"), 1*time.Minute)
		small.Set(ctx, storeID, "c", []byte("3"), 1*time.Minute)

		if val, _ := small.Get(ctx, storeID, "a"); val != nil {
			t.Error("expected oldest entry evicted")
		}
		if val, _ := small.Get(ctx, storeID, "c"); val == nil {
			t.Error("expected newest entry present")
		}
	})

	t.Run("StoreIsolation", func(t *testing.T) {
		cache.Set(ctx, "store-a", "shared", []byte("a-data"), 1*time.Minute)

		val, _ := cache.Get(ctx, "store-b", "shared")
		if val != nil {
			t.Error("value leaked across stores")
		}
	})

	t.Run("RequiresStoreID", func(t *testing.T) {
		if _, err := cache.Get(ctx, "", "key1"); err == nil {
			t.Error("expected error for empty storeID")
		}
		if err := cache.Set(ctx, "", "key1", nil, time.Minute); err == nil {
			t.Error("expected error for empty storeID")
		}
	})
}

func TestLRUCacheAssessments(t *testing.T) {
	cache := NewLRUCache(10)
	ctx := context.Background()
	storeID := "store-001"

	a := &domain.RiskAssessment{
		ID:             "as-001",
		CustomerID:     "cust-001",
		StoreID:        storeID,
		Score:          35.0,
		Tier:           domain.TierMediumRisk,
		Confidence:     80,
		Recommendation: domain.RecommendReview,
		AssessedAt:     time.Now().UTC(),
	}

	if err := cache.SetAssessment(ctx, storeID, "cust-001", a, 1*time.Minute); err != nil {
		t.Fatalf("SetAssessment failed: %v", err)
	}

	got, err := cache.GetAssessment(ctx, storeID, "cust-001")
	if err != nil {
		t.Fatalf("GetAssessment failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected cached assessment")
	}
	if got.Score != 35.0 || got.Tier != domain.TierMediumRisk {
		t.Errorf("assessment roundtrip mismatch: %+v", got)
	}

	missing, err := cache.GetAssessment(ctx, storeID, "cust-none")
	if err != nil {
		t.Fatalf("GetAssessment failed: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing assessment")
	}
}

func TestLRUCacheMarkEventSeen(t *testing.T) {
	cache := NewLRUCache(10)
	ctx := context.Background()
	storeID := "store-001"

	t.Run("FirstDelivery", func(t *testing.T) {
		first, err := cache.MarkEventSeen(ctx, storeID, "ev-001", 1*time.Minute)
		if err != nil {
			t.Fatalf("MarkEventSeen failed: %v", err)
		}
		if !first {
			t.Error("expected first delivery to return true")
		}
	})

	t.Run("Replay", func(t *testing.T) {
		first, err := cache.MarkEventSeen(ctx, storeID, "ev-001", 1*time.Minute)
		if err != nil {
			t.Fatalf("MarkEventSeen failed: %v", err)
		}
		if first {
			t.Error("expected replay to return false")
		}
	})

	t.Run("ExpiredMarker", func(t *testing.T) {
		cache.MarkEventSeen(ctx, storeID, "ev-short", 1*time.Millisecond)
		time.Sleep(5 * time.Millisecond)

		first, err := cache.MarkEventSeen(ctx, storeID, "ev-short", 1*time.Minute)
		if err != nil {
			t.Fatalf("MarkEventSeen failed: %v", err)
		}
		if !first {
			t.Error("expected expired marker to be treated as first delivery")
		}
	})

	t.Run("PerStoreMarkers", func(t *testing.T) {
		first, err := cache.MarkEventSeen(ctx, "store-other", "ev-001", 1*time.Minute)
		if err != nil {
			t.Fatalf("MarkEventSeen failed: %v", err)
		}
		if !first {
			t.Error("marker leaked across stores")
		}
	})
}

func TestCacheFactory(t *testing.T) {
	t.Run("Memory", func(t *testing.T) {
		c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer c.Close()

		if _, ok := c.(*LRUCache); !ok {
			t.Errorf("expected *LRUCache, got %T", c)
		}
	})

	t.Run("Unsupported", func(t *testing.T) {
		if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
			t.Error("expected error for unsupported cache type")
		}
	})
}
