package dispatch

import (
	"testing"
	"time"
)

func TestPriceCacheUpdateAndGet(t *testing.T) {
	c := NewPriceCache(Throttle{}, nil)

	if _, ok := c.Get("RELIANCE"); ok {
		t.Fatal("empty cache should miss")
	}

	at := time.Unix(1700000000, 0)
	c.Update("RELIANCE", 123.45, at)
	point, ok := c.Get("RELIANCE")
	if !ok || point.Rate != 123.45 || !point.Time.Equal(at) {
		t.Fatalf("cached point mismatch: %+v", point)
	}

	// Newer update replaces the old one.
	c.Update("RELIANCE", 124.00, at.Add(time.Second))
	point, _ = c.Get("RELIANCE")
	if point.Rate != 124.00 {
		t.Fatalf("stale rate served: %v", point.Rate)
	}
	if c.Len() != 1 {
		t.Fatalf("len mismatch: %d", c.Len())
	}
}

func TestPriceCacheCommitHook(t *testing.T) {
	var commits []PricePoint
	c := NewPriceCache(Throttle{}, func(_ string, point PricePoint) {
		commits = append(commits, point)
	})

	base := time.Unix(1700000000, 0)
	c.Update("RELIANCE", 100, base)
	c.Update("RELIANCE", 101, base.Add(time.Second))
	if len(commits) != 2 {
		t.Fatalf("no throttle: every update commits, got %d", len(commits))
	}
}

func TestPriceCacheThrottleInterval(t *testing.T) {
	var commits int
	c := NewPriceCache(Throttle{MinInterval: time.Minute}, func(string, PricePoint) {
		commits++
	})

	base := time.Unix(1700000000, 0)
	c.Update("RELIANCE", 100, base)
	c.Update("RELIANCE", 101, base.Add(time.Second))
	c.Update("RELIANCE", 102, base.Add(2*time.Second))
	if commits != 1 {
		t.Fatalf("interval throttle: want 1 commit, got %d", commits)
	}

	c.Update("RELIANCE", 103, base.Add(2*time.Minute))
	if commits != 2 {
		t.Fatalf("after interval: want 2 commits, got %d", commits)
	}

	// Throttled updates still land in the read cache.
	point, _ := c.Get("RELIANCE")
	if point.Rate != 103 {
		t.Fatalf("read cache missed throttled update: %v", point.Rate)
	}
}

func TestPriceCacheThrottleChangePct(t *testing.T) {
	var commits int
	c := NewPriceCache(Throttle{MinChangePct: 1.0}, func(string, PricePoint) {
		commits++
	})

	base := time.Unix(1700000000, 0)
	c.Update("RELIANCE", 100, base)
	c.Update("RELIANCE", 100.50, base.Add(time.Second)) // +0.5%, suppressed
	if commits != 1 {
		t.Fatalf("small move should not commit, got %d", commits)
	}
	c.Update("RELIANCE", 102, base.Add(2*time.Second)) // +2% vs committed 100
	if commits != 2 {
		t.Fatalf("large move should commit, got %d", commits)
	}
}
