package semcache

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestMemoryStoreSearchReturnsBest(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10, 0)

	entries := []*Entry{
		{ID: "a", Embedding: []float32{1, 0, 0}},
		{ID: "b", Embedding: []float32{0, 1, 0}},
		{ID: "c", Embedding: []float32{0.9, 0.1, 0}},
	}
	for _, e := range entries {
		if err := s.Insert(ctx, e); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	match, err := s.Search(ctx, []float32{1, 0, 0})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if match == nil || match.Entry.ID != "a" {
		t.Fatalf("best match = %+v, want entry a", match)
	}
	if match.Score < 0.999 {
		t.Errorf("score = %v, want ~1", match.Score)
	}
}

func TestMemoryStoreSearchEmpty(t *testing.T) {
	s := NewMemoryStore(10, 0)

	match, err := s.Search(context.Background(), []float32{1, 0})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if match != nil {
		t.Errorf("match on empty store = %+v, want nil", match)
	}
}

func TestMemoryStoreLRUEviction(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2, 0)

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	old := base.Add(-time.Hour)
	recent := base.Add(-time.Minute)
	if err := s.Insert(ctx, &Entry{ID: "old", Embedding: []float32{1, 0}, LastUsed: old}); err != nil {
		t.Fatal(err)
	}
	if err := s.Insert(ctx, &Entry{ID: "recent", Embedding: []float32{0, 1}, LastUsed: recent}); err != nil {
		t.Fatal(err)
	}

	// 容量已满，写入第三条应淘汰最久未使用的 old
	if err := s.Insert(ctx, &Entry{ID: "new", Embedding: []float32{1, 1}, LastUsed: base}); err != nil {
		t.Fatal(err)
	}

	n, _ := s.Len(ctx)
	if n != 2 {
		t.Fatalf("len = %d, want 2", n)
	}
	for _, e := range s.entries {
		if e.ID == "old" {
			t.Error("LRU entry was not evicted")
		}
	}
}

func TestMemoryStoreTouchUpdatesLRU(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2, 0)

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	if err := s.Insert(ctx, &Entry{ID: "a", Embedding: []float32{1, 0}, LastUsed: base.Add(-2 * time.Hour)}); err != nil {
		t.Fatal(err)
	}
	if err := s.Insert(ctx, &Entry{ID: "b", Embedding: []float32{0, 1}, LastUsed: base.Add(-time.Hour)}); err != nil {
		t.Fatal(err)
	}

	// Touch 把 a 提为最近使用，淘汰应落在 b
	if err := s.Touch(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if err := s.Insert(ctx, &Entry{ID: "c", Embedding: []float32{1, 1}, LastUsed: base}); err != nil {
		t.Fatal(err)
	}

	for _, e := range s.entries {
		if e.ID == "b" {
			t.Error("expected b to be evicted after a was touched")
		}
		if e.ID == "a" && e.Hits != 1 {
			t.Errorf("hits = %d, want 1", e.Hits)
		}
	}
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10, time.Hour)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	if err := s.Insert(ctx, &Entry{ID: "a", Embedding: []float32{1, 0}, CreatedAt: now, LastUsed: now}); err != nil {
		t.Fatal(err)
	}

	now = now.Add(2 * time.Hour)

	match, err := s.Search(ctx, []float32{1, 0})
	if err != nil {
		t.Fatal(err)
	}
	if match != nil {
		t.Errorf("expired entry still returned: %+v", match)
	}

	n, _ := s.Len(ctx)
	if n != 0 {
		t.Errorf("len = %d, want 0 after expiry", n)
	}
}

func TestMemoryStoreClear(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10, 0)

	for i := 0; i < 5; i++ {
		if err := s.Insert(ctx, &Entry{ID: fmt.Sprintf("e%d", i), Embedding: []float32{1, 0}}); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	n, _ := s.Len(ctx)
	if n != 0 {
		t.Errorf("len = %d after clear, want 0", n)
	}
}
