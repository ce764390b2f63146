package semcache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore 内存条目存储：扁平切片 + 读写锁 + 线性扫描。
// Lookup 在每次查询的热路径上，读不阻塞写之外的读；
// 当前规模下线性扫描足够，条目量上来后可在 Store 接口后换 ANN 实现。
type MemoryStore struct {
	mu       sync.RWMutex
	entries  []*Entry
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore 创建内存存储。capacity <= 0 表示不限容量，ttl <= 0 表示不过期。
func NewMemoryStore(capacity int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// expired 条目是否已超过 TTL
func (s *MemoryStore) expired(e *Entry, now time.Time) bool {
	return s.ttl > 0 && now.Sub(e.CreatedAt) > s.ttl
}

// Search 线性扫描全部未过期条目，返回相似度最高者
func (s *MemoryStore) Search(ctx context.Context, embedding []float32) (*Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now().UTC()

	var best *Entry
	bestScore := -1.0
	for _, e := range s.entries {
		if s.expired(e, now) {
			continue
		}
		score := CosineSimilarity(embedding, e.Embedding)
		if score > bestScore {
			best = e
			bestScore = score
		}
	}

	if best == nil {
		return nil, nil
	}
	return &Match{Entry: best, Score: bestScore}, nil
}

// Touch 记录一次命中
func (s *MemoryStore) Touch(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.ID == id {
			e.Hits++
			e.LastUsed = s.now().UTC()
			return nil
		}
	}
	return nil
}

// Insert 写入条目。先清理过期条目，仍满容量时按 LRU 淘汰一条。
func (s *MemoryStore) Insert(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()

	if s.ttl > 0 {
		kept := s.entries[:0]
		for _, e := range s.entries {
			if !s.expired(e, now) {
				kept = append(kept, e)
			}
		}
		s.entries = kept
	}

	if s.capacity > 0 && len(s.entries) >= s.capacity {
		s.evictLRU()
	}

	s.entries = append(s.entries, entry)
	return nil
}

// evictLRU 淘汰最久未使用的条目。调用方持有写锁。
func (s *MemoryStore) evictLRU() {
	if len(s.entries) == 0 {
		return
	}

	oldest := 0
	for i, e := range s.entries {
		if e.LastUsed.Before(s.entries[oldest].LastUsed) {
			oldest = i
		}
	}

	s.entries = append(s.entries[:oldest], s.entries[oldest+1:]...)
}

// Clear 清空全部条目
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
	return nil
}

// Len 当前未过期条目数
func (s *MemoryStore) Len(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now().UTC()
	n := 0
	for _, e := range s.entries {
		if !s.expired(e, now) {
			n++
		}
	}
	return n, nil
}
