package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	hits   []time.Time
	window time.Duration
}

// MemoryStore keeps counters in process memory. A janitor goroutine drops
// keys whose hits have all left their window.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	stop    chan struct{}
	once    sync.Once
}

// NewMemoryStore starts a store that sweeps stale keys every interval
func NewMemoryStore(interval time.Duration) *MemoryStore {
	s := &MemoryStore{
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	if interval > 0 {
		go s.janitor(interval)
	}
	return s
}

// Hit implements CounterStore
func (s *MemoryStore) Hit(_ context.Context, key string, limit int, window time.Duration, now time.Time) (int, time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{window: window}
		s.buckets[key] = b
	}
	b.window = window
	b.hits = prune(b.hits, now.Add(-window))

	if len(b.hits) >= limit {
		return len(b.hits), b.hits[0], false, nil
	}

	b.hits = append(b.hits, now)
	return len(b.hits), b.hits[0], true, nil
}

// Len returns the number of tracked keys
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// Sweep drops keys without hits inside their window
func (s *MemoryStore) Sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, b := range s.buckets {
		b.hits = prune(b.hits, now.Add(-b.window))
		if len(b.hits) == 0 {
			delete(s.buckets, key)
		}
	}
}

// Close stops the janitor
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

func (s *MemoryStore) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(time.Now())
		case <-s.stop:
			return
		}
	}
}

// prune drops hits at or before cutoff; hits are kept in insertion order
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return hits
	}
	return append(hits[:0], hits[i:]...)
}
