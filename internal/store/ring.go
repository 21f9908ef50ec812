package store

import "sync"

// DefaultRingSize is the per-key cap used when none is configured.
const DefaultRingSize = 500

// ring is a fixed-capacity circular buffer. Once full, head points at the
// oldest element, which the next push overwrites.
type ring[T any] struct {
	items []T
	head  int
}

func (r *ring[T]) push(v T, size int) {
	if len(r.items) < size {
		r.items = append(r.items, v)
		return
	}
	r.items[r.head] = v
	r.head = (r.head + 1) % size
}

// ordered returns the elements oldest first, as a new slice.
func (r *ring[T]) ordered() []T {
	out := make([]T, 0, len(r.items))
	out = append(out, r.items[r.head:]...)
	return append(out, r.items[:r.head]...)
}

// Ring keeps the most recent entries per key, bounded at a fixed size per key.
// It is safe for concurrent use.
type Ring[T any] struct {
	mu    sync.RWMutex
	size  int
	rings map[string]*ring[T]
}

// NewRing creates a ring store holding at most size entries per key.
// A non-positive size falls back to DefaultRingSize.
func NewRing[T any](size int) *Ring[T] {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Ring[T]{
		size:  size,
		rings: make(map[string]*ring[T]),
	}
}

// Size returns the per-key cap.
func (s *Ring[T]) Size() int {
	return s.size
}

// Push appends v under key, dropping the oldest entry when the key is full.
// An empty key is ignored.
func (s *Ring[T]) Push(key string, v T) {
	if key == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rings[key]
	if !ok {
		r = &ring[T]{}
		s.rings[key] = r
	}
	r.push(v, s.size)
}

// Get returns the newest min(limit, len) entries for key in chronological order.
// The result is never nil.
func (s *Ring[T]) Get(key string, limit int) []T {
	if limit <= 0 {
		return []T{}
	}

	s.mu.RLock()
	r, ok := s.rings[key]
	var all []T
	if ok {
		all = r.ordered()
	}
	s.mu.RUnlock()

	if len(all) == 0 {
		return []T{}
	}
	if limit < len(all) {
		all = all[len(all)-limit:]
	}
	return all
}

// Clear drops every entry under key. Clearing an unknown key is a no-op.
func (s *Ring[T]) Clear(key string) {
	s.mu.Lock()
	delete(s.rings, key)
	s.mu.Unlock()
}

// Len returns the number of entries stored under key.
func (s *Ring[T]) Len(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.rings[key]; ok {
		return len(r.items)
	}
	return 0
}

// Keys returns every key that currently holds entries, in no particular order.
func (s *Ring[T]) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.rings))
	for k := range s.rings {
		keys = append(keys, k)
	}
	return keys
}
