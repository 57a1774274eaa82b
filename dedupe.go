package main

import "sync"

// recentKeys suppresses duplicate event deliveries. It remembers the last
// `capacity` keys in arrival order and evicts the oldest when full, so
// suppression degrades gradually instead of lapsing at a wholesale reset.
type recentKeys struct {
	mu       sync.Mutex
	capacity int
	seen     map[string]struct{}
	order    []string
	head     int
}

func newRecentKeys(capacity int) *recentKeys {
	if capacity < 1 {
		capacity = 1
	}
	return &recentKeys{
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity),
		order:    make([]string, capacity),
	}
}

// Observe records key and reports whether it was already present.
func (r *recentKeys) Observe(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.seen[key]; ok {
		return true
	}
	if len(r.seen) == r.capacity {
		oldest := r.order[r.head]
		delete(r.seen, oldest)
	}
	r.seen[key] = struct{}{}
	r.order[r.head] = key
	r.head = (r.head + 1) % r.capacity
	return false
}
