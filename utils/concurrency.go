package utils

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Jitter produces randomized pauses inside [Min, Max]. It paces sequential
// upstream requests so they do not arrive on a fixed cadence.
type Jitter struct {
	Min time.Duration
	Max time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewJitter creates a Jitter for the given window. Bounds are swapped when
// reversed and clamped at zero.
func NewJitter(min, max time.Duration) *Jitter {
	if min < 0 {
		min = 0
	}
	if max < min {
		min, max = max, min
		if min < 0 {
			min = 0
		}
	}
	return &Jitter{Min: min, Max: max, rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Next returns the next delay.
func (j *Jitter) Next() time.Duration {
	if j.Max <= j.Min {
		return j.Min
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.Min + time.Duration(j.rnd.Int63n(int64(j.Max-j.Min)+1))
}

// Sleep blocks for d. It returns ctx.Err() if ctx ends first and nil early if
// wake is closed or signalled.
func Sleep(ctx context.Context, d time.Duration, wake <-chan struct{}) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-wake:
		return nil
	case <-t.C:
		return nil
	}
}

// KeySet is a thread-safe set of string keys.
type KeySet struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewKeySet creates an empty KeySet.
func NewKeySet() *KeySet {
	return &KeySet{seen: make(map[string]struct{})}
}

// Add returns true if the key was newly added, false if already present.
func (s *KeySet) Add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[key]; exists {
		return false
	}
	s.seen[key] = struct{}{}
	return true
}

// Remove deletes key from the set.
func (s *KeySet) Remove(key string) {
	s.mu.Lock()
	delete(s.seen, key)
	s.mu.Unlock()
}

// Contains returns true if key is in the set.
func (s *KeySet) Contains(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.seen[key]
	return exists
}

// Size returns the number of keys tracked.
func (s *KeySet) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}
