package storage

import (
	"encoding/json"
	"fmt"
	"time"
)

// Expiring wraps a persisted value with the instant it stops being valid.
type Expiring[T any] struct {
	Value     T         `json:"value"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ExpiringStore saves one value under a fixed key with a fixed lifetime.
// Loading an expired value deletes it.
type ExpiringStore[T any] struct {
	backend Backend
	key     string
	ttl     time.Duration
	now     func() time.Time
}

// NewExpiringStore creates a store for key. now may be nil.
func NewExpiringStore[T any](backend Backend, key string, ttl time.Duration, now func() time.Time) *ExpiringStore[T] {
	if now == nil {
		now = time.Now
	}
	return &ExpiringStore[T]{backend: backend, key: key, ttl: ttl, now: now}
}

// Save replaces the stored value and restarts its lifetime.
func (s *ExpiringStore[T]) Save(v T) error {
	data, err := json.Marshal(Expiring[T]{Value: v, ExpiresAt: s.now().Add(s.ttl).UTC()})
	if err != nil {
		return fmt.Errorf("%s: encode: %w", s.key, err)
	}
	if err := s.backend.Put(s.key, data); err != nil {
		return fmt.Errorf("%s: %w", s.key, err)
	}
	return nil
}

// Load returns the value, or false when it is missing or expired.
func (s *ExpiringStore[T]) Load() (T, bool, error) {
	var zero T
	data, ok, err := s.backend.Get(s.key)
	if err != nil {
		return zero, false, fmt.Errorf("%s: %w", s.key, err)
	}
	if !ok {
		return zero, false, nil
	}

	var env Expiring[T]
	if err := json.Unmarshal(data, &env); err != nil {
		// A corrupt entry is as good as absent.
		_ = s.backend.Delete(s.key)
		return zero, false, fmt.Errorf("%s: decode: %w", s.key, err)
	}
	if !s.now().Before(env.ExpiresAt) {
		if err := s.Prune(); err != nil {
			return zero, false, err
		}
		return zero, false, nil
	}
	return env.Value, true, nil
}

// Prune deletes the stored value.
func (s *ExpiringStore[T]) Prune() error {
	if err := s.backend.Delete(s.key); err != nil {
		return fmt.Errorf("%s: delete: %w", s.key, err)
	}
	return nil
}
