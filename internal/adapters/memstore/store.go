package memstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/samirrijal/shoptrip/internal/core/ports"
)

// ErrQuotaExceeded is returned when a value exceeds the configured quota.
var ErrQuotaExceeded = errors.New("memstore: quota exceeded")

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Store is an in-memory ports.KeyValueStore used when Valkey is not
// configured and in tests.
type Store struct {
	mu       sync.Mutex
	data     map[string]entry
	maxBytes int
	now      func() time.Time
}

// New creates an empty Store. maxBytes <= 0 disables the per-value quota.
func New(maxBytes int) *Store {
	return &Store{data: map[string]entry{}, maxBytes: maxBytes, now: time.Now}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[key]
	if !ok {
		return nil, ports.ErrNotFound
	}
	if !e.expiresAt.IsZero() && s.now().After(e.expiresAt) {
		delete(s.data, key)
		return nil, ports.ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	if s.maxBytes > 0 && len(value) > s.maxBytes {
		return ErrQuotaExceeded
	}
	e := entry{value: append([]byte(nil), value...)}
	if ttlSeconds > 0 {
		e.expiresAt = s.now().Add(time.Duration(ttlSeconds) * time.Second)
	}
	s.mu.Lock()
	s.data[key] = e
	s.mu.Unlock()
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}
