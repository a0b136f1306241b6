package verify

import (
	"context"
	"sync"
	"time"

	"github.com/percystore/smartsales/internal/redisx"
	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	RDB *redis.Client
}

func (s RedisStore) Set(ctx context.Context, key, code string, ttl time.Duration) error {
	_, err := s.RDB.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, key, code, ttl)
		p.Del(ctx, redisx.AttemptsKey(key))
		return nil
	})
	return err
}

func (s RedisStore) ConsumeIfMatch(ctx context.Context, key, code string, maxAttempts int) (bool, error) {
	return redisx.ConsumeIfMatch(ctx, s.RDB, key, code, maxAttempts)
}

// MemoryStore is a process-local Store for tests and single-instance development.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
	Now     func() time.Time
}

type memEntry struct {
	code    string
	expires time.Time
	misses  int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]memEntry{}, Now: time.Now}
}

func (s *MemoryStore) Set(_ context.Context, key, code string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memEntry{code: code, expires: s.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) ConsumeIfMatch(_ context.Context, key, code string, maxAttempts int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	if !s.Now().Before(e.expires) {
		delete(s.entries, key)
		return false, nil
	}
	if e.code != code {
		e.misses++
		if maxAttempts > 0 && e.misses >= maxAttempts {
			delete(s.entries, key)
		} else {
			s.entries[key] = e
		}
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}

// Has reports whether a live code is stored under key.
func (s *MemoryStore) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return ok && s.Now().Before(e.expires)
}
