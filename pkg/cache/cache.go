package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrCacheMiss chiave non trovata nella cache
	ErrCacheMiss = errors.New("cache miss")
)

// Cache è l'interfaccia della cache dei referti
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Stats() Stats
}

// Stats contiene statistiche sulla cache
type Stats struct {
	Hits   int64
	Misses int64
	Sets   int64
}

// HitRate calcola il tasso di hit della cache
func (s *Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// MemoryCache implementazione in-memory con scadenza per-chiave
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	stats   Stats
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache crea una nuova cache in-memory
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
	}
}

// Get recupera un valore dalla cache
func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		if ok {
			delete(m.entries, key)
		}
		m.stats.Misses++
		return nil, ErrCacheMiss
	}

	m.stats.Hits++
	return entry.value, nil
}

// Set salva un valore con TTL
func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	m.stats.Sets++
	return nil
}

// Delete rimuove un valore dalla cache
func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Stats restituisce le statistiche correnti
func (m *MemoryCache) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}
