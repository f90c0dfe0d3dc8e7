package embeddings

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// PassageEntry rappresenta un passaggio indicizzato nel vector store
type PassageEntry struct {
	ID       string
	Vector   []float32
	Text     string
	Source   string
	AddedAt  time.Time
}

// ScoredPassage è un risultato di ricerca con similarità
type ScoredPassage struct {
	Entry      *PassageEntry
	Similarity float64
}

// Store è l'interfaccia del vector store usata dal sottosistema di retrieval
type Store interface {
	Add(ctx context.Context, entry PassageEntry) error
	Search(ctx context.Context, query []float32, k int) ([]ScoredPassage, error)
	Size() int
}

// InMemoryStore implementazione in-memory del vector store
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []*PassageEntry
	byID    map[string]int
}

// NewInMemoryStore crea un nuovo store in-memory
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID: make(map[string]int),
	}
}

// Add aggiunge (o aggiorna) un passaggio
func (s *InMemoryStore) Add(ctx context.Context, entry PassageEntry) error {
	if len(entry.Vector) == 0 {
		return fmt.Errorf("entry %s has no vector", entry.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry.AddedAt = time.Now()
	if idx, ok := s.byID[entry.ID]; ok {
		s.entries[idx] = &entry
	} else {
		s.byID[entry.ID] = len(s.entries)
		s.entries = append(s.entries, &entry)
	}

	log.Debug().
		Str("id", entry.ID).
		Int("dimensions", len(entry.Vector)).
		Msg("Passage added to vector store")

	return nil
}

// Search restituisce i k passaggi più simili al query vector,
// ordinati per similarità decrescente
func (s *InMemoryStore) Search(ctx context.Context, query []float32, k int) ([]ScoredPassage, error) {
	start := time.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return []ScoredPassage{}, nil
	}

	vectors := make([][]float32, len(s.entries))
	for i, e := range s.entries {
		vectors[i] = e.Vector
	}

	similarities := BatchCosineSimilarity(query, vectors)

	scored := make([]ScoredPassage, len(s.entries))
	for i, e := range s.entries {
		scored[i] = ScoredPassage{Entry: e, Similarity: similarities[i]}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})

	if k < len(scored) {
		scored = scored[:k]
	}

	log.Debug().
		Int("results", len(scored)).
		Int("total", len(s.entries)).
		Dur("duration", time.Since(start)).
		Msg("Vector search completed")

	return scored, nil
}

// Size restituisce il numero di passaggi indicizzati
func (s *InMemoryStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
