package providers

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/biodoia/vettriage/pkg/resilience"
	"github.com/rs/zerolog/log"
)

var (
	ErrProviderNotFound      = errors.New("provider not found")
	ErrProviderAlreadyExists = errors.New("provider already exists")
	ErrNoProvidersAvailable  = errors.New("no providers available")
	ErrMissingImplementation = errors.New("provider implementation missing for capability")
)

// Candidate accoppia la configurazione di un provider con la sua implementazione
type Candidate struct {
	Config ProviderConfig
	Vision VisionProvider
	Text   TextProvider
}

// Registry mantiene le liste ordinate di provider candidati per capability.
// Read-mostly: l'unico stato mutabile condiviso tra run concorrenti è
// l'esclusione temporanea, aggiornata sotto circuit breaker per provider.
type Registry struct {
	mu       sync.RWMutex
	entries  map[Capability][]*Candidate
	breakers map[string]*resilience.CircuitBreaker

	breakerConfig resilience.CircuitBreakerConfig
}

// NewRegistry crea un nuovo registry
func NewRegistry() *Registry {
	return NewRegistryWithBreaker(resilience.DefaultCircuitBreakerConfig())
}

// NewRegistryWithBreaker crea un registry con configurazione breaker esplicita
func NewRegistryWithBreaker(cfg resilience.CircuitBreakerConfig) *Registry {
	return &Registry{
		entries:       make(map[Capability][]*Candidate),
		breakers:      make(map[string]*resilience.CircuitBreaker),
		breakerConfig: cfg,
	}
}

func breakerKey(id string, capability Capability) string {
	return id + "|" + string(capability)
}

// Register registra un provider per una capability
func (r *Registry) Register(cfg ProviderConfig, capability Capability, vision VisionProvider, text TextProvider) error {
	switch capability {
	case CapabilityVision:
		if vision == nil {
			return fmt.Errorf("%w: %s needs a vision implementation", ErrMissingImplementation, cfg.ID)
		}
	case CapabilityTextGeneration:
		if text == nil {
			return fmt.Errorf("%w: %s needs a text implementation", ErrMissingImplementation, cfg.ID)
		}
	default:
		return fmt.Errorf("unknown capability: %s", capability)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.entries[capability] {
		if c.Config.ID == cfg.ID {
			return fmt.Errorf("%w: %s/%s", ErrProviderAlreadyExists, cfg.ID, capability)
		}
	}

	r.entries[capability] = append(r.entries[capability], &Candidate{
		Config: cfg,
		Vision: vision,
		Text:   text,
	})

	// Mantieni l'ordinamento per priority rank crescente (rank 1 = primo)
	sort.SliceStable(r.entries[capability], func(i, j int) bool {
		return r.entries[capability][i].Config.Priority < r.entries[capability][j].Config.Priority
	})

	r.breakers[breakerKey(cfg.ID, capability)] = resilience.NewCircuitBreaker(r.breakerConfig)

	log.Info().
		Str("provider", cfg.ID).
		Str("capability", string(capability)).
		Int("priority", cfg.Priority).
		Msg("Provider registered")

	return nil
}

// Candidates restituisce i candidati disponibili per una capability,
// ordinati per priority rank crescente, esclusi i provider marcati unavailable
func (r *Registry) Candidates(capability Capability) []*Candidate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.entries[capability]
	candidates := make([]*Candidate, 0, len(all))
	for _, c := range all {
		breaker := r.breakers[breakerKey(c.Config.ID, capability)]
		if breaker != nil && !breaker.Allow() {
			log.Debug().
				Str("provider", c.Config.ID).
				Str("capability", string(capability)).
				Time("until", breaker.OpenUntil()).
				Msg("Provider excluded by circuit breaker")
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates
}

// AllCandidates restituisce tutti i candidati registrati per una capability,
// incluse le esclusioni temporanee (utile per diagnostica)
func (r *Registry) AllCandidates(capability Capability) []*Candidate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.entries[capability]
	out := make([]*Candidate, len(all))
	copy(out, all)
	return out
}

// MarkUnavailable esclude temporaneamente un provider per una capability.
// Scritture concorrenti sullo stesso provider/capability: last-writer-wins.
func (r *Registry) MarkUnavailable(id string, capability Capability, until time.Time) {
	r.mu.RLock()
	breaker := r.breakers[breakerKey(id, capability)]
	r.mu.RUnlock()

	if breaker == nil {
		log.Warn().
			Str("provider", id).
			Str("capability", string(capability)).
			Msg("MarkUnavailable on unknown provider")
		return
	}

	breaker.ForceOpenUntil(until)

	log.Warn().
		Str("provider", id).
		Str("capability", string(capability)).
		Time("until", until).
		Msg("Provider marked unavailable")
}

// RecordFailure registra un errore; errori ripetuti aprono il breaker
func (r *Registry) RecordFailure(id string, capability Capability) {
	r.mu.RLock()
	breaker := r.breakers[breakerKey(id, capability)]
	r.mu.RUnlock()

	if breaker != nil {
		breaker.RecordFailure()
	}
}

// RecordSuccess azzera il conteggio errori del provider
func (r *Registry) RecordSuccess(id string, capability Capability) {
	r.mu.RLock()
	breaker := r.breakers[breakerKey(id, capability)]
	r.mu.RUnlock()

	if breaker != nil {
		breaker.RecordSuccess()
	}
}

// Count restituisce il numero di provider registrati per una capability
func (r *Registry) Count(capability Capability) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries[capability])
}
