package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	// ErrCircuitOpen viene restituito quando il circuit breaker è aperto
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// State rappresenta lo stato del circuit breaker
type State int

const (
	// StateClosed il circuito è chiuso, le richieste passano normalmente
	StateClosed State = iota

	// StateOpen il circuito è aperto, le richieste vengono rifiutate
	StateOpen
)

// String restituisce la rappresentazione string dello stato
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig contiene la configurazione del circuit breaker
type CircuitBreakerConfig struct {
	// FailureThreshold numero di errori consecutivi prima di aprire il circuito
	FailureThreshold int

	// OpenFor durata di apertura del circuito dopo il superamento della soglia
	OpenFor time.Duration
}

// DefaultCircuitBreakerConfig restituisce una configurazione di default
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 3,
		OpenFor:          5 * time.Minute,
	}
}

// CircuitBreaker esclude temporaneamente una risorsa dopo errori ripetuti.
// Il circuito si richiude da solo allo scadere della finestra di apertura.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu        sync.Mutex
	failures  int
	openUntil time.Time
}

// NewCircuitBreaker crea un nuovo circuit breaker
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultCircuitBreakerConfig().FailureThreshold
	}
	if config.OpenFor <= 0 {
		config.OpenFor = DefaultCircuitBreakerConfig().OpenFor
	}

	return &CircuitBreaker{config: config}
}

// Allow verifica se una richiesta può procedere
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.openUntil.IsZero() {
		return true
	}
	if time.Now().After(cb.openUntil) {
		// Finestra scaduta, il circuito si richiude
		cb.openUntil = time.Time{}
		cb.failures = 0
		return true
	}
	return false
}

// State restituisce lo stato corrente
func (cb *CircuitBreaker) State() State {
	if cb.Allow() {
		return StateClosed
	}
	return StateOpen
}

// RecordSuccess azzera il conteggio degli errori consecutivi
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
}

// RecordFailure registra un errore; al superamento della soglia apre il circuito
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	if cb.failures >= cb.config.FailureThreshold {
		cb.openUntil = time.Now().Add(cb.config.OpenFor)
		cb.failures = 0

		log.Warn().
			Time("open_until", cb.openUntil).
			Msg("Circuit breaker opened")
	}
}

// ForceOpenUntil apre il circuito fino all'istante indicato.
// Una chiamata successiva sovrascrive la precedente (last-writer-wins).
func (cb *CircuitBreaker) ForceOpenUntil(until time.Time) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.openUntil = until
	cb.failures = 0
}

// OpenUntil restituisce l'istante di riapertura, zero se il circuito è chiuso
func (cb *CircuitBreaker) OpenUntil() time.Time {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return cb.openUntil
}
