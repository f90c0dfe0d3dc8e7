package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/biodoia/vettriage/pkg/models"
)

var (
	// ErrRateLimited segnala che il provider ha risposto con un rate limit
	ErrRateLimited = errors.New("provider rate limited")

	// ErrMalformedResponse segnala una risposta non interpretabile
	ErrMalformedResponse = errors.New("malformed provider response")

	// ErrEmptyResponse segnala una risposta senza alcun contenuto utilizzabile
	ErrEmptyResponse = errors.New("empty provider response")
)

// Capability rappresenta il ruolo funzionale che un provider ricopre
type Capability string

const (
	CapabilityVision         Capability = "vision"
	CapabilityTextGeneration Capability = "text-generation"
)

// ProviderConfig descrive un provider candidato per una capability.
// Read-only dopo il caricamento; mai mutata durante una run.
type ProviderConfig struct {
	ID       string
	Kind     string // "openrouter", "gemini", "mistral"
	Model    string
	Priority int // rank 1 = primo tentato
	APIKey   string
	BaseURL  string
	Timeout  time.Duration // timeout per singola chiamata
}

// ImageInput rappresenta l'immagine da analizzare
type ImageInput struct {
	Data     []byte
	MimeType string
}

// MaxImageBytes dimensione massima accettata per un'immagine clinica
const MaxImageBytes = 10 << 20

// supportedImageTypes formati accettati dai provider vision configurabili
var supportedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
	"image/bmp":  true,
}

// Validate verifica formato e dimensione dell'immagine prima della chiamata
func (i ImageInput) Validate() error {
	if len(i.Data) == 0 {
		return errors.New("image is empty")
	}
	if len(i.Data) > MaxImageBytes {
		return fmt.Errorf("image exceeds %d MB limit", MaxImageBytes>>20)
	}
	if !supportedImageTypes[i.MimeType] {
		return fmt.Errorf("unsupported image type %q", i.MimeType)
	}
	return nil
}

// VisionProvider analizza un'immagine clinica e produce osservazioni strutturate
type VisionProvider interface {
	Name() string
	Analyze(ctx context.Context, image ImageInput, promptHint string) ([]models.Finding, error)
}

// TextProvider genera una diagnosi differenziale a partire da un prompt
type TextProvider interface {
	Name() string
	Generate(ctx context.Context, prompt string) ([]models.DiagnosisCandidate, error)
}

// FailureKind classifica il motivo di fallimento di una chiamata a provider
type FailureKind string

const (
	FailureTimeout       FailureKind = "timeout"
	FailureRateLimit     FailureKind = "rate-limit"
	FailureMalformed     FailureKind = "malformed-response"
	FailureProviderError FailureKind = "provider-error"
)

// Failure registra il fallimento di un singolo candidato durante il fallback
type Failure struct {
	Provider string      `json:"provider"`
	Kind     FailureKind `json:"kind"`
	Reason   string      `json:"reason"`
}

// ClassifyFailure determina la FailureKind a partire dall'errore della chiamata
func ClassifyFailure(err error) FailureKind {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return FailureTimeout
	case errors.Is(err, ErrRateLimited):
		return FailureRateLimit
	case errors.Is(err, ErrMalformedResponse), errors.Is(err, ErrEmptyResponse):
		return FailureMalformed
	default:
		return FailureProviderError
	}
}

// NewFailure costruisce una Failure a partire da un errore classificato
func NewFailure(providerID string, err error) Failure {
	return Failure{
		Provider: providerID,
		Kind:     ClassifyFailure(err),
		Reason:   err.Error(),
	}
}
