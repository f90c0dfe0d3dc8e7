package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/biodoia/vettriage/internal/providers"
	"github.com/biodoia/vettriage/pkg/models"
)

var (
	// ErrNoVisionCandidates nessun provider vision disponibile
	ErrNoVisionCandidates = errors.New("no vision providers available")

	// ErrVisionFailed tutti i candidati vision hanno fallito
	ErrVisionFailed = errors.New("all vision providers failed")
)

// VisionStep analizza l'immagine clinica tentando i provider in ordine
// di priorità. Un solo tentativo per candidato: il retry è il passaggio
// al candidato successivo.
type VisionStep struct {
	registry       *providers.Registry
	unavailableFor time.Duration
}

// NewVisionStep crea il vision step
func NewVisionStep(registry *providers.Registry, unavailableFor time.Duration) *VisionStep {
	if unavailableFor <= 0 {
		unavailableFor = 5 * time.Minute
	}
	return &VisionStep{
		registry:       registry,
		unavailableFor: unavailableFor,
	}
}

// Run esegue l'analisi dell'immagine. In caso di fallimento totale
// restituisce un errore e la lista dei fallimenti, uno per candidato tentato.
func (s *VisionStep) Run(ctx context.Context, image providers.ImageInput, hint string) ([]models.Finding, string, []providers.Failure, error) {
	candidates := s.registry.Candidates(providers.CapabilityVision)
	if len(candidates) == 0 {
		return nil, "", nil, ErrNoVisionCandidates
	}

	prompt := providers.BuildVisionPrompt(hint)
	failures := make([]providers.Failure, 0, len(candidates))

	for i, c := range candidates {
		if i > 0 {
			log.Info().
				Str("provider", c.Config.ID).
				Msg("Falling back to next vision provider")
		}

		callCtx, cancel := context.WithTimeout(ctx, c.Config.Timeout)
		findings, err := c.Vision.Analyze(callCtx, image, prompt)
		cancel()

		if err == nil {
			s.registry.RecordSuccess(c.Config.ID, providers.CapabilityVision)
			log.Info().
				Str("provider", c.Config.ID).
				Int("findings", len(findings)).
				Msg("Vision analysis completed")
			return findings, c.Config.ID, failures, nil
		}

		failure := providers.NewFailure(c.Config.ID, err)
		failures = append(failures, failure)
		s.registry.RecordFailure(c.Config.ID, providers.CapabilityVision)

		if failure.Kind == providers.FailureRateLimit {
			s.registry.MarkUnavailable(c.Config.ID, providers.CapabilityVision, time.Now().Add(s.unavailableFor))
		}

		log.Warn().
			Str("provider", c.Config.ID).
			Str("kind", string(failure.Kind)).
			Err(err).
			Msg("Vision provider failed")

		if ctx.Err() != nil {
			break
		}
	}

	return nil, "", failures, fmt.Errorf("%w: %d candidates tried", ErrVisionFailed, len(failures))
}
