package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/biodoia/vettriage/internal/providers"
	"github.com/biodoia/vettriage/pkg/models"
)

var (
	// ErrNoDiagnosisCandidates nessun provider di generazione testo disponibile
	ErrNoDiagnosisCandidates = errors.New("no text-generation providers available")

	// ErrDiagnosisFailed tutti i candidati di diagnosi hanno fallito
	ErrDiagnosisFailed = errors.New("all diagnosis providers failed")
)

// DiagnosisStep genera la diagnosi differenziale con la stessa disciplina
// di fallback del vision step. Una risposta non interpretabile conta come
// fallimento del provider, non della run.
type DiagnosisStep struct {
	registry       *providers.Registry
	unavailableFor time.Duration
	// promptBudget limite in byte del contesto di conoscenza incluso nel prompt
	promptBudget int
}

// NewDiagnosisStep crea il diagnosis step
func NewDiagnosisStep(registry *providers.Registry, unavailableFor time.Duration, promptBudget int) *DiagnosisStep {
	if unavailableFor <= 0 {
		unavailableFor = 5 * time.Minute
	}
	if promptBudget <= 0 {
		promptBudget = 6000
	}
	return &DiagnosisStep{
		registry:       registry,
		unavailableFor: unavailableFor,
		promptBudget:   promptBudget,
	}
}

// Run genera le voci di diagnosi, ordinate per confidenza decrescente
func (s *DiagnosisStep) Run(ctx context.Context, caseInfo models.CaseInfo, findings []models.Finding, passages []models.KnowledgePassage) ([]models.DiagnosisCandidate, string, []providers.Failure, error) {
	candidates := s.registry.Candidates(providers.CapabilityTextGeneration)
	if len(candidates) == 0 {
		return nil, "", nil, ErrNoDiagnosisCandidates
	}

	prompt := providers.BuildDiagnosisPrompt(s.buildCaseContext(caseInfo, findings, passages))
	failures := make([]providers.Failure, 0, len(candidates))

	for i, c := range candidates {
		if i > 0 {
			log.Info().
				Str("provider", c.Config.ID).
				Msg("Falling back to next diagnosis provider")
		}

		callCtx, cancel := context.WithTimeout(ctx, c.Config.Timeout)
		result, err := c.Text.Generate(callCtx, prompt)
		cancel()

		if err == nil {
			s.registry.RecordSuccess(c.Config.ID, providers.CapabilityTextGeneration)
			sortByConfidence(result)
			log.Info().
				Str("provider", c.Config.ID).
				Int("candidates", len(result)).
				Msg("Differential diagnosis generated")
			return result, c.Config.ID, failures, nil
		}

		failure := providers.NewFailure(c.Config.ID, err)
		failures = append(failures, failure)
		s.registry.RecordFailure(c.Config.ID, providers.CapabilityTextGeneration)

		if failure.Kind == providers.FailureRateLimit {
			s.registry.MarkUnavailable(c.Config.ID, providers.CapabilityTextGeneration, time.Now().Add(s.unavailableFor))
		}

		log.Warn().
			Str("provider", c.Config.ID).
			Str("kind", string(failure.Kind)).
			Err(err).
			Msg("Diagnosis provider failed")

		if ctx.Err() != nil {
			break
		}
	}

	return nil, "", failures, fmt.Errorf("%w: %d candidates tried", ErrDiagnosisFailed, len(failures))
}

// buildCaseContext compone il contesto clinico del prompt. I passaggi di
// conoscenza vengono inclusi interi, in ordine di rilevanza, finché il
// budget lo consente: mai troncati a metà.
func (s *DiagnosisStep) buildCaseContext(caseInfo models.CaseInfo, findings []models.Finding, passages []models.KnowledgePassage) string {
	var b strings.Builder

	b.WriteString("## Patient\n")
	fmt.Fprintf(&b, "Species: %s\n", caseInfo.Species)
	if caseInfo.Breed != "" {
		fmt.Fprintf(&b, "Breed: %s\n", caseInfo.Breed)
	}
	if caseInfo.Age != "" {
		fmt.Fprintf(&b, "Age: %s\n", caseInfo.Age)
	}
	if caseInfo.Sex != "" {
		neutered := ""
		if caseInfo.Neutered {
			neutered = " (neutered)"
		}
		fmt.Fprintf(&b, "Sex: %s%s\n", caseInfo.Sex, neutered)
	}
	if caseInfo.Weight != "" {
		fmt.Fprintf(&b, "Weight: %s\n", caseInfo.Weight)
	}
	if caseInfo.Complaint != "" {
		fmt.Fprintf(&b, "Presenting complaint: %s\n", caseInfo.Complaint)
	}
	if caseInfo.History != "" {
		fmt.Fprintf(&b, "History: %s\n", caseInfo.History)
	}
	if caseInfo.Urgency != "" {
		fmt.Fprintf(&b, "Declared urgency: %s\n", caseInfo.Urgency)
	}

	if len(findings) > 0 {
		b.WriteString("\n## Visual findings\n")
		for _, f := range findings {
			fmt.Fprintf(&b, "- %s (confidence %.2f", f.Label, f.Confidence)
			if f.Region != "" {
				fmt.Fprintf(&b, ", %s", f.Region)
			}
			b.WriteString(")")
			if f.Description != "" {
				fmt.Fprintf(&b, ": %s", f.Description)
			}
			b.WriteString("\n")
		}
	}

	if len(passages) > 0 {
		var knowledge strings.Builder
		used := 0
		for i, p := range passages {
			entry := fmt.Sprintf("[%d] (%s, %s) %s\n", i+1, p.Source, p.Origin, p.Text)
			if used+len(entry) > s.promptBudget {
				break
			}
			knowledge.WriteString(entry)
			used += len(entry)
		}
		if knowledge.Len() > 0 {
			b.WriteString("\n## Reference passages\n")
			b.WriteString(knowledge.String())
		}
	}

	return b.String()
}

// sortByConfidence ordina le voci per confidenza decrescente, stabile
func sortByConfidence(candidates []models.DiagnosisCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
}
