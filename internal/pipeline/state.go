package pipeline

import (
	"time"

	"github.com/biodoia/vettriage/internal/providers"
	"github.com/biodoia/vettriage/pkg/models"
)

// State rappresenta lo stato corrente di una run di triage
type State string

const (
	StateInit      State = "INIT"
	StateVision    State = "VISION"
	StateKnowledge State = "KNOWLEDGE"
	StateDiagnosis State = "DIAGNOSIS"
	StateDone      State = "DONE"
	// StateError è assorbente: una run che vi entra non avanza oltre
	StateError State = "ERROR"
)

// validTransitions definisce le transizioni ammesse della macchina a stati
var validTransitions = map[State][]State{
	StateInit:      {StateVision, StateKnowledge, StateError},
	StateVision:    {StateKnowledge, StateError},
	StateKnowledge: {StateDiagnosis, StateError},
	StateDiagnosis: {StateDone, StateError},
}

// canTransition verifica se la transizione from->to è ammessa
func canTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CaseContext accumula lo stato di una run mentre attraversa la pipeline.
// Non è condiviso tra run: ogni richiesta ha il proprio contesto.
type CaseContext struct {
	RunID string
	State State

	Case  models.CaseInfo
	Image *providers.ImageInput

	Findings   []models.Finding
	Passages   []models.KnowledgePassage
	Candidates []models.DiagnosisCandidate

	// VisionProvider e DiagnosisProvider registrano quale candidato ha risposto
	VisionProvider    string
	DiagnosisProvider string

	// Degraded e DegradedReasons tracciano le run completate con informazione parziale
	Degraded        bool
	DegradedReasons []string

	StepTimings map[State]time.Duration

	// FailedStep valorizzato solo in StateError. Failures registra ogni
	// candidato fallito, anche quando un fallback successivo ha avuto successo
	FailedStep State
	Failures   []providers.Failure

	StartedAt time.Time
}

// markDegraded registra una degradazione senza interrompere la run
func (c *CaseContext) markDegraded(reason string) {
	c.Degraded = true
	c.DegradedReasons = append(c.DegradedReasons, reason)
}

// Report è il referto finale restituito al chiamante
type Report struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"` // "completed" o "failed"

	Case models.CaseInfo `json:"case"`

	Findings   []models.Finding            `json:"findings"`
	Passages   []models.KnowledgePassage   `json:"passages"`
	Candidates []models.DiagnosisCandidate `json:"candidates"`

	VisionProvider    string `json:"vision_provider,omitempty"`
	DiagnosisProvider string `json:"diagnosis_provider,omitempty"`

	Degraded        bool     `json:"degraded"`
	DegradedReasons []string `json:"degraded_reasons,omitempty"`

	// StepTimings durate per step in millisecondi
	StepTimings map[string]int64 `json:"step_timings_ms"`

	FailedStep string              `json:"failed_step,omitempty"`
	Failures   []providers.Failure `json:"failures,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	// Cached true quando il referto proviene dalla cache
	Cached bool `json:"cached,omitempty"`
}

// buildReport congela il contesto in un referto
func buildReport(c *CaseContext) *Report {
	status := "completed"
	if c.State == StateError {
		status = "failed"
	}

	timings := make(map[string]int64, len(c.StepTimings))
	for state, d := range c.StepTimings {
		timings[string(state)] = d.Milliseconds()
	}

	report := &Report{
		RunID:             c.RunID,
		Status:            status,
		Case:              c.Case,
		Findings:          c.Findings,
		Passages:          c.Passages,
		Candidates:        c.Candidates,
		VisionProvider:    c.VisionProvider,
		DiagnosisProvider: c.DiagnosisProvider,
		Degraded:          c.Degraded,
		DegradedReasons:   c.DegradedReasons,
		StepTimings:       timings,
		Failures:          c.Failures,
		CreatedAt:         time.Now().UTC(),
	}
	if c.State == StateError {
		report.FailedStep = string(c.FailedStep)
	}
	return report
}
