package providers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/biodoia/vettriage/pkg/models"
)

// I modelli vengono istruiti a rispondere con un array JSON; in pratica la
// risposta arriva spesso avvolta in code fence o preceduta da testo libero.
// extractJSONArray isola la prima porzione che sembra un array JSON.
func extractJSONArray(raw string) (string, bool) {
	s := strings.TrimSpace(raw)

	if idx := strings.Index(s, "```json"); idx >= 0 {
		s = s[idx+len("```json"):]
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	} else if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	}

	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// ParseFindings interpreta l'output di un vision provider come lista di Finding.
// Una risposta senza almeno un finding valido è un fallimento del provider.
func ParseFindings(raw string) ([]models.Finding, error) {
	payload, ok := extractJSONArray(raw)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON array in output", ErrMalformedResponse)
	}

	var wire []struct {
		Label       string  `json:"label"`
		Description string  `json:"description"`
		Confidence  float64 `json:"confidence"`
		Region      string  `json:"region"`
	}
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	findings := make([]models.Finding, 0, len(wire))
	for _, f := range wire {
		if strings.TrimSpace(f.Label) == "" {
			continue
		}
		findings = append(findings, models.Finding{
			Label:       strings.TrimSpace(f.Label),
			Description: strings.TrimSpace(f.Description),
			Confidence:  clampConfidence(f.Confidence),
			Region:      strings.TrimSpace(f.Region),
		})
	}

	if len(findings) == 0 {
		return nil, fmt.Errorf("%w: no usable findings", ErrEmptyResponse)
	}
	return findings, nil
}

// ParseDiagnosisCandidates interpreta l'output di un text provider come
// diagnosi differenziale. Output non interpretabile = fallimento del provider,
// mai un successo con lista vuota.
func ParseDiagnosisCandidates(raw string) ([]models.DiagnosisCandidate, error) {
	payload, ok := extractJSONArray(raw)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON array in output", ErrMalformedResponse)
	}

	var wire []struct {
		Condition  string   `json:"condition"`
		Rationale  string   `json:"rationale"`
		Confidence float64  `json:"confidence"`
		Passages   []string `json:"passages"`
	}
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	candidates := make([]models.DiagnosisCandidate, 0, len(wire))
	for _, c := range wire {
		if strings.TrimSpace(c.Condition) == "" {
			continue
		}
		candidates = append(candidates, models.DiagnosisCandidate{
			Condition:  strings.TrimSpace(c.Condition),
			Rationale:  strings.TrimSpace(c.Rationale),
			Confidence: clampConfidence(c.Confidence),
			Passages:   c.Passages,
		})
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no usable diagnosis candidates", ErrEmptyResponse)
	}
	return candidates, nil
}
