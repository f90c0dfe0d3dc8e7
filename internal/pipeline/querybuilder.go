package pipeline

import (
	"strings"

	"github.com/biodoia/vettriage/pkg/models"
)

// medicalTerms mappa termini colloquiali del proprietario nella
// terminologia clinica usata dalla letteratura veterinaria
var medicalTerms = map[string]string{
	"itchy":      "pruritus",
	"itching":    "pruritus",
	"scratching": "pruritus",
	"limping":    "lameness",
	"limp":       "lameness",
	"throwing":   "emesis",
	"vomiting":   "emesis",
	"vomit":      "emesis",
	"diarrhea":   "diarrhea gastroenteritis",
	"coughing":   "cough respiratory",
	"sneezing":   "rhinitis",
	"hair":       "alopecia",
	"bald":       "alopecia",
	"swollen":    "edema swelling",
	"lump":       "mass neoplasia",
	"bump":       "mass",
	"tired":      "lethargy",
	"lethargic":  "lethargy",
	"drinking":   "polydipsia",
	"urinating":  "polyuria",
	"peeing":     "polyuria",
	"eating":     "appetite",
	"shaking":    "tremor pruritus",
	"red":        "erythema",
	"ear":        "otitis",
	"eye":        "ophthalmic conjunctivitis",
	"skin":       "dermatitis",
}

// QueryBuilder costruisce la query di retrieval a partire dal caso
// e dalle osservazioni del vision step
type QueryBuilder struct{}

// NewQueryBuilder crea un nuovo query builder
func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{}
}

// Build compone la query: specie, motivo della visita con espansione dei
// termini medici, etichette e descrizioni di tutte le osservazioni visive
func (b *QueryBuilder) Build(caseInfo models.CaseInfo, findings []models.Finding) string {
	var parts []string

	if caseInfo.Species != "" {
		parts = append(parts, strings.ToLower(caseInfo.Species))
	}
	if caseInfo.Breed != "" {
		parts = append(parts, strings.ToLower(caseInfo.Breed))
	}

	if caseInfo.Complaint != "" {
		parts = append(parts, expandTerms(caseInfo.Complaint)...)
	}

	for _, f := range findings {
		if f.Label != "" {
			parts = append(parts, strings.ToLower(f.Label))
		}
		if f.Description != "" {
			parts = append(parts, expandTerms(f.Description)...)
		}
	}

	parts = append(parts, focusTerms(caseInfo.Urgency)...)

	return strings.Join(dedupeTerms(parts), " ")
}

// focusTerms orienta la ricerca: i casi urgenti verso la letteratura
// d'emergenza, gli altri verso la diagnosi differenziale
func focusTerms(u models.Urgency) []string {
	if u == models.UrgencyUrgent {
		return []string{"emergency", "urgent", "critical"}
	}
	return []string{"differential", "diagnosis"}
}

// expandTerms sostituisce i termini colloquiali con quelli clinici,
// mantenendo il termine originale quando non mappato
func expandTerms(text string) []string {
	var out []string
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?\"'()")
		if word == "" {
			continue
		}
		if medical, ok := medicalTerms[word]; ok {
			out = append(out, strings.Fields(medical)...)
		} else {
			out = append(out, word)
		}
	}
	return out
}

// dedupeTerms rimuove i termini ripetuti preservando l'ordine
func dedupeTerms(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
