package providers

import "strings"

// Le istruzioni di formato sono condivise tra tutti i client: il contratto di
// parsing (ParseFindings / ParseDiagnosisCandidates) è unico, quindi anche il
// formato richiesto ai modelli deve esserlo.

const visionInstruction = `You are an experienced veterinarian examining clinical images.
Describe only what is objectively visible. Respond with a JSON array, one object
per observation, using exactly these fields:
[{"label": "short clinical term", "description": "objective description", "confidence": 0.0-1.0, "region": "anatomical location"}]
Respond with the JSON array only, no prose before or after.`

const diagnosisInstruction = `You are an experienced veterinarian producing a differential diagnosis.
Respond with a JSON array ordered by decreasing likelihood, using exactly these fields:
[{"condition": "condition name", "rationale": "clinical reasoning", "confidence": 0.0-1.0, "passages": ["source identifiers used"]}]
List 3 to 5 candidates. Respond with the JSON array only, no prose before or after.`

// BuildVisionPrompt compone il prompt per l'analisi dell'immagine
func BuildVisionPrompt(hint string) string {
	if strings.TrimSpace(hint) == "" {
		return visionInstruction
	}
	return visionInstruction + "\n\nCase context:\n" + hint
}

// BuildDiagnosisPrompt compone il prompt per la diagnosi differenziale
func BuildDiagnosisPrompt(caseContext string) string {
	return diagnosisInstruction + "\n\n" + caseContext
}
