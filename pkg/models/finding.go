package models

// Finding rappresenta un'osservazione clinica strutturata estratta da un'immagine.
// Prodotta esclusivamente dal vision step; immutabile una volta registrata.
type Finding struct {
	Label       string  `json:"label"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"` // in [0,1]
	Region      string  `json:"region,omitempty"`
}

// PassageOrigin indica la fonte di un passaggio di conoscenza
type PassageOrigin string

const (
	OriginLocalStore PassageOrigin = "local-store"
	OriginWebSearch  PassageOrigin = "web-search"
)

// KnowledgePassage rappresenta un passaggio di letteratura o web rilevante per il caso
type KnowledgePassage struct {
	Text   string        `json:"text"`
	Source string        `json:"source"`
	Origin PassageOrigin `json:"origin"`
	Score  float64       `json:"score"`
}

// DiagnosisCandidate rappresenta una voce della diagnosi differenziale.
// Ordinata per confidenza decrescente nel referto finale.
type DiagnosisCandidate struct {
	Condition  string   `json:"condition"`
	Rationale  string   `json:"rationale"`
	Confidence float64  `json:"confidence"` // in [0,1]
	Passages   []string `json:"passages,omitempty"` // riferimenti alle fonti di supporto
}
