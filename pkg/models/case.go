package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Urgency rappresenta il livello di urgenza dichiarato per un caso
type Urgency string

const (
	UrgencyRoutine  Urgency = "routine"
	UrgencyModerate Urgency = "moderate"
	UrgencyUrgent   Urgency = "urgent"
)

// Valid verifica se il livello di urgenza è riconosciuto
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyRoutine, UrgencyModerate, UrgencyUrgent:
		return true
	}
	return false
}

// CaseInfo contiene i dati anagrafici e anamnestici di un caso clinico
type CaseInfo struct {
	Species   string  `json:"species"`
	Breed     string  `json:"breed,omitempty"`
	Age       string  `json:"age,omitempty"`
	Weight    string  `json:"weight,omitempty"`
	Sex       string  `json:"sex,omitempty"`
	Neutered  bool    `json:"neutered,omitempty"`
	History   string  `json:"history,omitempty"`
	Complaint string  `json:"complaint,omitempty"`
	Urgency   Urgency `json:"urgency,omitempty"`
}

// Signature genera una chiave stabile per la cache dei referti.
// Casi identici (specie, sintomi, anamnesi) producono la stessa chiave.
func (c *CaseInfo) Signature() string {
	content := fmt.Sprintf("%s:%s:%s",
		strings.ToLower(strings.TrimSpace(c.Species)),
		strings.ToLower(strings.TrimSpace(c.Complaint)),
		strings.ToLower(strings.TrimSpace(c.History)),
	)
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}
