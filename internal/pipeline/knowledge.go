package pipeline

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/biodoia/vettriage/internal/retrieval"
	"github.com/biodoia/vettriage/pkg/models"
)

// KnowledgeStep recupera i passaggi di letteratura rilevanti per il caso.
// Non è mai fatale: in caso di fallimento la run prosegue degradata
// con zero passaggi.
type KnowledgeStep struct {
	retriever    *retrieval.Retriever
	queryBuilder *QueryBuilder
}

// NewKnowledgeStep crea il knowledge step
func NewKnowledgeStep(retriever *retrieval.Retriever) *KnowledgeStep {
	return &KnowledgeStep{
		retriever:    retriever,
		queryBuilder: NewQueryBuilder(),
	}
}

// Run costruisce la query dal caso e dalle osservazioni, poi interroga
// il sottosistema di retrieval. Restituisce i passaggi e le fonti fallite.
func (s *KnowledgeStep) Run(ctx context.Context, caseInfo models.CaseInfo, findings []models.Finding) ([]models.KnowledgePassage, []string) {
	query := s.queryBuilder.Build(caseInfo, findings)
	if query == "" {
		log.Warn().Msg("Empty retrieval query, skipping knowledge step")
		return nil, []string{"empty-query"}
	}

	maxResults := maxResultsFor(caseInfo.Urgency)

	log.Debug().
		Str("query", query).
		Int("max_results", maxResults).
		Msg("Knowledge retrieval query built")

	result, err := s.retriever.Retrieve(ctx, query, maxResults)
	if err != nil {
		log.Warn().Err(err).Msg("Knowledge retrieval failed, continuing without passages")
		return nil, []string{
			string(models.OriginLocalStore),
			string(models.OriginWebSearch),
		}
	}

	return result.Passages, result.FailedSources
}

// maxResultsFor adatta l'ampiezza del retrieval all'urgenza dichiarata:
// i casi urgenti privilegiano la velocità, quelli di routine l'ampiezza.
// Zero lascia decidere il limite configurato nel retriever.
func maxResultsFor(u models.Urgency) int {
	switch u {
	case models.UrgencyUrgent:
		return 3
	case models.UrgencyModerate:
		return 5
	case models.UrgencyRoutine:
		return 8
	default:
		return 0
	}
}
