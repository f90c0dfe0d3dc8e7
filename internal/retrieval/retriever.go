package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/biodoia/vettriage/internal/websearch"
	"github.com/biodoia/vettriage/pkg/embeddings"
	"github.com/biodoia/vettriage/pkg/models"
)

var (
	// ErrRetrievalFailed segnala che entrambe le fonti di conoscenza hanno fallito
	ErrRetrievalFailed = errors.New("all retrieval sources failed")
)

// Config configurazione del sottosistema di retrieval
type Config struct {
	MaxResults int
	// WebBaselineScore punteggio base assegnato ai risultati web
	// prima dell'euristica di sovrapposizione col titolo
	WebBaselineScore float64
	WebSearchTimeout time.Duration
}

// DefaultConfig restituisce una configurazione di default
func DefaultConfig() Config {
	return Config{
		MaxResults:       5,
		WebBaselineScore: 0.30,
		WebSearchTimeout: 20 * time.Second,
	}
}

// ResultSet è l'esito di una ricerca di conoscenza su più fonti
type ResultSet struct {
	Passages []models.KnowledgePassage
	// Degraded indica che almeno una fonte non ha risposto
	Degraded bool
	// FailedSources nomi delle fonti che hanno fallito
	FailedSources []string
}

// Retriever interroga in parallelo il vector store locale e la ricerca web,
// unendo i risultati in una lista unica deduplicata e ordinata
type Retriever struct {
	store    embeddings.Store
	embedder embeddings.Embedder
	searcher websearch.Searcher
	cfg      Config
}

// NewRetriever crea un nuovo retriever. Sia store che searcher possono
// essere nil: la fonte corrispondente viene considerata fallita.
func NewRetriever(store embeddings.Store, embedder embeddings.Embedder, searcher websearch.Searcher, cfg Config) *Retriever {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultConfig().MaxResults
	}
	if cfg.WebBaselineScore <= 0 {
		cfg.WebBaselineScore = DefaultConfig().WebBaselineScore
	}
	if cfg.WebSearchTimeout <= 0 {
		cfg.WebSearchTimeout = DefaultConfig().WebSearchTimeout
	}

	return &Retriever{
		store:    store,
		embedder: embedder,
		searcher: searcher,
		cfg:      cfg,
	}
}

// Retrieve esegue la ricerca su entrambe le fonti in parallelo.
// maxResults <= 0 usa il limite configurato. Restituisce ErrRetrievalFailed
// solo quando nessuna fonte produce risultati validi; il fallimento di una
// singola fonte marca il risultato come degradato.
func (r *Retriever) Retrieve(ctx context.Context, query string, maxResults int) (*ResultSet, error) {
	start := time.Now()

	limit := maxResults
	if limit <= 0 {
		limit = r.cfg.MaxResults
	}

	var (
		localPassages []models.KnowledgePassage
		webPassages   []models.KnowledgePassage
		localErr      error
		webErr        error
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		localPassages, localErr = r.searchLocal(gctx, query, limit)
		return nil
	})

	g.Go(func() error {
		webCtx, cancel := context.WithTimeout(gctx, r.cfg.WebSearchTimeout)
		defer cancel()
		webPassages, webErr = r.searchWeb(webCtx, query, limit)
		return nil
	})

	g.Wait()

	result := &ResultSet{}
	if localErr != nil {
		log.Warn().Err(localErr).Msg("Local store retrieval failed")
		result.Degraded = true
		result.FailedSources = append(result.FailedSources, string(models.OriginLocalStore))
	}
	if webErr != nil {
		log.Warn().Err(webErr).Msg("Web search retrieval failed")
		result.Degraded = true
		result.FailedSources = append(result.FailedSources, string(models.OriginWebSearch))
	}

	if localErr != nil && webErr != nil {
		return nil, fmt.Errorf("%w: local=%v, web=%v", ErrRetrievalFailed, localErr, webErr)
	}

	merged := append(localPassages, webPassages...)
	merged = dedupe(merged)
	rank(merged)

	if len(merged) > limit {
		merged = merged[:limit]
	}
	result.Passages = merged

	log.Info().
		Int("local", len(localPassages)).
		Int("web", len(webPassages)).
		Int("merged", len(result.Passages)).
		Bool("degraded", result.Degraded).
		Dur("duration", time.Since(start)).
		Msg("Knowledge retrieval completed")

	return result, nil
}

// searchLocal interroga il vector store tramite embedding della query
func (r *Retriever) searchLocal(ctx context.Context, query string, limit int) ([]models.KnowledgePassage, error) {
	if r.store == nil || r.embedder == nil {
		return nil, errors.New("local store not configured")
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query embedding failed: %w", err)
	}

	scored, err := r.store.Search(ctx, vector, limit)
	if err != nil {
		return nil, err
	}

	passages := make([]models.KnowledgePassage, 0, len(scored))
	for _, s := range scored {
		passages = append(passages, models.KnowledgePassage{
			Text:   s.Entry.Text,
			Source: s.Entry.Source,
			Origin: models.OriginLocalStore,
			Score:  s.Similarity,
		})
	}
	return passages, nil
}

// searchWeb interroga il motore di ricerca e converte i risultati in passaggi.
// Ai risultati web viene assegnato il punteggio base più il bonus di
// sovrapposizione col titolo, così da non sovrastare i match locali forti.
func (r *Retriever) searchWeb(ctx context.Context, query string, limit int) ([]models.KnowledgePassage, error) {
	if r.searcher == nil {
		return nil, errors.New("web search not configured")
	}

	results, err := r.searcher.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	passages := make([]models.KnowledgePassage, 0, len(results))
	for _, res := range results {
		text := res.Snippet
		if text == "" {
			text = res.Title
		}
		passages = append(passages, models.KnowledgePassage{
			Text:   text,
			Source: res.URL,
			Origin: models.OriginWebSearch,
			Score:  r.cfg.WebBaselineScore + res.Score*(1-r.cfg.WebBaselineScore),
		})
	}
	return passages, nil
}

// normalizeText produce la firma testuale usata per la deduplicazione:
// lowercase con whitespace collassato
func normalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// dedupe rimuove i passaggi con testo equivalente, tenendo per ciascun
// gruppo quello col punteggio più alto e preservando l'ordine di inserimento
func dedupe(passages []models.KnowledgePassage) []models.KnowledgePassage {
	type slot struct {
		index   int
		passage models.KnowledgePassage
	}

	seen := make(map[string]*slot, len(passages))
	order := make([]string, 0, len(passages))

	for i, p := range passages {
		key := normalizeText(p.Text)
		if key == "" {
			continue
		}
		if existing, ok := seen[key]; ok {
			if p.Score > existing.passage.Score {
				existing.passage = p
			}
			continue
		}
		seen[key] = &slot{index: i, passage: p}
		order = append(order, key)
	}

	out := make([]models.KnowledgePassage, 0, len(order))
	for _, key := range order {
		out = append(out, seen[key].passage)
	}
	return out
}

// rank ordina i passaggi: punteggio decrescente, poi fonte locale prima
// della web, poi ordine di inserimento
func rank(passages []models.KnowledgePassage) {
	sort.SliceStable(passages, func(i, j int) bool {
		if passages[i].Score != passages[j].Score {
			return passages[i].Score > passages[j].Score
		}
		if passages[i].Origin != passages[j].Origin {
			return passages[i].Origin == models.OriginLocalStore
		}
		return false
	})
}
