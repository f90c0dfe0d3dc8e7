package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/biodoia/vettriage/internal/websearch"
	"github.com/biodoia/vettriage/pkg/embeddings"
	"github.com/biodoia/vettriage/pkg/models"
)

// stubEmbedder restituisce sempre lo stesso vettore
type stubEmbedder struct {
	err error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []float32{1, 0}, nil
}

func (s *stubEmbedder) ModelName() string { return "stub" }

// stubSearcher risponde con risultati fissi o con un errore
type stubSearcher struct {
	results []websearch.Result
	err     error
}

func (s *stubSearcher) Search(ctx context.Context, query string, maxResults int) ([]websearch.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.results) > maxResults {
		return s.results[:maxResults], nil
	}
	return s.results, nil
}

func populatedStore(t *testing.T) embeddings.Store {
	t.Helper()
	store := embeddings.NewInMemoryStore()
	ctx := context.Background()

	entries := []embeddings.PassageEntry{
		{ID: "p1", Vector: []float32{1, 0}, Text: "Otitis externa presents with head shaking", Source: "merck-manual.md"},
		{ID: "p2", Vector: []float32{0.9, 0.1}, Text: "Ear mites cause dark waxy discharge", Source: "merck-manual.md"},
		{ID: "p3", Vector: []float32{0, 1}, Text: "Feline asthma is a lower airway disease", Source: "respiratory.md"},
	}
	for _, e := range entries {
		if err := store.Add(ctx, e); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	return store
}

func TestRetriever_MergesBothSources(t *testing.T) {
	searcher := &stubSearcher{results: []websearch.Result{
		{Title: "Canine ear infections", URL: "https://example.com/ear", Snippet: "Ear infections are common in dogs", Score: 0.5},
	}}

	r := NewRetriever(populatedStore(t), &stubEmbedder{}, searcher, DefaultConfig())

	result, err := r.Retrieve(context.Background(), "dog shaking head", 0)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}

	if result.Degraded {
		t.Error("Result should not be degraded when both sources succeed")
	}

	var localCount, webCount int
	for _, p := range result.Passages {
		switch p.Origin {
		case models.OriginLocalStore:
			localCount++
		case models.OriginWebSearch:
			webCount++
		}
	}
	if localCount == 0 || webCount == 0 {
		t.Errorf("Expected passages from both origins, got local=%d web=%d", localCount, webCount)
	}
}

func TestRetriever_OrderedByScoreDescending(t *testing.T) {
	searcher := &stubSearcher{results: []websearch.Result{
		{Title: "web hit", URL: "https://example.com", Snippet: "a web passage", Score: 0},
	}}

	r := NewRetriever(populatedStore(t), &stubEmbedder{}, searcher, DefaultConfig())

	result, err := r.Retrieve(context.Background(), "query", 0)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}

	for i := 1; i < len(result.Passages); i++ {
		if result.Passages[i].Score > result.Passages[i-1].Score {
			t.Errorf("Passages not ordered by descending score at index %d", i)
		}
	}
}

func TestRetriever_DegradedWhenWebFails(t *testing.T) {
	searcher := &stubSearcher{err: websearch.ErrSearchFailed}

	r := NewRetriever(populatedStore(t), &stubEmbedder{}, searcher, DefaultConfig())

	result, err := r.Retrieve(context.Background(), "query", 0)
	if err != nil {
		t.Fatalf("Retrieve must succeed with one healthy source: %v", err)
	}

	if !result.Degraded {
		t.Error("Result should be degraded when web search fails")
	}
	if len(result.FailedSources) != 1 || result.FailedSources[0] != string(models.OriginWebSearch) {
		t.Errorf("Unexpected failed sources: %v", result.FailedSources)
	}
	if len(result.Passages) == 0 {
		t.Error("Local passages should still be returned")
	}
	for _, p := range result.Passages {
		if p.Origin != models.OriginLocalStore {
			t.Errorf("Unexpected origin %s with web source down", p.Origin)
		}
	}
}

func TestRetriever_DegradedWhenLocalFails(t *testing.T) {
	searcher := &stubSearcher{results: []websearch.Result{
		{Title: "web hit", URL: "https://example.com", Snippet: "a web passage", Score: 0.4},
	}}

	r := NewRetriever(populatedStore(t), &stubEmbedder{err: errors.New("embedding service down")}, searcher, DefaultConfig())

	result, err := r.Retrieve(context.Background(), "query", 0)
	if err != nil {
		t.Fatalf("Retrieve must succeed with one healthy source: %v", err)
	}

	if !result.Degraded {
		t.Error("Result should be degraded when local store fails")
	}
	if len(result.Passages) != 1 || result.Passages[0].Origin != models.OriginWebSearch {
		t.Errorf("Expected only web passages, got %+v", result.Passages)
	}
}

func TestRetriever_FailsWhenBothSourcesFail(t *testing.T) {
	searcher := &stubSearcher{err: websearch.ErrSearchFailed}

	r := NewRetriever(populatedStore(t), &stubEmbedder{err: errors.New("down")}, searcher, DefaultConfig())

	_, err := r.Retrieve(context.Background(), "query", 0)
	if !errors.Is(err, ErrRetrievalFailed) {
		t.Errorf("Expected ErrRetrievalFailed, got %v", err)
	}
}

func TestRetriever_MaxResultsTruncation(t *testing.T) {
	searcher := &stubSearcher{results: []websearch.Result{
		{Title: "one", URL: "https://example.com/1", Snippet: "first web passage", Score: 0.1},
		{Title: "two", URL: "https://example.com/2", Snippet: "second web passage", Score: 0.2},
	}}

	cfg := DefaultConfig()
	cfg.MaxResults = 2

	r := NewRetriever(populatedStore(t), &stubEmbedder{}, searcher, cfg)

	result, err := r.Retrieve(context.Background(), "query", 0)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(result.Passages) != 2 {
		t.Errorf("Expected 2 passages, got %d", len(result.Passages))
	}
}

func TestRetriever_PerCallMaxResultsOverridesConfig(t *testing.T) {
	searcher := &stubSearcher{results: []websearch.Result{
		{Title: "one", URL: "https://example.com/1", Snippet: "first web passage", Score: 0.1},
		{Title: "two", URL: "https://example.com/2", Snippet: "second web passage", Score: 0.2},
	}}

	r := NewRetriever(populatedStore(t), &stubEmbedder{}, searcher, DefaultConfig())

	result, err := r.Retrieve(context.Background(), "query", 1)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(result.Passages) != 1 {
		t.Errorf("Expected 1 passage with per-call limit, got %d", len(result.Passages))
	}
}

func TestDedupe_CollapsesEquivalentText(t *testing.T) {
	passages := []models.KnowledgePassage{
		{Text: "Otitis externa presents with head shaking", Origin: models.OriginLocalStore, Score: 0.9},
		{Text: "  otitis   EXTERNA presents with head shaking ", Origin: models.OriginWebSearch, Score: 0.4},
		{Text: "A different passage", Origin: models.OriginWebSearch, Score: 0.3},
	}

	out := dedupe(passages)

	if len(out) != 2 {
		t.Fatalf("Expected 2 passages after dedupe, got %d", len(out))
	}
	if out[0].Score != 0.9 {
		t.Errorf("Dedupe must keep the higher-scored duplicate, got score %f", out[0].Score)
	}
	if out[0].Origin != models.OriginLocalStore {
		t.Errorf("Expected surviving duplicate from local store, got %s", out[0].Origin)
	}
}

func TestRank_TieBreaksLocalBeforeWeb(t *testing.T) {
	passages := []models.KnowledgePassage{
		{Text: "web", Origin: models.OriginWebSearch, Score: 0.5},
		{Text: "local", Origin: models.OriginLocalStore, Score: 0.5},
	}

	rank(passages)

	if passages[0].Origin != models.OriginLocalStore {
		t.Errorf("Local passage must rank before web on equal score, got %s first", passages[0].Origin)
	}
}
