package embeddings

import (
	"context"
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0},
		{"dimension mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0.0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineSimilarity = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})

	var magnitude float64
	for _, x := range v {
		magnitude += float64(x) * float64(x)
	}
	if math.Abs(magnitude-1.0) > 1e-6 {
		t.Errorf("Normalized magnitude = %f, want 1.0", magnitude)
	}
}

func TestInMemoryStore_SearchOrder(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	store.Add(ctx, PassageEntry{ID: "far", Vector: []float32{0, 1}, Text: "far passage"})
	store.Add(ctx, PassageEntry{ID: "near", Vector: []float32{1, 0.1}, Text: "near passage"})
	store.Add(ctx, PassageEntry{ID: "exact", Vector: []float32{1, 0}, Text: "exact passage"})

	results, err := store.Search(ctx, []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].Entry.ID != "exact" || results[1].Entry.ID != "near" {
		t.Errorf("Unexpected order: %s, %s", results[0].Entry.ID, results[1].Entry.ID)
	}
	if results[0].Similarity < results[1].Similarity {
		t.Error("Results must be ordered by descending similarity")
	}
}

func TestInMemoryStore_AddReplacesByID(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	store.Add(ctx, PassageEntry{ID: "p1", Vector: []float32{1, 0}, Text: "old"})
	store.Add(ctx, PassageEntry{ID: "p1", Vector: []float32{0, 1}, Text: "new"})

	if store.Size() != 1 {
		t.Errorf("Expected size 1 after replace, got %d", store.Size())
	}

	results, _ := store.Search(ctx, []float32{0, 1}, 1)
	if results[0].Entry.Text != "new" {
		t.Errorf("Expected replaced text, got %q", results[0].Entry.Text)
	}
}

func TestInMemoryStore_EmptySearch(t *testing.T) {
	store := NewInMemoryStore()

	results, err := store.Search(context.Background(), []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected no results, got %d", len(results))
	}
}

// fixedEmbedder restituisce sempre lo stesso vettore, contando le chiamate
type fixedEmbedder struct {
	calls int
}

func (f *fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return []float32{1, 0}, nil
}

func (f *fixedEmbedder) ModelName() string { return "fixed" }

func TestCachedEmbedder(t *testing.T) {
	inner := &fixedEmbedder{}
	cached := NewCachedEmbedder(inner)
	ctx := context.Background()

	cached.Embed(ctx, "same text")
	cached.Embed(ctx, "same text")
	cached.Embed(ctx, "other text")

	if inner.calls != 2 {
		t.Errorf("Expected 2 underlying calls, got %d", inner.calls)
	}
}
