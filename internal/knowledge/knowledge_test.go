package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/biodoia/vettriage/pkg/embeddings"
)

func TestChunkText(t *testing.T) {
	t.Run("short text is a single chunk", func(t *testing.T) {
		chunks := ChunkText("a short veterinary note", 1000, 200)
		if len(chunks) != 1 {
			t.Fatalf("Expected 1 chunk, got %d", len(chunks))
		}
	})

	t.Run("empty text yields no chunks", func(t *testing.T) {
		if chunks := ChunkText("   \n  ", 1000, 200); len(chunks) != 0 {
			t.Errorf("Expected no chunks, got %d", len(chunks))
		}
	})

	t.Run("long text is split with overlap", func(t *testing.T) {
		text := strings.Repeat("otitis externa canine diagnosis ", 200)
		chunks := ChunkText(text, 1000, 200)

		if len(chunks) < 2 {
			t.Fatalf("Expected multiple chunks, got %d", len(chunks))
		}
		for i, c := range chunks {
			if len(c) > 1000 {
				t.Errorf("Chunk %d exceeds size limit: %d", i, len(c))
			}
		}
		// Overlapping windows must share text
		if !strings.Contains(chunks[1], lastWords(chunks[0], 3)) {
			t.Error("Consecutive chunks should overlap")
		}
	})

	t.Run("multibyte text without spaces keeps runes whole", func(t *testing.T) {
		text := strings.Repeat("èéòàùì", 100)
		chunks := ChunkText(text, 101, 20)

		if len(chunks) < 2 {
			t.Fatalf("Expected multiple chunks, got %d", len(chunks))
		}
		for i, c := range chunks {
			if !utf8.ValidString(c) {
				t.Errorf("Chunk %d splits a UTF-8 sequence: %q", i, c)
			}
		}
	})
}

func lastWords(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) < n {
		return s
	}
	return strings.Join(fields[len(fields)-n:], " ")
}

func TestVectorRoundTrip(t *testing.T) {
	v := []float32{0.25, -1.5, 3.125}
	decoded := DecodeVector(EncodeVector(v))

	if len(decoded) != len(v) {
		t.Fatalf("Length mismatch: %d vs %d", len(decoded), len(v))
	}
	for i := range v {
		if decoded[i] != v[i] {
			t.Errorf("Component %d: got %f, want %f", i, decoded[i], v[i])
		}
	}
}

// countingEmbedder vettori fissi con conteggio chiamate
type countingEmbedder struct {
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return []float32{1, 0, 0}, nil
}

func (c *countingEmbedder) ModelName() string { return "counting" }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "knowledge.db"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestIngester_IngestDir(t *testing.T) {
	docsDir := t.TempDir()
	docPath := filepath.Join(docsDir, "otitis.md")
	content := "# Otitis Externa\n\nInflammation of the external ear canal in dogs and cats."
	if err := os.WriteFile(docPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	// File with unsupported extension is skipped
	if err := os.WriteFile(filepath.Join(docsDir, "image.png"), []byte{0x89}, 0644); err != nil {
		t.Fatal(err)
	}

	store := newTestStore(t)
	embedder := &countingEmbedder{}
	ingester := NewIngester(store, embedder, 1000, 200)
	ctx := context.Background()

	ingested, err := ingester.IngestDir(ctx, docsDir)
	if err != nil {
		t.Fatalf("IngestDir failed: %v", err)
	}
	if ingested != 1 {
		t.Errorf("Expected 1 ingested document, got %d", ingested)
	}

	// Second pass: unchanged document is skipped
	ingested, err = ingester.IngestDir(ctx, docsDir)
	if err != nil {
		t.Fatalf("Second IngestDir failed: %v", err)
	}
	if ingested != 0 {
		t.Errorf("Expected 0 re-ingested documents, got %d", ingested)
	}

	count, err := store.CountDocuments()
	if err != nil {
		t.Fatalf("CountDocuments failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 document in store, got %d", count)
	}
}

func TestIngester_ReingestOnChange(t *testing.T) {
	docsDir := t.TempDir()
	docPath := filepath.Join(docsDir, "note.txt")
	if err := os.WriteFile(docPath, []byte("original content"), 0644); err != nil {
		t.Fatal(err)
	}

	store := newTestStore(t)
	ingester := NewIngester(store, &countingEmbedder{}, 1000, 200)
	ctx := context.Background()

	if _, err := ingester.IngestFile(ctx, docPath); err != nil {
		t.Fatalf("IngestFile failed: %v", err)
	}

	if err := os.WriteFile(docPath, []byte("updated content"), 0644); err != nil {
		t.Fatal(err)
	}

	changed, err := ingester.IngestFile(ctx, docPath)
	if err != nil {
		t.Fatalf("Re-ingest failed: %v", err)
	}
	if !changed {
		t.Error("Changed document must be re-ingested")
	}

	count, _ := store.CountDocuments()
	if count != 1 {
		t.Errorf("Expected 1 document after re-ingest, got %d", count)
	}
}

func TestLoadIntoVectorStore(t *testing.T) {
	docsDir := t.TempDir()
	content := "# Dermatitis\n\nAtopic dermatitis is a chronic allergic skin disease of dogs."
	if err := os.WriteFile(filepath.Join(docsDir, "derm.md"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	store := newTestStore(t)
	ingester := NewIngester(store, &countingEmbedder{}, 1000, 200)
	ctx := context.Background()

	if _, err := ingester.IngestDir(ctx, docsDir); err != nil {
		t.Fatalf("IngestDir failed: %v", err)
	}

	vec := embeddings.NewInMemoryStore()
	loaded, err := LoadIntoVectorStore(ctx, store, vec)
	if err != nil {
		t.Fatalf("LoadIntoVectorStore failed: %v", err)
	}
	if loaded == 0 || vec.Size() != loaded {
		t.Errorf("Expected vector store populated, loaded=%d size=%d", loaded, vec.Size())
	}

	results, err := vec.Search(ctx, []float32{1, 0, 0}, 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Entry.Source != "Dermatitis" {
		t.Errorf("Expected passage sourced from document title, got %+v", results)
	}
}

func TestDocumentTitle(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		content string
		want    string
	}{
		{"markdown heading", "/docs/a.md", "# Feline Asthma\ntext", "Feline Asthma"},
		{"no heading falls back to filename", "/docs/renal-disease.txt", "plain text", "renal-disease"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := documentTitle(tt.path, tt.content); got != tt.want {
				t.Errorf("documentTitle = %q, want %q", got, tt.want)
			}
		})
	}
}
