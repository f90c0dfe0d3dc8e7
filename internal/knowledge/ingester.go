package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/biodoia/vettriage/pkg/embeddings"
)

// Ingester indicizza documenti veterinari: chunking, embedding e
// persistenza su SQLite, con caricamento nel vector store in-memory
type Ingester struct {
	store        *Store
	embedder     embeddings.Embedder
	chunkSize    int
	chunkOverlap int
}

// NewIngester crea un nuovo ingester
func NewIngester(store *Store, embedder embeddings.Embedder, chunkSize, chunkOverlap int) *Ingester {
	return &Ingester{
		store:        store,
		embedder:     embedder,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// IngestDir ingerisce tutti i file .txt e .md sotto la directory data.
// I documenti invariati (stesso checksum) vengono saltati.
func (in *Ingester) IngestDir(ctx context.Context, dir string) (int, error) {
	var ingested int

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".txt" && ext != ".md" {
			return nil
		}

		changed, err := in.IngestFile(ctx, path)
		if err != nil {
			return fmt.Errorf("failed to ingest %s: %w", path, err)
		}
		if changed {
			ingested++
		}
		return nil
	})
	if err != nil {
		return ingested, err
	}

	log.Info().
		Int("documents", ingested).
		Str("dir", dir).
		Msg("Knowledge ingestion completed")

	return ingested, nil
}

// IngestFile ingerisce un singolo documento. Restituisce false se il
// documento è già indicizzato e invariato.
func (in *Ingester) IngestFile(ctx context.Context, path string) (bool, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}

	sum := sha256.Sum256(content)
	checksum := hex.EncodeToString(sum[:])

	existing, err := in.store.FindByChecksum(path, checksum)
	if err != nil {
		return false, err
	}
	if existing != nil {
		log.Debug().Str("path", path).Msg("Document unchanged, skipping")
		return false, nil
	}

	pieces := ChunkText(string(content), in.chunkSize, in.chunkOverlap)

	doc := &Document{
		Path:     path,
		Title:    documentTitle(path, string(content)),
		Checksum: checksum,
		Chunks:   make([]Chunk, 0, len(pieces)),
	}

	for i, piece := range pieces {
		vector, err := in.embedder.Embed(ctx, piece)
		if err != nil {
			return false, fmt.Errorf("embedding chunk %d of %s: %w", i, path, err)
		}
		doc.Chunks = append(doc.Chunks, Chunk{
			Ordinal:   i,
			Text:      piece,
			Embedding: EncodeVector(vector),
		})
	}

	if err := in.store.SaveDocument(doc); err != nil {
		return false, err
	}

	log.Info().
		Str("path", path).
		Int("chunks", len(doc.Chunks)).
		Msg("Document ingested")

	return true, nil
}

// LoadIntoVectorStore carica tutti i chunk persistiti nel vector store
func LoadIntoVectorStore(ctx context.Context, store *Store, vec embeddings.Store) (int, error) {
	chunks, err := store.AllChunks()
	if err != nil {
		return 0, err
	}

	titles := make(map[uint]string)
	loaded := 0
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			continue
		}

		title, ok := titles[c.DocumentID]
		if !ok {
			title, err = store.DocumentTitle(c.DocumentID)
			if err != nil {
				title = fmt.Sprintf("document-%d", c.DocumentID)
			}
			titles[c.DocumentID] = title
		}

		entry := embeddings.PassageEntry{
			ID:     fmt.Sprintf("%d:%d", c.DocumentID, c.Ordinal),
			Vector: DecodeVector(c.Embedding),
			Text:   c.Text,
			Source: title,
		}
		if err := vec.Add(ctx, entry); err != nil {
			return loaded, err
		}
		loaded++
	}

	log.Info().Int("chunks", loaded).Msg("Vector store loaded from knowledge base")
	return loaded, nil
}

// documentTitle deriva il titolo dal primo heading markdown o dal nome file
func documentTitle(path, content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
		if line != "" {
			break
		}
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
