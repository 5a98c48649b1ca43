package vectordb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/ziadkadry99/paper2code/internal/embeddings"
)

const (
	collectionName = "knowledge"
	snapshotFile   = "chromem.gob.gz"
	embedWorkers   = 4
)

// ChromemStore implements VectorStore using chromem-go.
type ChromemStore struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection
	embedFunc  chromem.EmbeddingFunc
}

// NewChromemStore creates a new in-memory ChromemStore.
func NewChromemStore(embedder embeddings.Embedder) (*ChromemStore, error) {
	db := chromem.NewDB()
	ef := embeddings.ToChromemFunc(embedder)

	col, err := db.GetOrCreateCollection(collectionName, nil, ef)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &ChromemStore{
		db:         db,
		collection: col,
		embedFunc:  ef,
	}, nil
}

func (s *ChromemStore) col() *chromem.Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collection
}

func (s *ChromemStore) AddDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	chromDocs := make([]chromem.Document, 0, len(docs))
	for _, doc := range docs {
		if strings.TrimSpace(doc.Content) == "" {
			continue
		}
		chromDocs = append(chromDocs, chromem.Document{
			ID:       doc.ID,
			Content:  doc.Content,
			Metadata: metadataToMap(doc.Metadata),
		})
	}
	if len(chromDocs) == 0 {
		return nil
	}

	return s.col().AddDocuments(ctx, chromDocs, embedWorkers)
}

func (s *ChromemStore) Search(ctx context.Context, query string, limit int, filter *SearchFilter) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	col := s.col()
	// chromem-go requires nResults <= collection size.
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}

	results, err := col.Query(ctx, query, limit, buildWhereClause(filter), nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	searchResults := make([]SearchResult, len(results))
	for i, r := range results {
		searchResults[i] = SearchResult{
			Document: Document{
				ID:       r.ID,
				Content:  r.Content,
				Metadata: mapToMetadata(r.Metadata),
			},
			Similarity: r.Similarity,
		}
	}
	return searchResults, nil
}

func (s *ChromemStore) GetBySource(ctx context.Context, sourcePath string) ([]Document, error) {
	col := s.col()
	count := col.Count()
	if count == 0 {
		return nil, nil
	}

	results, err := col.Query(ctx, sourcePath, count, map[string]string{"source_path": sourcePath}, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query by source: %w", err)
	}

	docs := make([]Document, len(results))
	for i, r := range results {
		docs[i] = Document{ID: r.ID, Content: r.Content, Metadata: mapToMetadata(r.Metadata)}
	}
	return docs, nil
}

func (s *ChromemStore) DeleteBySource(ctx context.Context, sourcePath string) error {
	return s.col().Delete(ctx, map[string]string{"source_path": sourcePath}, nil)
}

func (s *ChromemStore) Persist(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating vector dir: %w", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.ExportToFile(filepath.Join(dir, snapshotFile), true, "")
}

func (s *ChromemStore) Load(ctx context.Context, dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.ImportFromFile(filepath.Join(dir, snapshotFile), ""); err != nil {
		return fmt.Errorf("import from file: %w", err)
	}

	// Re-acquire collection reference after import.
	col := s.db.GetCollection(collectionName, s.embedFunc)
	if col == nil {
		return fmt.Errorf("collection %q not found after import", collectionName)
	}
	s.collection = col
	return nil
}

func (s *ChromemStore) Count() int {
	return s.col().Count()
}

const authorSep = "; "

// metadataToMap flattens DocumentMetadata for chromem, which only stores strings.
func metadataToMap(m DocumentMetadata) map[string]string {
	indexed := m.IndexedAt
	if indexed.IsZero() {
		indexed = time.Now().UTC()
	}
	return map[string]string{
		"title":        m.Title,
		"authors":      strings.Join(m.Authors, authorSep),
		"source_type":  string(m.SourceType),
		"source_path":  m.SourcePath,
		"session_id":   m.SessionID,
		"content_type": m.ContentType,
		"content_hash": m.ContentHash,
		"indexed_at":   indexed.Format(time.RFC3339),
	}
}

func mapToMetadata(m map[string]string) DocumentMetadata {
	indexed, _ := time.Parse(time.RFC3339, m["indexed_at"])
	var authors []string
	if a := m["authors"]; a != "" {
		authors = strings.Split(a, authorSep)
	}
	return DocumentMetadata{
		Title:       m["title"],
		Authors:     authors,
		SourceType:  SourceType(m["source_type"]),
		SourcePath:  m["source_path"],
		SessionID:   m["session_id"],
		ContentType: m["content_type"],
		ContentHash: m["content_hash"],
		IndexedAt:   indexed,
	}
}

func buildWhereClause(filter *SearchFilter) map[string]string {
	if filter == nil {
		return nil
	}

	where := make(map[string]string)
	if filter.SourceType != nil {
		where["source_type"] = string(*filter.SourceType)
	}
	if filter.SessionID != nil {
		where["session_id"] = *filter.SessionID
	}
	if filter.ContentType != nil {
		where["content_type"] = *filter.ContentType
	}

	if len(where) == 0 {
		return nil
	}
	return where
}
