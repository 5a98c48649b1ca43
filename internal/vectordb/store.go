package vectordb

import "context"

// VectorStore stores knowledge-base passages and searches them by embedding.
type VectorStore interface {
	// AddDocuments adds or replaces documents by id.
	AddDocuments(ctx context.Context, docs []Document) error

	// Search returns up to limit documents ranked by similarity to query.
	Search(ctx context.Context, query string, limit int, filter *SearchFilter) ([]SearchResult, error)

	// GetBySource returns every document ingested from sourcePath.
	GetBySource(ctx context.Context, sourcePath string) ([]Document, error)

	// DeleteBySource removes every document ingested from sourcePath.
	DeleteBySource(ctx context.Context, sourcePath string) error

	// Persist saves the store's data to the given directory.
	Persist(ctx context.Context, dir string) error

	// Load restores the store's data from the given directory.
	Load(ctx context.Context, dir string) error

	// Count returns the total number of documents in the store.
	Count() int
}
