package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ziadkadry99/paper2code/internal/llm"
	"github.com/ziadkadry99/paper2code/internal/vectordb"
)

// Passage is one retrieved knowledge-base entry.
type Passage struct {
	ID         string                    `json:"id"`
	Content    string                    `json:"content"`
	Metadata   vectordb.DocumentMetadata `json:"metadata"`
	Similarity float32                   `json:"similarity"`
}

// Options tunes multi-query retrieval.
type Options struct {
	MaxQueries int // queries issued per retrieval, including the base query
	PerQuery   int // results requested per query when expanding
	Retry      llm.RetryPolicy
}

// Augmenter retrieves ranked passages from the knowledge base. It never
// mutates the store on the retrieval path.
type Augmenter struct {
	store vectordb.VectorStore
	opts  Options
}

// New creates an Augmenter over store.
func New(store vectordb.VectorStore, opts Options) *Augmenter {
	if opts.MaxQueries <= 0 {
		opts.MaxQueries = 3
	}
	if opts.PerQuery <= 0 {
		opts.PerQuery = 3
	}
	return &Augmenter{store: store, opts: opts}
}

// Store returns the underlying knowledge base.
func (a *Augmenter) Store() vectordb.VectorStore {
	return a.store
}

// Retrieve returns up to k passages ranked by similarity to query.
func (a *Augmenter) Retrieve(ctx context.Context, query string, k int) ([]Passage, error) {
	return a.RetrieveAll(ctx, []string{query}, k)
}

// RetrieveAll searches with the base query plus expansions (queries[1:]),
// issuing at most MaxQueries searches. Results are deduplicated by id, keeping
// the best score, and the top k are returned.
func (a *Augmenter) RetrieveAll(ctx context.Context, queries []string, k int) ([]Passage, error) {
	if k <= 0 {
		k = 5
	}
	queries = cleanQueries(queries, a.opts.MaxQueries)
	if len(queries) == 0 || a.store == nil {
		return []Passage{}, nil
	}

	perQuery := a.opts.PerQuery
	if len(queries) == 1 {
		perQuery = k
	}

	best := make(map[string]Passage)
	for _, q := range queries {
		results, err := llm.Retry(ctx, a.opts.Retry, "retrieval", func() ([]vectordb.SearchResult, error) {
			return a.store.Search(ctx, q, perQuery, nil)
		})
		if err != nil {
			return nil, fmt.Errorf("searching knowledge base: %w", err)
		}
		for _, r := range results {
			if prev, ok := best[r.Document.ID]; ok && prev.Similarity >= r.Similarity {
				continue
			}
			best[r.Document.ID] = Passage{
				ID:         r.Document.ID,
				Content:    r.Document.Content,
				Metadata:   r.Document.Metadata,
				Similarity: r.Similarity,
			}
		}
	}

	passages := make([]Passage, 0, len(best))
	for _, p := range best {
		passages = append(passages, p)
	}
	sort.Slice(passages, func(i, j int) bool {
		if passages[i].Similarity != passages[j].Similarity {
			return passages[i].Similarity > passages[j].Similarity
		}
		return passages[i].ID < passages[j].ID
	})
	if len(passages) > k {
		passages = passages[:k]
	}
	return passages, nil
}

// cleanQueries trims, drops blanks and duplicates, and caps the list.
func cleanQueries(queries []string, max int) []string {
	seen := make(map[string]bool, len(queries))
	var out []string
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" || seen[q] {
			continue
		}
		seen[q] = true
		out = append(out, q)
		if len(out) == max {
			break
		}
	}
	return out
}

// Format renders passages as numbered context for a prompt. An empty slice
// renders as "".
func Format(passages []Passage) string {
	if len(passages) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, p := range passages {
		fmt.Fprintf(&sb, "Document[%d]: %s\n", i+1, p.Content)
		if p.Metadata.Title != "" {
			fmt.Fprintf(&sb, "Source: %s (%s)\n", p.Metadata.Title, p.Metadata.ContentType)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
