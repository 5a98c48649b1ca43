package rag

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ziadkadry99/paper2code/internal/artifact"
	"github.com/ziadkadry99/paper2code/internal/llm"
	"github.com/ziadkadry99/paper2code/internal/progress"
	"github.com/ziadkadry99/paper2code/internal/vectordb"
)

type hashEmbedder struct{}

func (hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, 32)
		for j, ch := range text {
			vec[(int(ch)+j)%32]++
		}
		var norm float64
		for _, v := range vec {
			norm += float64(v * v)
		}
		norm = math.Sqrt(norm)
		for k := range vec {
			if norm > 0 {
				vec[k] = float32(float64(vec[k]) / norm)
			}
		}
		out[i] = vec
	}
	return out, nil
}
func (hashEmbedder) Dimensions() int { return 32 }
func (hashEmbedder) Name() string    { return "hash" }

func newStore(t *testing.T) *vectordb.ChromemStore {
	t.Helper()
	s, err := vectordb.NewChromemStore(hashEmbedder{})
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}
	return s
}

var fastRetry = llm.RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

// scriptedStore returns canned results per query and can fail transiently.
type scriptedStore struct {
	vectordb.VectorStore
	results  map[string][]vectordb.SearchResult
	failures int
	queries  []string
	limits   []int
}

func (s *scriptedStore) Search(_ context.Context, query string, limit int, _ *vectordb.SearchFilter) ([]vectordb.SearchResult, error) {
	if s.failures > 0 {
		s.failures--
		return nil, &llm.StatusError{Provider: "embed", StatusCode: 503}
	}
	s.queries = append(s.queries, query)
	s.limits = append(s.limits, limit)
	return s.results[query], nil
}

func result(id string, sim float32) vectordb.SearchResult {
	return vectordb.SearchResult{Document: vectordb.Document{ID: id, Content: "content " + id}, Similarity: sim}
}

func TestRetrieveAllDedupesAndRanks(t *testing.T) {
	store := &scriptedStore{results: map[string][]vectordb.SearchResult{
		"base":     {result("a", 0.5), result("b", 0.4)},
		"concepts": {result("a", 0.9), result("c", 0.3)},
		"p4":       {result("d", 0.8)},
		"extra":    {result("z", 1.0)},
	}}
	aug := New(store, Options{MaxQueries: 3, PerQuery: 3, Retry: fastRetry})

	passages, err := aug.RetrieveAll(context.Background(), []string{"base", " ", "concepts", "base", "p4", "extra"}, 3)
	if err != nil {
		t.Fatalf("RetrieveAll: %v", err)
	}

	if got := strings.Join(store.queries, ","); got != "base,concepts,p4" {
		t.Errorf("unexpected queries issued: %s", got)
	}
	for _, l := range store.limits {
		if l != 3 {
			t.Errorf("expected per-query limit 3, got %d", l)
		}
	}

	var ids []string
	for _, p := range passages {
		ids = append(ids, p.ID)
	}
	if strings.Join(ids, ",") != "a,d,b" {
		t.Errorf("expected a,d,b, got %v", ids)
	}
	if passages[0].Similarity != 0.9 {
		t.Errorf("expected best score kept for duplicate, got %v", passages[0].Similarity)
	}
}

func TestRetrieveSingleQueryUsesK(t *testing.T) {
	store := &scriptedStore{results: map[string][]vectordb.SearchResult{}}
	aug := New(store, Options{Retry: fastRetry})

	if _, err := aug.Retrieve(context.Background(), "q", 7); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(store.limits) != 1 || store.limits[0] != 7 {
		t.Errorf("expected a single search with limit 7, got %v", store.limits)
	}

	passages, err := aug.Retrieve(context.Background(), "   ", 5)
	if err != nil || passages == nil || len(passages) != 0 {
		t.Errorf("expected empty non-nil result for blank query, got %v, %v", passages, err)
	}
}

func TestRetrieveRetriesTransientFailures(t *testing.T) {
	store := &scriptedStore{
		results:  map[string][]vectordb.SearchResult{"q": {result("a", 0.5)}},
		failures: 2,
	}
	aug := New(store, Options{Retry: fastRetry})

	passages, err := aug.Retrieve(context.Background(), "q", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(passages) != 1 {
		t.Errorf("expected 1 passage, got %d", len(passages))
	}

	store.failures = 5
	if _, err := aug.Retrieve(context.Background(), "q", 5); err == nil {
		t.Error("expected error after exhausting retries")
	} else {
		var se *llm.StatusError
		if !errors.As(err, &se) {
			t.Errorf("expected wrapped StatusError, got %v", err)
		}
	}
}

func TestFormat(t *testing.T) {
	if Format(nil) != "" {
		t.Error("expected empty string for no passages")
	}
	out := Format([]Passage{
		{Content: "first", Metadata: vectordb.DocumentMetadata{Title: "Paper", ContentType: "summary"}},
		{Content: "second"},
	})
	for _, want := range []string{"Document[1]: first", "Source: Paper (summary)", "Document[2]: second"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestIndexAnalysisReplacesPassages(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	aug := New(store, Options{Retry: fastRetry})

	an := &artifact.PaperAnalysis{
		ID:        "an-1",
		SessionID: "s1",
		Title:     "PIE",
		Authors:   []string{"R. Pan"},
		Summary:   "Proportional integral controller enhanced AQM.",
		Concepts:  artifact.Concepts{KeyConcepts: []string{"drop probability", "queue delay"}},
		Implementation: artifact.Implementation{
			P4Requirements: "Needs register arrays for queue delay.",
		},
	}

	n, err := aug.IndexAnalysis(ctx, an)
	if err != nil {
		t.Fatalf("IndexAnalysis: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 passages, got %d", n)
	}

	an.Architecture.Overview = "Runs at enqueue."
	if _, err := aug.IndexAnalysis(ctx, an); err != nil {
		t.Fatalf("re-index: %v", err)
	}
	if store.Count() != 4 {
		t.Errorf("expected 4 passages after re-index, got %d", store.Count())
	}

	docs, _ := store.GetBySource(ctx, "an-1")
	for _, d := range docs {
		if d.Metadata.SourceType != vectordb.SourcePaperAnalysis || d.Metadata.SessionID != "s1" {
			t.Errorf("unexpected metadata %+v", d.Metadata)
		}
	}
}

func TestIngestSkipsUnchangedFiles(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	write := func(rel, content string) {
		path := filepath.Join(root, rel)
		os.MkdirAll(filepath.Dir(path), 0o755)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("p4/basic.md", "# P4 Basics\n\nTables match on header fields.\n\nActions modify packets.")
	write("rfc/8033.txt", "PIE drops packets early based on queue delay.")
	write("skip/ignored.bin", "x")

	store := newStore(t)
	aug := New(store, Options{Retry: fastRetry})
	opts := IngestOptions{Include: []string{"**/*.md", "**/*.txt"}, Concurrency: 2, Progress: progress.Nop{}}

	stats, err := aug.Ingest(ctx, root, opts)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if stats.Files != 2 || stats.Unchanged != 0 || stats.Chunks != 2 {
		t.Errorf("unexpected first-run stats %+v", stats)
	}

	docs, _ := store.GetBySource(ctx, "p4/basic.md")
	if len(docs) != 1 || docs[0].Metadata.Title != "P4 Basics" {
		t.Fatalf("unexpected docs for p4/basic.md: %+v", docs)
	}

	write("rfc/8033.txt", "PIE drops packets early based on estimated queue delay.")
	stats, err = aug.Ingest(ctx, root, opts)
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}
	if stats.Unchanged != 1 || stats.Chunks != 1 {
		t.Errorf("unexpected second-run stats %+v", stats)
	}
	if store.Count() != 2 {
		t.Errorf("expected 2 passages after update, got %d", store.Count())
	}
}

func TestChunk(t *testing.T) {
	text := "aaaa\n\nbbbb\n\n" + strings.Repeat("c", 25)
	chunks := Chunk(text, 10)
	want := []string{"aaaa\n\nbbbb", "cccccccccc", "cccccccccc", "ccccc"}
	if len(chunks) != len(want) {
		t.Fatalf("got %q, want %q", chunks, want)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, chunks[i], want[i])
		}
	}
	if len(Chunk(" \n\n ", 10)) != 0 {
		t.Error("expected no chunks for blank text")
	}
}
