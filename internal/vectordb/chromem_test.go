package vectordb

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"
)

// mockEmbedder returns deterministic embeddings based on text content.
// Shared characters land in the same positions, so similar texts score higher.
type mockEmbedder struct {
	dims int
}

func newMockEmbedder(dims int) *mockEmbedder {
	return &mockEmbedder{dims: dims}
}

func (m *mockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		results[i] = m.deterministicVector(text)
	}
	return results, nil
}

func (m *mockEmbedder) Dimensions() int { return m.dims }
func (m *mockEmbedder) Name() string    { return "mock" }

func (m *mockEmbedder) deterministicVector(text string) []float32 {
	vec := make([]float32, m.dims)
	for i, ch := range text {
		idx := (int(ch) + i) % m.dims
		vec[idx] += 1.0
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}

func newTestStore(t *testing.T) *ChromemStore {
	t.Helper()
	store, err := NewChromemStore(newMockEmbedder(64))
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}
	return store
}

func sampleDocs() []Document {
	return []Document{
		{
			ID:      "a1-summary",
			Content: "Congestion control algorithm that adjusts the window based on delay gradients.",
			Metadata: DocumentMetadata{
				Title:       "Delay-Based Congestion Control",
				Authors:     []string{"A. Author", "B. Author"},
				SourceType:  SourcePaperAnalysis,
				SourcePath:  "analysis-1",
				SessionID:   "s1",
				ContentType: "summary",
				IndexedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			},
		},
		{
			ID:      "a1-concepts",
			Content: "Key concepts: RTT sampling, additive increase, multiplicative decrease.",
			Metadata: DocumentMetadata{
				Title:       "Delay-Based Congestion Control",
				SourceType:  SourcePaperAnalysis,
				SourcePath:  "analysis-1",
				SessionID:   "s1",
				ContentType: "key_concepts",
			},
		},
		{
			ID:      "ref-p4",
			Content: "P4 programs declare parsers, match-action tables and deparsers.",
			Metadata: DocumentMetadata{
				Title:       "P4_16 Language Specification",
				SourceType:  SourceReference,
				SourcePath:  "refs/p4.md",
				ContentType: "reference",
			},
		},
	}
}

func TestChromemStore_AddAndSearch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.AddDocuments(ctx, sampleDocs()); err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}
	if store.Count() != 3 {
		t.Fatalf("expected 3 documents, got %d", store.Count())
	}

	results, err := store.Search(ctx, "congestion window delay", 2, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	// Metadata survives the flat-map round trip.
	for _, r := range results {
		if r.Document.ID != "a1-summary" {
			continue
		}
		md := r.Document.Metadata
		if len(md.Authors) != 2 || md.Authors[1] != "B. Author" {
			t.Errorf("unexpected authors %v", md.Authors)
		}
		if !md.IndexedAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
			t.Errorf("unexpected indexed_at %v", md.IndexedAt)
		}
	}
}

func TestChromemStore_SearchClampsLimit(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	results, err := store.Search(ctx, "anything", 5, nil)
	if err != nil || results != nil {
		t.Fatalf("expected nil results on empty store, got %v, %v", results, err)
	}

	if err := store.AddDocuments(ctx, sampleDocs()); err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}
	results, err = store.Search(ctx, "parsers", 50, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("expected limit clamped to 3, got %d", len(results))
	}

	if results, _ := store.Search(ctx, "   ", 3, nil); results != nil {
		t.Errorf("expected nil results for blank query, got %d", len(results))
	}
}

func TestChromemStore_SearchWithFilter(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	if err := store.AddDocuments(ctx, sampleDocs()); err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}

	ref := SourceReference
	results, err := store.Search(ctx, "congestion", 2, &SearchFilter{SourceType: &ref})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Document.ID != "ref-p4" {
		t.Fatalf("expected only the reference document, got %+v", results)
	}

	session := "s1"
	section := "key_concepts"
	results, err = store.Search(ctx, "congestion", 2, &SearchFilter{SessionID: &session, ContentType: &section})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Document.ID != "a1-concepts" {
		t.Fatalf("expected the concepts document, got %+v", results)
	}
}

func TestChromemStore_GetAndDeleteBySource(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	if err := store.AddDocuments(ctx, sampleDocs()); err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}

	docs, err := store.GetBySource(ctx, "analysis-1")
	if err != nil {
		t.Fatalf("GetBySource: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents for analysis-1, got %d", len(docs))
	}

	if err := store.DeleteBySource(ctx, "analysis-1"); err != nil {
		t.Fatalf("DeleteBySource: %v", err)
	}
	if store.Count() != 1 {
		t.Errorf("expected 1 document after delete, got %d", store.Count())
	}
}

func TestChromemStore_SkipsBlankContent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	err := store.AddDocuments(ctx, []Document{{ID: "blank", Content: "  \n"}})
	if err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}
	if store.Count() != 0 {
		t.Errorf("expected blank document to be skipped, got %d", store.Count())
	}
}

func TestChromemStore_PersistAndLoad(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir() + "/vectors"

	store := newTestStore(t)
	if err := store.AddDocuments(ctx, sampleDocs()); err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}
	if err := store.Persist(ctx, dir); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	restored := newTestStore(t)
	if err := restored.Load(ctx, dir); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if restored.Count() != 3 {
		t.Fatalf("expected 3 documents after load, got %d", restored.Count())
	}
	results, err := restored.Search(ctx, "match-action tables", 1, nil)
	if err != nil {
		t.Fatalf("Search after load: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
}

func TestFormatResults(t *testing.T) {
	if got := FormatResults(nil); got != "No results found." {
		t.Errorf("unexpected empty output %q", got)
	}
	out := FormatResults([]SearchResult{{Document: sampleDocs()[0], Similarity: 0.9}})
	for _, want := range []string{"Title: Delay-Based Congestion Control", "Source: analysis-1 (paper_analysis)", "Section: summary"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}
