package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fixedEmbedder struct {
	vecs [][]float32
	err  error
}

func (f *fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	return f.vecs, f.err
}
func (f *fixedEmbedder) Dimensions() int { return 2 }
func (f *fixedEmbedder) Name() string    { return "fixed" }

func TestToChromemFunc(t *testing.T) {
	fn := ToChromemFunc(&fixedEmbedder{vecs: [][]float32{{0.6, 0.8}}})
	vec, err := fn(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 2 || vec[1] != 0.8 {
		t.Errorf("unexpected vector %v", vec)
	}

	if _, err := ToChromemFunc(&fixedEmbedder{})(context.Background(), "x"); err == nil {
		t.Error("expected error for empty embedding result")
	}

	upstream := errors.New("boom")
	if _, err := ToChromemFunc(&fixedEmbedder{err: upstream})(context.Background(), "x"); !errors.Is(err, upstream) {
		t.Errorf("expected wrapped upstream error, got %v", err)
	}
}

func TestOllamaEmbedderBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		out := make([][]float32, len(req.Input))
		for i := range out {
			out[i] = []float32{float32(i), 1}
		}
		json.NewEncoder(w).Encode(map[string]any{"embeddings": out})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder("nomic-embed-text", 2, srv.URL)
	vecs, err := e.Embed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 3 || vecs[2][0] != 2 {
		t.Errorf("unexpected vectors %v", vecs)
	}
	if e.Name() != "ollama/nomic-embed-text" {
		t.Errorf("unexpected name %q", e.Name())
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	if _, err := New("anthropic", "x", ""); err == nil {
		t.Error("expected error for provider without embeddings")
	}
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := New("openai", "text-embedding-3-large", ""); err == nil {
		t.Error("expected error for missing OpenAI key")
	}
}
