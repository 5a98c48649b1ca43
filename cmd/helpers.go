package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/ziadkadry99/paper2code/internal/config"
	"github.com/ziadkadry99/paper2code/internal/db"
	"github.com/ziadkadry99/paper2code/internal/embeddings"
	"github.com/ziadkadry99/paper2code/internal/llm"
	"github.com/ziadkadry99/paper2code/internal/pipeline"
	"github.com/ziadkadry99/paper2code/internal/rag"
	"github.com/ziadkadry99/paper2code/internal/session"
	"github.com/ziadkadry99/paper2code/internal/vectordb"
)

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `paper2code init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	return cfg, nil
}

func retryPolicy(cfg *config.Config) llm.RetryPolicy {
	return llm.RetryPolicy{
		MaxAttempts:     cfg.LLM.Retry.MaxAttempts,
		InitialInterval: cfg.LLM.Retry.InitialInterval,
		MaxInterval:     cfg.LLM.Retry.MaxInterval,
	}
}

// createEmbedderFromConfig creates the knowledge-base embedder. The base
// URL is shared only when embeddings come from the chat provider.
func createEmbedderFromConfig(cfg *config.Config) (embeddings.Embedder, error) {
	provider := cfg.EmbeddingProvider
	if provider == "" {
		provider = cfg.Provider
	}
	if provider == config.ProviderAnthropic {
		// Anthropic has no embeddings endpoint.
		provider = config.ProviderOpenAI
	}
	model := cfg.EmbeddingModel
	if model == "" {
		model = config.DefaultModels[provider].EmbeddingModel
	}
	baseURL := ""
	if provider == cfg.Provider {
		baseURL = cfg.BaseURL
	}
	return embeddings.New(string(provider), model, baseURL)
}

// openKnowledgeBase creates the vector store and loads any persisted
// snapshot from dir.
func openKnowledgeBase(ctx context.Context, cfg *config.Config, dir string) (*vectordb.ChromemStore, error) {
	embedder, err := createEmbedderFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	store, err := vectordb.NewChromemStore(embedder)
	if err != nil {
		return nil, fmt.Errorf("creating vector store: %w", err)
	}
	if err := store.Load(ctx, dir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not load knowledge base from %s: %v\n", dir, err)
	}
	return store, nil
}

// runtime holds everything an operation-running command needs.
type runtime struct {
	cfg       *config.Config
	db        *db.DB
	store     *vectordb.ChromemStore // nil when no embedder is available
	vectorDir string
	locker    session.Locker
	manager   *session.Manager
}

// openRuntime opens the database and knowledge base and wires the pipeline.
// A missing embedder disables retrieval rather than failing.
func openRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	base, err := llm.NewProvider(string(cfg.Provider), cfg.Model, cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating LLM provider: %w", err)
	}
	provider := llm.Stack(base, cfg.LLM.MaxConcurrency, cfg.LLM.RequestsPerMinute, retryPolicy(cfg))

	rt := &runtime{cfg: cfg, vectorDir: filepath.Join(cfg.DataDir, "vectordb")}

	var augmenter *rag.Augmenter
	rt.store, err = openKnowledgeBase(ctx, cfg, rt.vectorDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: knowledge base disabled: %v\n", err)
	} else {
		augmenter = rag.New(rt.store, rag.Options{
			MaxQueries: cfg.RAG.MaxQueries,
			PerQuery:   cfg.RAG.PerQuery,
			Retry:      retryPolicy(cfg),
		})
	}

	rt.db, err = db.Open(filepath.Join(cfg.DataDir, "paper2code.db"))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	rt.locker, err = session.NewLocker(cfg.Lock)
	if err != nil {
		rt.db.Close()
		return nil, fmt.Errorf("creating session locker: %w", err)
	}

	p := pipeline.New(provider, augmenter, pipeline.SettingsFrom(cfg))
	rt.manager = session.NewManager(rt.db, p, session.Options{
		Locker: rt.locker,
		Policy: pipeline.StopPolicyFrom(cfg.Refine),
		TopK:   cfg.RAG.TopK,
	})
	return rt, nil
}

// persist snapshots the knowledge base to disk.
func (rt *runtime) persist(ctx context.Context) error {
	if rt.store == nil {
		return nil
	}
	return rt.store.Persist(ctx, rt.vectorDir)
}

// vectorStore returns the knowledge base as an interface, nil when disabled.
func (rt *runtime) vectorStore() vectordb.VectorStore {
	if rt.store == nil {
		return nil
	}
	return rt.store
}

// Close releases the locker's connection, if it has one, and the database.
func (rt *runtime) Close() error {
	if c, ok := rt.locker.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Printf("cmd: closing session locker: %v", err)
		}
	}
	return rt.db.Close()
}
