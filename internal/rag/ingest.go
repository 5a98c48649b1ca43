package rag

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/ziadkadry99/paper2code/internal/progress"
	"github.com/ziadkadry99/paper2code/internal/vectordb"
	"github.com/ziadkadry99/paper2code/internal/walker"
)

// maxChunkChars bounds the size of one reference passage.
const maxChunkChars = 1500

// IngestOptions controls reference-file ingestion.
type IngestOptions struct {
	Include     []string
	Exclude     []string
	Concurrency int
	Progress    progress.Reporter
}

// IngestStats summarizes one ingestion run.
type IngestStats struct {
	Files     int
	Unchanged int
	Chunks    int
}

// Ingest walks root and indexes every matching reference file as
// SourceReference passages. Files whose content hash is already indexed are
// skipped; changed files replace their previous passages.
func (a *Augmenter) Ingest(ctx context.Context, root string, opts IngestOptions) (IngestStats, error) {
	var stats IngestStats
	if a.store == nil {
		return stats, fmt.Errorf("no knowledge base configured")
	}

	files, err := walker.Walk(walker.Config{RootDir: root, Include: opts.Include, Exclude: opts.Exclude})
	if err != nil {
		return stats, err
	}
	stats.Files = len(files)

	reporter := opts.Progress
	if reporter == nil {
		reporter = progress.Nop{}
	}
	limit := opts.Concurrency
	if limit <= 0 {
		limit = 4
	}

	var (
		mu   sync.Mutex
		done int
	)
	report := func(f walker.FileInfo, chunks int, unchanged bool) {
		mu.Lock()
		defer mu.Unlock()
		done++
		if unchanged {
			stats.Unchanged++
		}
		stats.Chunks += chunks
		reporter.Update(done, f.RelPath)
	}

	reporter.Start(len(files))
	defer reporter.Finish()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, f := range files {
		g.Go(func() error {
			chunks, unchanged, err := a.ingestFile(gctx, f)
			if err != nil {
				return fmt.Errorf("ingesting %s: %w", f.RelPath, err)
			}
			report(f, chunks, unchanged)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	log.Printf("rag: ingested %d file(s) from %s (%d unchanged, %d passages)", stats.Files, root, stats.Unchanged, stats.Chunks)
	return stats, nil
}

func (a *Augmenter) ingestFile(ctx context.Context, f walker.FileInfo) (int, bool, error) {
	existing, err := a.store.GetBySource(ctx, f.RelPath)
	if err != nil {
		return 0, false, err
	}
	if len(existing) > 0 && existing[0].Metadata.ContentHash == f.ContentHash {
		return 0, true, nil
	}

	data, err := os.ReadFile(f.Path)
	if err != nil {
		return 0, false, err
	}
	text := string(data)

	title := documentTitle(text, f.RelPath)
	now := time.Now().UTC()
	var docs []vectordb.Document
	for i, chunk := range Chunk(text, maxChunkChars) {
		docs = append(docs, vectordb.Document{
			ID:      fmt.Sprintf("%s#%d", f.RelPath, i),
			Content: chunk,
			Metadata: vectordb.DocumentMetadata{
				Title:       title,
				SourceType:  vectordb.SourceReference,
				SourcePath:  f.RelPath,
				ContentType: string(f.Kind),
				ContentHash: f.ContentHash,
				IndexedAt:   now,
			},
		})
	}

	if len(existing) > 0 {
		if err := a.store.DeleteBySource(ctx, f.RelPath); err != nil {
			return 0, false, err
		}
	}
	if err := a.store.AddDocuments(ctx, docs); err != nil {
		return 0, false, err
	}
	return len(docs), false, nil
}

// Chunk splits text on blank lines into passages of at most max characters.
// Paragraphs longer than max are hard-split.
func Chunk(text string, max int) []string {
	var (
		chunks  []string
		current strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		for len(para) > max {
			flush()
			cut := max
			for cut > 0 && !utf8.RuneStart(para[cut]) {
				cut--
			}
			chunks = append(chunks, para[:cut])
			para = strings.TrimSpace(para[cut:])
		}
		if current.Len() > 0 && current.Len()+len(para)+2 > max {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()
	return chunks
}

// documentTitle returns the first markdown heading, or the file name.
func documentTitle(text, relPath string) string {
	for _, line := range strings.SplitN(text, "\n", 20) {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			if t := strings.TrimSpace(strings.TrimLeft(line, "#")); t != "" {
				return t
			}
		}
	}
	return filepath.Base(relPath)
}
