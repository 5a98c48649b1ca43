package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ziadkadry99/paper2code/internal/artifact"
	"github.com/ziadkadry99/paper2code/internal/vectordb"
	"github.com/ziadkadry99/paper2code/internal/walker"
)

// IndexAnalysis adds one passage per populated analysis field to the
// knowledge base. Re-indexing the same analysis replaces its passages.
// It returns the number of passages written.
func (a *Augmenter) IndexAnalysis(ctx context.Context, an *artifact.PaperAnalysis) (int, error) {
	if a.store == nil {
		return 0, nil
	}
	docs := AnalysisDocuments(an)
	if len(docs) == 0 {
		return 0, nil
	}
	if err := a.store.DeleteBySource(ctx, an.ID); err != nil {
		return 0, fmt.Errorf("clearing previous passages: %w", err)
	}
	if err := a.store.AddDocuments(ctx, docs); err != nil {
		return 0, fmt.Errorf("indexing analysis %s: %w", an.ID, err)
	}
	return len(docs), nil
}

// AnalysisDocuments splits an analysis into knowledge-base passages.
func AnalysisDocuments(an *artifact.PaperAnalysis) []vectordb.Document {
	fields := []struct {
		contentType, label, text string
	}{
		{"summary", "Paper summary", an.Summary},
		{"key_concepts", "Key concepts", strings.Join(an.Concepts.KeyConcepts, "; ")},
		{"innovations", "Innovations", strings.Join(an.Concepts.Innovations, "; ")},
		{"technical_details", "Technical details", an.Concepts.TechnicalDetails},
		{"architecture_overview", "System architecture", an.Architecture.Overview},
		{"data_flow", "Data flow", an.Architecture.DataFlow},
		{"key_mechanisms", "Key mechanisms", an.Architecture.KeyMechanisms},
		{"key_algorithms", "Key algorithms", strings.Join(an.Implementation.KeyAlgorithms, "; ")},
		{"python_requirements", "Python implementation notes", an.Implementation.PythonRequirements},
		{"ns3_requirements", "ns-3 implementation notes", an.Implementation.NS3Requirements},
		{"p4_requirements", "P4 implementation notes", an.Implementation.P4Requirements},
	}

	now := time.Now().UTC()
	var docs []vectordb.Document
	for _, f := range fields {
		text := strings.TrimSpace(f.text)
		if text == "" {
			continue
		}
		content := f.label + ": " + text
		docs = append(docs, vectordb.Document{
			ID:      an.ID + ":" + f.contentType,
			Content: content,
			Metadata: vectordb.DocumentMetadata{
				Title:       an.Title,
				Authors:     an.Authors,
				SourceType:  vectordb.SourcePaperAnalysis,
				SourcePath:  an.ID,
				SessionID:   an.SessionID,
				ContentType: f.contentType,
				ContentHash: walker.HashContent([]byte(content)),
				IndexedAt:   now,
			},
		})
	}
	return docs
}
