package vectordb

import "time"

// SourceType categorizes where a knowledge-base passage came from.
type SourceType string

const (
	// SourcePaperAnalysis passages are derived from a stored PaperAnalysis.
	SourcePaperAnalysis SourceType = "paper_analysis"
	// SourceReference passages are ingested reference files (RFCs, P4/ns-3 docs).
	SourceReference SourceType = "reference"
)

// Document is a passage stored in the knowledge base.
type Document struct {
	ID       string
	Content  string
	Metadata DocumentMetadata
}

// DocumentMetadata describes a passage's provenance.
type DocumentMetadata struct {
	Title       string
	Authors     []string
	SourceType  SourceType
	SourcePath  string // ingested file path or analysis id
	SessionID   string
	ContentType string // e.g. "summary", "key_concepts", "reference"
	ContentHash string
	IndexedAt   time.Time
}

// SearchResult pairs a document with its similarity score.
type SearchResult struct {
	Document   Document
	Similarity float32
}

// SearchFilter narrows search results by metadata fields.
type SearchFilter struct {
	SourceType  *SourceType
	SessionID   *string
	ContentType *string
}
