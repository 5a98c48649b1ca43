package vectordb

import (
	"fmt"
	"strings"
)

// FormatResults renders search results as human-readable text.
func FormatResults(results []SearchResult) string {
	if len(results) == 0 {
		return "No results found."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d result(s):\n\n", len(results)))

	for i, r := range results {
		md := r.Document.Metadata
		sb.WriteString(fmt.Sprintf("--- Result %d (similarity: %.4f) ---\n", i+1, r.Similarity))

		if md.Title != "" {
			sb.WriteString(fmt.Sprintf("Title: %s\n", md.Title))
		}
		if len(md.Authors) > 0 {
			sb.WriteString(fmt.Sprintf("Authors: %s\n", strings.Join(md.Authors, ", ")))
		}
		if md.SourcePath != "" {
			sb.WriteString(fmt.Sprintf("Source: %s (%s)\n", md.SourcePath, md.SourceType))
		}
		if md.ContentType != "" {
			sb.WriteString(fmt.Sprintf("Section: %s\n", md.ContentType))
		}

		sb.WriteString("\n")
		sb.WriteString(r.Document.Content)
		sb.WriteString("\n\n")
	}

	return sb.String()
}
