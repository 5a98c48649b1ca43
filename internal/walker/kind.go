package walker

import (
	"path/filepath"
	"strings"
)

// Kind classifies a reference file for the knowledge base.
type Kind string

const (
	KindMarkdown Kind = "markdown"
	KindText     Kind = "text"
	KindP4       Kind = "p4"
	KindNS3      Kind = "ns3"
	KindPython   Kind = "python"
	KindOther    Kind = "other"
)

var extensionToKind = map[string]Kind{
	".md":       KindMarkdown,
	".markdown": KindMarkdown,
	".rst":      KindText,
	".txt":      KindText,
	".p4":       KindP4,
	".cc":       KindNS3,
	".h":        KindNS3,
	".py":       KindPython,
}

// DetectKind maps a file name to its Kind by extension.
func DetectKind(name string) Kind {
	if k, ok := extensionToKind[strings.ToLower(filepath.Ext(name))]; ok {
		return k
	}
	return KindOther
}
