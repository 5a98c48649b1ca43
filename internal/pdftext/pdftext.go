// Package pdftext extracts plain text from uploaded papers.
package pdftext

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrNoText is returned for PDFs without an extractable text layer, such as
// scanned papers.
var ErrNoText = errors.New("pdf has no extractable text")

// Extractor reads the text layer of a PDF.
type Extractor struct {
	// MaxBytes caps the returned text; zero means no cap.
	MaxBytes int
}

// ExtractText returns the text of every page, in page order, with runs of
// blank lines collapsed.
func (e Extractor) ExtractText(r io.ReaderAt, size int64) (text string, err error) {
	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("parsing pdf: %v", p)
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}

	var buf bytes.Buffer
	if e.MaxBytes > 0 {
		_, err = io.Copy(&buf, io.LimitReader(plain, int64(e.MaxBytes)))
	} else {
		_, err = io.Copy(&buf, plain)
	}
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}

	text = Clean(buf.String())
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// Clean normalizes line endings, trims trailing spaces and collapses runs of
// blank lines.
func Clean(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t\f")
	}
	s = strings.Join(lines, "\n")
	return strings.TrimSpace(blankRuns.ReplaceAllString(s, "\n\n"))
}
