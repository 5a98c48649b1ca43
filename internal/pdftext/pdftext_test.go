package pdftext

import (
	"bytes"
	"testing"
)

func TestClean(t *testing.T) {
	in := "Title  \r\n\r\n\r\n\r\nAbstract\t\nbody\n\n\n"
	want := "Title\n\nAbstract\nbody"
	if got := Clean(in); got != want {
		t.Errorf("Clean() = %q, want %q", got, want)
	}
}

func TestExtractTextRejectsNonPDF(t *testing.T) {
	data := []byte("this is not a pdf")
	if _, err := (Extractor{}).ExtractText(bytes.NewReader(data), int64(len(data))); err == nil {
		t.Error("expected error for non-PDF input")
	}
}

func TestExtractTextEmpty(t *testing.T) {
	if _, err := (Extractor{}).ExtractText(bytes.NewReader(nil), 0); err == nil {
		t.Error("expected error for empty input")
	}
}
