// Package extractor converts uploaded documents (PDF, DOCX, PPTX, markdown,
// plain text) into plain text plus basic structural metadata.
//
// Extraction quality is uneven by design: PDF yields per-page text and a page
// count, while DOCX and PPTX yield raw text with no structural awareness.
// Callers must tolerate the degraded formats.
package extractor

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Kind identifies the upload format.
type Kind string

const (
	KindPDF      Kind = "pdf"
	KindDOCX     Kind = "docx"
	KindPPTX     Kind = "pptx"
	KindMarkdown Kind = "markdown"
	KindText     Kind = "text"
)

// KindFromFilename maps a file name to a Kind by extension.
func KindFromFilename(name string) (Kind, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return KindPDF, nil
	case ".docx":
		return KindDOCX, nil
	case ".pptx":
		return KindPPTX, nil
	case ".md", ".markdown":
		return KindMarkdown, nil
	case ".txt":
		return KindText, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}

// ExtractedText is the ephemeral product of one extraction run.
type ExtractedText struct {
	Text      string
	PageCount int // 0 when the format carries no page notion
	WordCount int
	CharCount int
}

// Extractor converts raw document bytes into ExtractedText.
type Extractor struct{}

// New creates an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract parses data according to kind. It returns ErrUnsupportedFormat for
// unknown kinds and ErrExtractionFailed when the underlying parser rejects
// the bytes.
func (e *Extractor) Extract(data []byte, kind Kind) (*ExtractedText, error) {
	var (
		text  string
		pages int
		err   error
	)

	switch kind {
	case KindPDF:
		text, pages, err = extractPDF(data)
	case KindDOCX:
		text, err = extractDOCX(data)
	case KindPPTX:
		text, pages, err = extractPPTX(data)
	case KindMarkdown:
		text = extractMarkdown(data)
	case KindText:
		text = strings.ToValidUTF8(string(data), "�")
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, kind)
	}
	if err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	return &ExtractedText{
		Text:      text,
		PageCount: pages,
		WordCount: len(strings.Fields(text)),
		CharCount: utf8.RuneCountInString(text),
	}, nil
}
