package extractor

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// docxDocument mirrors the subset of word/document.xml we read: paragraphs
// of text runs. Tables, headers and footnote parts are not traversed, so
// DOCX extraction is raw text only.
type docxDocument struct {
	Body struct {
		Paragraphs []docxParagraph `xml:"p"`
	} `xml:"body"`
}

type docxParagraph struct {
	Runs []struct {
		Text []string `xml:"t"`
	} `xml:"r"`
}

// extractDOCX pulls the paragraph text out of a DOCX archive.
func extractDOCX(data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: not a docx archive: %v", ErrExtractionFailed, err)
	}

	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
		}

		var doc docxDocument
		if err := xml.Unmarshal(raw, &doc); err != nil {
			return "", fmt.Errorf("%w: malformed document.xml: %v", ErrExtractionFailed, err)
		}

		var sb strings.Builder
		for _, para := range doc.Body.Paragraphs {
			var line strings.Builder
			for _, run := range para.Runs {
				for _, t := range run.Text {
					line.WriteString(t)
				}
			}
			if s := strings.TrimSpace(line.String()); s != "" {
				sb.WriteString(s)
				sb.WriteString("\n\n")
			}
		}
		return sb.String(), nil
	}

	return "", fmt.Errorf("%w: word/document.xml missing", ErrExtractionFailed)
}
