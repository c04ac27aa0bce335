package extractor

import (
	"fmt"
	"strings"
)

// Thresholds for quality validation. Below these, the document is probably an
// image-only scan or a decode gone wrong.
const (
	minPlausibleWords = 10
	minPlausibleChars = 50

	// corruptionRatio is the tolerated share of U+FFFD replacement runes.
	corruptionRatio = 0.005
)

// Report lists quality concerns found in extracted text. Issues are
// warnings: ingestion proceeds regardless, because partial text is still
// useful for retrieval.
type Report struct {
	OK     bool
	Issues []string
}

// Validate flags zero-length text, suspiciously low word/char counts and
// encoding-corruption markers.
func (e *Extractor) Validate(extracted *ExtractedText) Report {
	var issues []string

	if extracted == nil || extracted.Text == "" {
		return Report{Issues: []string{"no text extracted"}}
	}

	if extracted.WordCount < minPlausibleWords {
		issues = append(issues, fmt.Sprintf("only %d words extracted; document may be an image-only scan", extracted.WordCount))
	}
	if extracted.CharCount < minPlausibleChars {
		issues = append(issues, fmt.Sprintf("only %d characters extracted", extracted.CharCount))
	}

	if extracted.CharCount > 0 {
		bad := strings.Count(extracted.Text, "�")
		if ratio := float64(bad) / float64(extracted.CharCount); ratio > corruptionRatio {
			issues = append(issues, fmt.Sprintf("%.1f%% replacement characters; text encoding looks corrupted", ratio*100))
		}
	}

	return Report{OK: len(issues) == 0, Issues: issues}
}
