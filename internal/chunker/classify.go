package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ChunkType is a rough structural hint for display and filtering. The
// classification is shape-based and best-effort, not a semantic guarantee.
type ChunkType string

const (
	ChunkTypeText         ChunkType = "text"
	ChunkTypeHeading      ChunkType = "heading"
	ChunkTypeParagraph    ChunkType = "paragraph"
	ChunkTypeList         ChunkType = "list"
	ChunkTypeTable        ChunkType = "table"
	ChunkTypeImageCaption ChunkType = "image_caption"
	ChunkTypeFootnote     ChunkType = "footnote"
)

// shortChunkRunes bounds what counts as "short" for heading, footnote and
// caption shapes.
const shortChunkRunes = 120

var (
	bulletLine    = regexp.MustCompile(`^\s*([-*•‣◦]|\d+[.)])\s+`)
	numericPrefix = regexp.MustCompile(`^\d+(\.\d+)*[.)]?\s+\S`)
	footnoteShape = regexp.MustCompile(`^\[[^\]]{1,10}\]`)
)

// Classify assigns a ChunkType by shape.
func Classify(content string) ChunkType {
	t := strings.TrimSpace(content)
	if t == "" {
		return ChunkTypeText
	}

	lines := nonEmptyLines(t)
	if len(lines) > 1 {
		if allMatch(lines, bulletLine) {
			return ChunkTypeList
		}
		if looksTabular(lines) {
			return ChunkTypeTable
		}
	} else if bulletLine.MatchString(lines[0]) {
		return ChunkTypeList
	}

	if utf8.RuneCountInString(t) <= shortChunkRunes {
		if footnoteShape.MatchString(t) {
			return ChunkTypeFootnote
		}
		lower := strings.ToLower(t)
		if strings.Contains(lower, "figure") || strings.Contains(lower, "image") {
			return ChunkTypeImageCaption
		}
		if isAllCaps(t) || numericPrefix.MatchString(t) {
			return ChunkTypeHeading
		}
	}

	return ChunkTypeParagraph
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

func allMatch(lines []string, re *regexp.Regexp) bool {
	for _, line := range lines {
		if !re.MatchString(line) {
			return false
		}
	}
	return true
}

// looksTabular treats a block as a table when most lines carry pipe
// separators or column-like double spacing.
func looksTabular(lines []string) bool {
	separated := 0
	for _, line := range lines {
		if strings.Count(line, "|") >= 2 || strings.Contains(line, "  ") {
			separated++
		}
	}
	return separated >= 2 && separated*2 >= len(lines)
}

// isAllCaps reports whether the text contains letters and none of them are
// lowercase.
func isAllCaps(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasLetter
}
