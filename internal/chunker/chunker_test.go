package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "windows line endings",
			input:    "first\r\nsecond\rthird",
			expected: "first\nsecond\nthird",
		},
		{
			name:     "space runs collapsed",
			input:    "a    b\tc",
			expected: "a b c",
		},
		{
			name:     "blank line runs squeezed",
			input:    "para one\n\n\n\n\npara two",
			expected: "para one\n\npara two",
		},
		{
			name:     "surrounding whitespace trimmed",
			input:    "  \n text \n ",
			expected: "text",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Normalize(tc.input))
		})
	}
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
	assert.Equal(t, 25, EstimateTokens(strings.Repeat("x", 100)))
}

func TestSplitSentences_ConservativeBoundary(t *testing.T) {
	text := "Dr. smith wrote v1.2 of the parser. It shipped last May. done"
	sentences := splitSentences(text)

	// "Dr. smith" and "v1.2 of" must not split (no uppercase follows), and
	// the trailing lowercase fragment stays attached to the last boundary.
	require.Len(t, sentences, 2)
	assert.Equal(t, "Dr. smith wrote v1.2 of the parser.", sentences[0].text)
	assert.Equal(t, "It shipped last May. done", sentences[1].text)
}

func TestSplitSentences_Offsets(t *testing.T) {
	text := "One sentence here. Another one follows."
	sentences := splitSentences(text)

	require.Len(t, sentences, 2)
	assert.Equal(t, 0, sentences[0].offset)
	assert.Equal(t, strings.Index(text, "Another"), sentences[1].offset)
}

func TestChunk_ShortDocumentSingleChunk(t *testing.T) {
	c := New()
	result, err := c.Chunk("Tiny note.", "mat-1")
	require.NoError(t, err)

	// Below MinChunkSize still yields exactly one chunk.
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, 0, result.Chunks[0].ChunkIndex)
	assert.Equal(t, "Tiny note.", result.Chunks[0].Content)
	assert.Equal(t, result.Chunks[0].TokenCount, result.TotalTokens)
}

func TestChunk_EmptyDocument(t *testing.T) {
	c := New()
	result, err := c.Chunk("   \n\n  ", "mat-1")
	require.NoError(t, err)
	assert.Empty(t, result.Chunks)
	assert.Zero(t, result.TotalTokens)
}

func TestChunk_RequiresMaterialID(t *testing.T) {
	c := New()
	_, err := c.Chunk("Some text.", "")
	assert.Error(t, err)
}

func TestChunk_DeterministicIDs(t *testing.T) {
	c := New()
	first, err := c.Chunk("Stable content here.", "mat-7")
	require.NoError(t, err)
	second, err := c.Chunk("Stable content here.", "mat-7")
	require.NoError(t, err)

	require.Len(t, first.Chunks, 1)
	assert.Equal(t, first.Chunks[0].ID, second.Chunks[0].ID)
	assert.Equal(t, ChunkID("mat-7", 0), first.Chunks[0].ID)

	other, err := c.Chunk("Stable content here.", "mat-8")
	require.NoError(t, err)
	assert.NotEqual(t, first.Chunks[0].ID, other.Chunks[0].ID)
}

// buildSentences produces n distinct sentences of roughly tokens each.
func buildSentences(n, tokens int) string {
	var b strings.Builder
	filler := strings.Repeat("word ", (tokens*4)/5)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "Sentence %d says %s. ", i, strings.TrimSpace(filler))
	}
	return b.String()
}

func TestChunk_SizeBoundAndIncreasingIndices(t *testing.T) {
	c := New()
	result, err := c.Chunk(buildSentences(200, 40), "mat-2")
	require.NoError(t, err)
	require.Greater(t, len(result.Chunks), 1)

	for i, ch := range result.Chunks {
		assert.Equal(t, i, ch.ChunkIndex, "indices start at 0 and increase strictly")
		if i < len(result.Chunks)-1 {
			assert.LessOrEqual(t, ch.TokenCount, DefaultMaxChunkSize+DefaultOverlap,
				"chunk %d too large", i)
		}
	}
	assert.Empty(t, c.ValidateChunks(result.Chunks))
}

func TestChunk_OverlapInvariant(t *testing.T) {
	c := New()
	result, err := c.Chunk(buildSentences(200, 40), "mat-3")
	require.NoError(t, err)
	require.Greater(t, len(result.Chunks), 1)

	overlap := c.overlapSentences()
	require.Greater(t, overlap, 0)

	for i := 0; i < len(result.Chunks)-1; i++ {
		prev := result.Chunks[i]
		next := result.Chunks[i+1]

		// The trailing sentences of chunk i lead chunk i+1.
		prevSentences := splitSentences(prev.Content)
		require.GreaterOrEqual(t, len(prevSentences), overlap)
		var tail []string
		for _, s := range prevSentences[len(prevSentences)-overlap:] {
			tail = append(tail, s.text)
		}
		assert.True(t, strings.HasPrefix(next.Content, strings.Join(tail, " ")),
			"chunk %d does not start with the tail of chunk %d", i+1, i)
	}
}

func TestChunk_CoverageNoGaps(t *testing.T) {
	input := buildSentences(120, 40)
	c := New()
	result, err := c.Chunk(input, "mat-4")
	require.NoError(t, err)

	// Every sentence of the input appears in at least one chunk.
	joined := " "
	for _, ch := range result.Chunks {
		joined += ch.Content + " "
	}
	for i := 0; i < 120; i++ {
		assert.Contains(t, joined, fmt.Sprintf("Sentence %d says", i))
	}

	// OriginalPosition is strictly increasing across chunks.
	for i := 1; i < len(result.Chunks); i++ {
		assert.Greater(t, result.Chunks[i].Metadata.OriginalPosition,
			result.Chunks[i-1].Metadata.OriginalPosition)
	}
}

// TestChunk_ParisScenario mirrors the canonical small-budget walkthrough:
// three sentences, a 15-token target, and an overlapping boundary.
func TestChunk_ParisScenario(t *testing.T) {
	input := "Paris is the capital of France. It is known for the Eiffel Tower. The city has a population of over 2 million."

	c := New(WithChunkSize(15), WithMaxChunkSize(40), WithOverlap(20))
	result, err := c.Chunk(input, "mat-paris")
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(result.Chunks), 2)
	for _, ch := range result.Chunks {
		assert.Equal(t, ChunkTypeParagraph, ch.Type)
	}

	// Chunk 1 begins with the closing sentence of chunk 0.
	first := result.Chunks[0]
	second := result.Chunks[1]
	sentencesOfFirst := splitSentences(first.Content)
	last := sentencesOfFirst[len(sentencesOfFirst)-1].text
	assert.True(t, strings.HasPrefix(second.Content, last),
		"second chunk %q does not begin with overlap %q", second.Content, last)
}

func TestChunk_SectionTitle(t *testing.T) {
	c := New()
	result, err := c.Chunk("Chapter One\nThe story begins in a small town.", "mat-5")
	require.NoError(t, err)

	require.NotEmpty(t, result.Chunks)
	assert.Equal(t, "Chapter One", result.Chunks[0].Metadata.SectionTitle)
}

func TestValidateChunks(t *testing.T) {
	c := New()

	chunks := []Chunk{
		{Content: "ok", TokenCount: 10},                               // undersized, not last
		{Content: strings.Repeat("x", 8000), TokenCount: 2000},        // oversized
		{Content: "   ", TokenCount: 0},                               // empty
		{Content: "tail", TokenCount: 1},                              // last chunk, exempt
	}
	issues := c.ValidateChunks(chunks)

	require.Len(t, issues, 3)
	assert.Contains(t, issues[0], "below min size")
	assert.Contains(t, issues[1], "exceeds max size")
	assert.Contains(t, issues[2], "empty")
}
