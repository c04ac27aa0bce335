// Package chunker segments extracted document text into overlapping,
// size-bounded chunks suitable for embedding and retrieval.
package chunker

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// Token budgets are estimates (1 token ~ 4 characters), not real tokenizer
// counts. All of them are soft targets.
const (
	// DefaultChunkSize is the soft target size of a chunk in estimated tokens.
	DefaultChunkSize = 800

	// DefaultMaxChunkSize is the hard ceiling; a buffer is closed before a
	// sentence that would push it past this.
	DefaultMaxChunkSize = 1200

	// DefaultMinChunkSize is the lower bound reported by ValidateChunks.
	// Undersized chunks are a quality signal, never a rejection.
	DefaultMinChunkSize = 50

	// DefaultOverlap is the estimated token budget carried from the tail of
	// one chunk into the head of the next.
	DefaultOverlap = 100
)

// tokensPerSentence approximates the token cost of one sentence when
// converting the overlap budget into a sentence count.
const tokensPerSentence = 20

// EstimateTokens approximates the token count of a string as ceil(len/4).
// Callers must not expect parity with any real LLM tokenizer.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + 3) / 4
}

// Metadata carries positional hints attached to a chunk.
type Metadata struct {
	PageNumber       int    // 0 when unknown
	SectionTitle     string // first line of the chunk when title-shaped
	OriginalPosition int    // rune offset of the chunk start in normalized text
}

// Chunk is the unit of embedding and retrieval.
type Chunk struct {
	ID         string // deterministic: UUIDv5 of materialID + index
	Content    string
	ChunkIndex int
	TokenCount int
	CharCount  int
	Type       ChunkType
	Metadata   Metadata
}

// Result is the outcome of chunking one document.
type Result struct {
	Chunks         []Chunk
	TotalTokens    int
	AvgChunkTokens int
}

// Chunker accumulates sentences into chunks greedily, seeding each chunk
// with the tail sentences of the previous one.
type Chunker struct {
	chunkSize    int
	maxChunkSize int
	minChunkSize int
	overlap      int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithChunkSize sets the soft target size in estimated tokens.
func WithChunkSize(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// WithMaxChunkSize sets the hard ceiling in estimated tokens.
func WithMaxChunkSize(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxChunkSize = n
		}
	}
}

// WithMinChunkSize sets the reporting lower bound in estimated tokens.
func WithMinChunkSize(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.minChunkSize = n
		}
	}
}

// WithOverlap sets the overlap budget in estimated tokens.
func WithOverlap(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.overlap = n
		}
	}
}

// New creates a Chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		chunkSize:    DefaultChunkSize,
		maxChunkSize: DefaultMaxChunkSize,
		minChunkSize: DefaultMinChunkSize,
		overlap:      DefaultOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxChunkSize < c.chunkSize {
		c.maxChunkSize = c.chunkSize
	}
	return c
}

// overlapSentences converts the overlap token budget into a sentence count.
func (c *Chunker) overlapSentences() int {
	return c.overlap / tokensPerSentence
}

type sentence struct {
	text   string
	offset int // rune offset in normalized text
}

// Chunk splits text belonging to materialID into chunks. A document shorter
// than the minimum chunk size still produces exactly one chunk; an empty
// document produces none.
func (c *Chunker) Chunk(text, materialID string) (*Result, error) {
	if materialID == "" {
		return nil, fmt.Errorf("chunker: material id required")
	}

	norm := Normalize(text)
	if norm == "" {
		return &Result{}, nil
	}

	sentences := splitSentences(norm)

	var chunks []Chunk
	var buf []sentence
	overlapLen := 0 // leading sentences of buf carried over from the previous chunk
	bufTokens := 0

	finalize := func() {
		chunks = append(chunks, c.buildChunk(buf, materialID, len(chunks)))
		keep := c.overlapSentences()
		if keep > len(buf) {
			keep = len(buf)
		}
		buf = append([]sentence(nil), buf[len(buf)-keep:]...)
		overlapLen = len(buf)
		bufTokens = 0
		for _, s := range buf {
			bufTokens += EstimateTokens(s.text)
		}
	}

	for _, s := range sentences {
		st := EstimateTokens(s.text)
		// Close the buffer only once it holds at least one sentence that is
		// not overlap carry-over, otherwise an oversized overlap could stall
		// the scan.
		if len(buf) > overlapLen && (bufTokens+st > c.maxChunkSize || bufTokens >= c.chunkSize) {
			finalize()
		}
		buf = append(buf, s)
		bufTokens += st
	}
	if len(buf) > overlapLen {
		chunks = append(chunks, c.buildChunk(buf, materialID, len(chunks)))
	}

	result := &Result{Chunks: chunks}
	for _, ch := range chunks {
		result.TotalTokens += ch.TokenCount
	}
	if len(chunks) > 0 {
		result.AvgChunkTokens = result.TotalTokens / len(chunks)
	}
	return result, nil
}

func (c *Chunker) buildChunk(buf []sentence, materialID string, index int) Chunk {
	texts := make([]string, len(buf))
	for i, s := range buf {
		texts[i] = s.text
	}
	content := strings.Join(texts, " ")

	return Chunk{
		ID:         ChunkID(materialID, index),
		Content:    content,
		ChunkIndex: index,
		TokenCount: EstimateTokens(content),
		CharCount:  len([]rune(content)),
		Type:       Classify(content),
		Metadata: Metadata{
			SectionTitle:     sectionTitle(content),
			OriginalPosition: buf[0].offset,
		},
	}
}

// ChunkID derives the deterministic chunk identifier for a material and
// chunk index. Re-ingesting the same material yields the same IDs, which is
// what makes vector upserts idempotent.
func ChunkID(materialID string, index int) string {
	name := fmt.Sprintf("studyrag:%s:%d", materialID, index)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

var (
	spaceRuns       = regexp.MustCompile(`[ \t]+`)
	spacesAroundEOL = regexp.MustCompile(` *\n *`)
	newlineRuns     = regexp.MustCompile(`\n{3,}`)
)

// Normalize canonicalizes line endings, collapses runs of spaces and
// squeezes three or more blank-line newlines down to a paragraph break.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = spaceRuns.ReplaceAllString(text, " ")
	text = spacesAroundEOL.ReplaceAllString(text, "\n")
	text = newlineRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// splitSentences applies a conservative boundary heuristic: a sentence ends
// at `.`, `!` or `?` followed by whitespace and an uppercase letter. It
// undersegments technical text with abbreviations rather than oversegmenting.
func splitSentences(text string) []sentence {
	runes := []rune(text)
	var out []sentence
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		j := i + 1
		for j < len(runes) && (runes[j] == ' ' || runes[j] == '\n' || runes[j] == '\t') {
			j++
		}
		if j == i+1 || j >= len(runes) || !unicode.IsUpper(runes[j]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, sentence{text: s, offset: start})
		}
		start = j
		i = j - 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, sentence{text: s, offset: start})
	}
	return out
}

// sectionTitle returns the first line of the chunk when it is plausibly a
// title (4-99 characters), empty otherwise.
func sectionTitle(content string) string {
	line, _, _ := strings.Cut(content, "\n")
	line = strings.TrimSpace(line)
	if n := len([]rune(line)); n >= 4 && n < 100 {
		return line
	}
	return ""
}

// ValidateChunks reports quality issues: empty chunks and chunks outside the
// configured token bounds. The final chunk of a document may legitimately be
// undersized, so it is exempt from the lower bound. Issues are warnings for
// the caller to log; chunking output is used regardless.
func (c *Chunker) ValidateChunks(chunks []Chunk) []string {
	var issues []string
	for i, ch := range chunks {
		if strings.TrimSpace(ch.Content) == "" {
			issues = append(issues, fmt.Sprintf("chunk %d is empty", i))
			continue
		}
		if ch.TokenCount > c.maxChunkSize {
			issues = append(issues, fmt.Sprintf("chunk %d exceeds max size: %d > %d tokens", i, ch.TokenCount, c.maxChunkSize))
		}
		if i < len(chunks)-1 && ch.TokenCount < c.minChunkSize {
			issues = append(issues, fmt.Sprintf("chunk %d below min size: %d < %d tokens", i, ch.TokenCount, c.minChunkSize))
		}
	}
	return issues
}
