// Package prompt composes the final message list for a generation call:
// system instructions, retrieved context, bounded conversation history and
// the new user turn.
//
// All size limits here are character budgets, not tokenizer counts; prompt
// size guarantees are approximate throughout the pipeline.
package prompt

import (
	"fmt"
	"strings"

	"github.com/bookworm-labs/studyrag/internal/vectorindex"
)

// Message is one role-tagged entry of the generation prompt.
type Message struct {
	Role    string
	Content string
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one prior exchange entry of the conversation.
type Turn struct {
	Role    string // RoleUser or RoleAssistant
	Content string
}

const (
	// DefaultMaxChunkChars caps each retrieved chunk before it enters the
	// prompt. Full chunk content stays available to callers that need it.
	DefaultMaxChunkChars = 500

	// DefaultMaxHistoryTurns caps the flattened previous-conversation
	// block. A turn count, not a sliding token budget.
	DefaultMaxHistoryTurns = 50
)

// Builder assembles prompt message lists.
type Builder struct {
	maxChunkChars   int
	maxHistoryTurns int
}

// Option configures a Builder.
type Option func(*Builder)

// WithMaxChunkChars sets the per-chunk character budget.
func WithMaxChunkChars(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.maxChunkChars = n
		}
	}
}

// WithMaxHistoryTurns sets the history cap.
func WithMaxHistoryTurns(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.maxHistoryTurns = n
		}
	}
}

// NewBuilder creates a Builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		maxChunkChars:   DefaultMaxChunkChars,
		maxHistoryTurns: DefaultMaxHistoryTurns,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build composes the generation prompt. hasMaterial selects the system
// prompt for the conversation; results may still be empty when retrieval
// degraded, in which case the prompt is valid without grounding.
func (b *Builder) Build(hasMaterial bool, results []vectorindex.RetrievalResult, turns []Turn, userMessage string) []Message {
	messages := []Message{{Role: RoleSystem, Content: SelectSystemPrompt(hasMaterial)}}

	if block := b.renderContext(results); block != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: block})
	}
	if block := b.renderHistory(turns); block != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: block})
	}

	return append(messages, Message{Role: RoleUser, Content: userMessage})
}

// renderContext renders retrieved chunks, each truncated to the chunk budget
// and prefixed for traceability.
func (b *Builder) renderContext(results []vectorindex.RetrievalResult) string {
	if len(results) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Study material excerpts, most relevant first:\n")
	for i, r := range results {
		sb.WriteString(fmt.Sprintf("\n[excerpt %d | %s", i+1, r.ChunkType))
		if r.PageNumber > 0 {
			sb.WriteString(fmt.Sprintf(" | p.%d", r.PageNumber))
		}
		if r.SectionTitle != "" {
			sb.WriteString(" | " + r.SectionTitle)
		}
		sb.WriteString("]\n")
		sb.WriteString(truncate(r.Content, b.maxChunkChars))
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// renderHistory flattens the last maxHistoryTurns turns into one block.
func (b *Builder) renderHistory(turns []Turn) string {
	if len(turns) == 0 {
		return ""
	}
	if len(turns) > b.maxHistoryTurns {
		turns = turns[len(turns)-b.maxHistoryTurns:]
	}

	var sb strings.Builder
	sb.WriteString("Previous conversation:\n")
	for _, turn := range turns {
		speaker := "Student"
		if turn.Role == RoleAssistant {
			speaker = "Assistant"
		}
		sb.WriteString(fmt.Sprintf("%s: %s\n", speaker, turn.Content))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// truncate cuts s at limit runes, marking the cut.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
