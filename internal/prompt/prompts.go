package prompt

// GroundedSystemPrompt steers the model when retrieval grounding exists for
// the conversation. Selected once per conversation, when a material is
// attached — not re-evaluated per message.
const GroundedSystemPrompt = `You are a patient teaching assistant. Answer the student's question using the provided study material excerpts. Prefer the excerpts over your own knowledge; when they do not cover the question, say so before answering from general knowledge. Explain step by step and keep the language accessible.`

// GeneralSystemPrompt steers the model for conversations with no attached
// material.
const GeneralSystemPrompt = `You are a helpful study assistant. Answer the student's question clearly and accurately, explaining step by step where it helps understanding.`

// SelectSystemPrompt picks the conversation's system prompt. The switch is
// binary and happens once per conversation based on whether a document is
// attached.
func SelectSystemPrompt(hasMaterial bool) string {
	if hasMaterial {
		return GroundedSystemPrompt
	}
	return GeneralSystemPrompt
}
