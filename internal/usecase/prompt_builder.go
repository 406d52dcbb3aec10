package usecase

import (
	"fmt"
	"strings"

	"docqa-orchestrator/internal/domain"
)

// PromptInput contains the pieces that feed into the generation prompt.
type PromptInput struct {
	Query   string
	Chunks  []domain.RetrievedChunk
	History []domain.ConversationMessage
	Intent  Intent
}

// PromptBuilder composes the chat messages sent to the LLM for answer
// generation.
type PromptBuilder interface {
	Build(input PromptInput) []domain.Message
}

// NumberedSourcePromptBuilder enumerates the retrieved passages 1-based and
// instructs the model to cite them inline as [n]. The numbering order is the
// order of input.Chunks; citation extraction maps [n] back by the same
// ordering.
type NumberedSourcePromptBuilder struct{}

func NewNumberedSourcePromptBuilder() PromptBuilder {
	return &NumberedSourcePromptBuilder{}
}

func (b *NumberedSourcePromptBuilder) Build(input PromptInput) []domain.Message {
	var sysSb strings.Builder
	sysSb.WriteString("You are a document question answering assistant.\n\n")
	sysSb.WriteString("Rules:\n")
	sysSb.WriteString("1. Answer using ONLY the numbered sources provided. Never use outside knowledge.\n")
	sysSb.WriteString("2. Cite sources inline by appending [n] after each statement they support, ")
	sysSb.WriteString("where n is the source number.\n")
	sysSb.WriteString("3. If the sources do not contain the answer, say so plainly instead of guessing.\n")
	sysSb.WriteString("4. Never invent a source number that is not listed.\n")
	sysSb.WriteString(intentInstruction(input.Intent))

	var userSb strings.Builder
	userSb.WriteString("Sources:\n\n")
	for i, chunk := range input.Chunks {
		fmt.Fprintf(&userSb, "[%d] %s", i+1, chunk.SourceTitle)
		if chunk.Page != nil {
			fmt.Fprintf(&userSb, " (page %d)", *chunk.Page)
		}
		userSb.WriteString("\n")
		userSb.WriteString(chunk.Text)
		userSb.WriteString("\n\n")
	}
	fmt.Fprintf(&userSb, "Question: %s", input.Query)

	messages := []domain.Message{
		{Role: domain.RoleSystem, Content: sysSb.String()},
	}
	// A short history tail keeps the answer's tone consistent with the
	// conversation; reference resolution already happened upstream.
	for _, msg := range historyTail(input.History, rewriteHistoryMax) {
		messages = append(messages, domain.Message{Role: msg.Role, Content: msg.Content})
	}
	messages = append(messages, domain.Message{Role: domain.RoleUser, Content: userSb.String()})
	return messages
}

func intentInstruction(intent Intent) string {
	switch intent {
	case IntentComparison:
		return "5. Structure the answer as an explicit comparison, covering each side.\n"
	case IntentSummarization:
		return "5. Structure the answer as a concise summary of the main points.\n"
	case IntentAnalytical:
		return "5. Explain the reasoning step by step, grounded in the sources.\n"
	default:
		return "5. Keep the answer focused and direct.\n"
	}
}

func historyTail(history []domain.ConversationMessage, max int) []domain.ConversationMessage {
	if len(history) <= max {
		return history
	}
	return history[len(history)-max:]
}
