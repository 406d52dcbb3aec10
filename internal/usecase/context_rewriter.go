package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"docqa-orchestrator/internal/domain"
)

const (
	rewriteMaxTokens  = 300
	rewriteHistoryMax = 6
	rewriteContentMax = 500
)

// ContextRewriter resolves pronouns and implicit references against the
// conversation history so retrieval sees a self-contained question.
type ContextRewriter interface {
	Rewrite(ctx context.Context, question string, history []domain.ConversationMessage) RewriteResult
}

// LLMContextRewriter rewrites with a single LLM call. Rewriting is an
// enhancement: on any failure, or when the model judges the question already
// standalone, the result carries the original question unchanged.
type LLMContextRewriter struct {
	llmClient domain.LLMClient
	model     string
	logger    *slog.Logger
}

func NewLLMContextRewriter(llmClient domain.LLMClient, model string, logger *slog.Logger) *LLMContextRewriter {
	return &LLMContextRewriter{
		llmClient: llmClient,
		model:     model,
		logger:    logger,
	}
}

var _ ContextRewriter = (*LLMContextRewriter)(nil)

type llmRewrite struct {
	Rewritten    string   `json:"rewritten"`
	NeedsContext bool     `json:"needs_context"`
	Entities     []string `json:"entities"`
}

func (r *LLMContextRewriter) Rewrite(ctx context.Context, question string, history []domain.ConversationMessage) RewriteResult {
	passthrough := RewriteResult{Rewritten: question, NeedsContext: false}
	if len(history) == 0 {
		return passthrough
	}

	prompt := buildRewritePrompt(question, history)
	resp, err := r.llmClient.Complete(ctx, r.model, []domain.Message{
		{Role: domain.RoleUser, Content: prompt},
	}, rewriteMaxTokens)
	if err != nil {
		r.logger.Warn("context_rewrite_failed", slog.String("error", err.Error()))
		return passthrough
	}

	raw, ok := extractJSONObject(resp.Text)
	if !ok {
		r.logger.Warn("context_rewrite_unparseable", slog.String("response", truncateForLog(resp.Text, 200)))
		return passthrough
	}
	var parsed llmRewrite
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		r.logger.Warn("context_rewrite_unparseable", slog.String("error", err.Error()))
		return passthrough
	}

	rewritten := strings.TrimSpace(parsed.Rewritten)
	if !parsed.NeedsContext || rewritten == "" {
		return RewriteResult{Rewritten: question, NeedsContext: false, ExtractedEntities: parsed.Entities}
	}

	r.logger.Info("question_rewritten",
		slog.String("original", question),
		slog.String("rewritten", rewritten))

	return RewriteResult{
		Rewritten:         rewritten,
		NeedsContext:      true,
		ExtractedEntities: parsed.Entities,
	}
}

func buildRewritePrompt(question string, history []domain.ConversationMessage) string {
	// Only the tail of the history matters for reference resolution.
	if len(history) > rewriteHistoryMax {
		history = history[len(history)-rewriteHistoryMax:]
	}

	var sb strings.Builder
	sb.WriteString("You resolve references in follow-up questions.\n\n")
	sb.WriteString("Given the conversation and the new question, rewrite the question so it is ")
	sb.WriteString("fully self-contained: replace pronouns and implicit references with the ")
	sb.WriteString("entities they refer to. Do not answer the question. If it is already ")
	sb.WriteString("self-contained, keep it unchanged and set needs_context to false.\n\n")
	sb.WriteString("Respond with ONLY a JSON object ")
	sb.WriteString(`{"rewritten": "...", "needs_context": true|false, "entities": ["..."]}.`)
	sb.WriteString("\nNo prose, no markdown fences.\n\nConversation:\n")
	for _, msg := range history {
		content := msg.Content
		if len(content) > rewriteContentMax {
			content = content[:rewriteContentMax]
		}
		fmt.Fprintf(&sb, "%s: %s\n", msg.Role, content)
	}
	fmt.Fprintf(&sb, "\nNew question: %s", question)
	return sb.String()
}

func truncateForLog(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
