package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"docqa-orchestrator/internal/domain"
)

const routingMaxTokens = 200

// IntentRouter classifies a question before any retrieval work happens.
type IntentRouter interface {
	Route(ctx context.Context, question string, hasHistory bool) RouterResult
}

// PatternIntentRouter tries cheap pattern rules first and falls back to an
// LLM classification only when no rule fires. Routing never fails the
// request: if the LLM call or parse fails the result degrades to lookup
// with zero confidence and retrieval proceeds.
type PatternIntentRouter struct {
	llmClient domain.LLMClient
	model     string
	logger    *slog.Logger
}

func NewPatternIntentRouter(llmClient domain.LLMClient, model string, logger *slog.Logger) *PatternIntentRouter {
	return &PatternIntentRouter{
		llmClient: llmClient,
		model:     model,
		logger:    logger,
	}
}

var _ IntentRouter = (*PatternIntentRouter)(nil)

var (
	chitChatPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(hi|hello|hey|yo|good (morning|afternoon|evening))[\s!.,]*$`),
		regexp.MustCompile(`(?i)^(thanks|thank you|thx|cheers)[\s!.,]*$`),
		regexp.MustCompile(`(?i)^(bye|goodbye|see you|later)[\s!.,]*$`),
		regexp.MustCompile(`(?i)^(how are you|what'?s up|who are you)[\s?!.,]*$`),
	}

	comparisonPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(compare|comparison|versus|vs\.?)\b`),
		regexp.MustCompile(`(?i)\bdifference(s)? between\b`),
		regexp.MustCompile(`(?i)\b(better|worse|cheaper|faster) than\b`),
	}

	summarizationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(summari[sz]e|summary|overview|tl;?dr)\b`),
		regexp.MustCompile(`(?i)\bmain (points|takeaways|ideas)\b`),
		regexp.MustCompile(`(?i)\bin (a nutshell|brief|short)\b`),
	}

	analyticalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^why\b`),
		regexp.MustCompile(`(?i)\b(explain|analy[sz]e|implication|reasoning behind)\b`),
		regexp.MustCompile(`(?i)\bwhat (would happen|if)\b`),
	}

	followUpPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(and|also|what about|how about)\b`),
		regexp.MustCompile(`(?i)\b(it|that|those|they|this one)\b`),
		regexp.MustCompile(`(?i)^(more|tell me more|elaborate)\b`),
	}
)

func (r *PatternIntentRouter) Route(ctx context.Context, question string, hasHistory bool) RouterResult {
	trimmed := strings.TrimSpace(question)

	for _, p := range chitChatPatterns {
		if p.MatchString(trimmed) {
			return RouterResult{
				Intent:            IntentChitChat,
				Confidence:        0.95,
				Reasoning:         "greeting or social phrase",
				SkipRetrieval:     true,
				SuggestedResponse: chitChatResponse(trimmed),
			}
		}
	}
	for _, p := range comparisonPatterns {
		if p.MatchString(trimmed) {
			return RouterResult{Intent: IntentComparison, Confidence: 0.9, Reasoning: "comparison phrasing"}
		}
	}
	for _, p := range summarizationPatterns {
		if p.MatchString(trimmed) {
			return RouterResult{Intent: IntentSummarization, Confidence: 0.9, Reasoning: "summary request phrasing"}
		}
	}
	for _, p := range analyticalPatterns {
		if p.MatchString(trimmed) {
			return RouterResult{Intent: IntentAnalytical, Confidence: 0.85, Reasoning: "analytical phrasing"}
		}
	}
	// Pronoun references only signal a follow-up when there is history to
	// follow up on.
	if hasHistory {
		for _, p := range followUpPatterns {
			if p.MatchString(trimmed) {
				return RouterResult{Intent: IntentFollowUp, Confidence: 0.8, Reasoning: "references earlier turn"}
			}
		}
	}

	result, err := r.classifyWithLLM(ctx, trimmed, hasHistory)
	if err != nil {
		r.logger.Warn("intent_classification_failed", slog.String("error", err.Error()))
		return RouterResult{Intent: IntentLookup, Confidence: 0, Reasoning: "classifier unavailable"}
	}
	return result
}

type llmIntent struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

func (r *PatternIntentRouter) classifyWithLLM(ctx context.Context, question string, hasHistory bool) (RouterResult, error) {
	prompt := fmt.Sprintf(`Classify the user question into exactly one intent:
lookup, comparison, summarization, analytical, follow_up, chit_chat.

follow_up only applies when a prior conversation exists. Prior conversation exists: %t.

Respond with ONLY a JSON object {"intent": "...", "confidence": 0.0-1.0, "reasoning": "..."}.
No prose, no markdown fences.

Question: %s`, hasHistory, question)

	resp, err := r.llmClient.Complete(ctx, r.model, []domain.Message{
		{Role: domain.RoleUser, Content: prompt},
	}, routingMaxTokens)
	if err != nil {
		return RouterResult{}, err
	}

	raw, ok := extractJSONObject(resp.Text)
	if !ok {
		return RouterResult{}, fmt.Errorf("no JSON object in routing response")
	}
	var parsed llmIntent
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return RouterResult{}, fmt.Errorf("failed to parse routing response: %w", err)
	}

	intent, ok := parseIntent(parsed.Intent)
	if !ok {
		return RouterResult{}, fmt.Errorf("unknown intent %q", parsed.Intent)
	}
	if intent == IntentFollowUp && !hasHistory {
		intent = IntentLookup
	}

	result := RouterResult{
		Intent:     intent,
		Confidence: clamp01(parsed.Confidence),
		Reasoning:  parsed.Reasoning,
	}
	if intent == IntentChitChat {
		result.SkipRetrieval = true
		result.SuggestedResponse = chitChatResponse(question)
	}
	return result, nil
}

func parseIntent(s string) (Intent, bool) {
	switch Intent(strings.ToLower(strings.TrimSpace(s))) {
	case IntentLookup:
		return IntentLookup, true
	case IntentComparison:
		return IntentComparison, true
	case IntentSummarization:
		return IntentSummarization, true
	case IntentAnalytical:
		return IntentAnalytical, true
	case IntentFollowUp:
		return IntentFollowUp, true
	case IntentChitChat:
		return IntentChitChat, true
	}
	return "", false
}

func chitChatResponse(question string) string {
	lower := strings.ToLower(question)
	switch {
	case strings.Contains(lower, "thank"):
		return "You're welcome! Ask me anything about the documents whenever you like."
	case strings.Contains(lower, "bye"):
		return "Goodbye! Come back any time you have questions about the documents."
	default:
		return "Hello! I answer questions about the documents in this collection. What would you like to know?"
	}
}

func clamp01(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// extractJSONObject returns the first top-level braced object found in s,
// tolerating fences and surrounding prose the same way query expansion does
// for arrays.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
