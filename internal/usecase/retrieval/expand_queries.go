package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"docqa-orchestrator/internal/domain"
)

const expansionMaxTokens = 300

// ExpandQueries asks the LLM for alternative phrasings of the effective
// query and fills sc.Queries: element 0 is the effective query, the rest are
// deduplicated variants capped at sc.ExpansionQueries. Expansion is an
// enhancement, never a hard dependency: on any failure sc.Queries degrades
// to the effective query alone.
func ExpandQueries(
	ctx context.Context,
	sc *StageContext,
	llmClient domain.LLMClient,
	model string,
	logger *slog.Logger,
) {
	sc.Queries = []string{sc.EffectiveQuery}
	if sc.ExpansionQueries <= 0 {
		return
	}

	variants, err := requestVariants(ctx, sc.EffectiveQuery, sc.ExpansionQueries, llmClient, model)
	if err != nil {
		logger.Warn("query_expansion_failed",
			slog.String("request_id", sc.RequestID),
			slog.String("error", err.Error()))
		return
	}

	seen := map[string]bool{normalizeQuery(sc.EffectiveQuery): true}
	for _, v := range variants {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" || seen[normalizeQuery(trimmed)] {
			continue
		}
		seen[normalizeQuery(trimmed)] = true
		sc.Queries = append(sc.Queries, trimmed)
		if len(sc.Queries) > sc.ExpansionQueries {
			break
		}
	}

	logger.Info("queries_expanded",
		slog.String("request_id", sc.RequestID),
		slog.Int("variant_count", len(sc.Queries)-1),
		slog.Any("queries", sc.Queries))
}

func requestVariants(ctx context.Context, query string, count int, llmClient domain.LLMClient, model string) ([]string, error) {
	prompt := fmt.Sprintf(`You are an expert search query generator.

Generate %d alternative search phrasings of the user's question to improve
document retrieval. Vary keywords, synonyms, and specificity. Do not answer
the question.

Respond with ONLY a JSON array of strings. No prose, no markdown fences.

Question: %s`, count, query)

	text, err := streamCompletion(ctx, llmClient, model, prompt)
	if err != nil {
		return nil, err
	}

	raw, ok := extractJSONArray(text)
	if !ok {
		return nil, fmt.Errorf("no JSON array in expansion response")
	}

	var variants []string
	if err := json.Unmarshal([]byte(raw), &variants); err != nil {
		return nil, fmt.Errorf("failed to parse expansion array: %w", err)
	}
	return variants, nil
}

// streamCompletion opens a streamed completion and accumulates the content
// deltas into one string. Thinking deltas are dropped; nobody is watching
// this stream token by token.
func streamCompletion(ctx context.Context, llmClient domain.LLMClient, model, prompt string) (string, error) {
	deltas, errs, err := llmClient.CompleteStream(ctx, model, []domain.Message{
		{Role: domain.RoleUser, Content: prompt},
	}, expansionMaxTokens)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
collect:
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case streamErr, ok := <-errs:
			if streamErr != nil {
				return "", streamErr
			}
			if !ok {
				errs = nil
			}
		case delta, ok := <-deltas:
			if !ok {
				break collect
			}
			sb.WriteString(delta.Content)
			if delta.Done {
				break collect
			}
		}
	}
	if errs != nil {
		select {
		case streamErr := <-errs:
			if streamErr != nil {
				return "", streamErr
			}
		default:
		}
	}
	return sb.String(), nil
}

// extractJSONArray returns the first top-level bracketed array found in s.
// Models wrap output in fences or prose often enough that a plain
// json.Unmarshal of the whole response is not reliable.
func extractJSONArray(s string) (string, bool) {
	start := strings.IndexByte(s, '[')
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
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func normalizeQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}
