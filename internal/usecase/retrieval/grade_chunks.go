package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"docqa-orchestrator/internal/domain"
)

const (
	gradingMaxTokens    = 500
	gradingSnippetChars = 400
)

// GradeChunks scores every merged chunk for relevance to the effective query
// in one LLM call and decides how generation may use them:
//
//   - all chunks at or above minRelevance: proceed with the full set
//   - some below: proceed_filtered with the passing subset
//   - none at or above: no_relevant_sources with an empty set
//
// Grading is advisory infrastructure. If the call or the parse fails the
// result degrades to proceed with every chunk, so a flaky grader never
// blocks an answer.
func GradeChunks(
	ctx context.Context,
	sc *StageContext,
	llmClient domain.LLMClient,
	model string,
	minRelevance float64,
	logger *slog.Logger,
) CRAGResult {
	if len(sc.Merged) == 0 {
		return CRAGResult{Decision: DecisionNoRelevantSources, RelevantChunks: nil}
	}

	scores, err := requestScores(ctx, sc.EffectiveQuery, sc.Merged, llmClient, model)
	if err != nil {
		logger.Warn("chunk_grading_failed",
			slog.String("request_id", sc.RequestID),
			slog.String("error", err.Error()))
		return CRAGResult{Decision: DecisionProceed, AvgRelevanceScore: 0, RelevantChunks: sc.Merged}
	}

	relevant := make([]domain.RetrievedChunk, 0, len(sc.Merged))
	sum := 0.0
	for i, chunk := range sc.Merged {
		score := scores[i]
		sum += score
		if score >= minRelevance {
			relevant = append(relevant, chunk)
		}
	}
	avg := sum / float64(len(sc.Merged))

	var decision CRAGDecision
	switch {
	case len(relevant) == 0:
		decision = DecisionNoRelevantSources
	case len(relevant) < len(sc.Merged):
		decision = DecisionProceedFiltered
	default:
		decision = DecisionProceed
	}

	logger.Info("chunks_graded",
		slog.String("request_id", sc.RequestID),
		slog.String("decision", string(decision)),
		slog.Float64("avg_score", avg),
		slog.Int("relevant_count", len(relevant)),
		slog.Int("total_count", len(sc.Merged)))

	return CRAGResult{Decision: decision, AvgRelevanceScore: avg, RelevantChunks: relevant}
}

type chunkScore struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// requestScores returns one score per chunk, index-aligned with chunks.
// Chunks the model omits score zero; out-of-range indexes are dropped.
func requestScores(ctx context.Context, query string, chunks []domain.RetrievedChunk, llmClient domain.LLMClient, model string) ([]float64, error) {
	var sb strings.Builder
	sb.WriteString("You are a strict relevance grader for document retrieval.\n\n")
	sb.WriteString("Score each passage from 0.0 (irrelevant) to 1.0 (directly answers) ")
	sb.WriteString("for how useful it is in answering the question. Judge the passage text only.\n\n")
	sb.WriteString("Respond with ONLY a JSON array of objects {\"index\": n, \"score\": x}, ")
	sb.WriteString("one per passage. No prose, no markdown fences.\n\n")
	fmt.Fprintf(&sb, "Question: %s\n\n", query)
	for i, chunk := range chunks {
		text := chunk.Text
		if len(text) > gradingSnippetChars {
			text = text[:gradingSnippetChars]
		}
		fmt.Fprintf(&sb, "Passage %d:\n%s\n\n", i, text)
	}

	resp, err := llmClient.Complete(ctx, model, []domain.Message{
		{Role: domain.RoleUser, Content: sb.String()},
	}, gradingMaxTokens)
	if err != nil {
		return nil, err
	}

	raw, ok := extractJSONArray(resp.Text)
	if !ok {
		return nil, fmt.Errorf("no JSON array in grading response")
	}

	var parsed []chunkScore
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse grading array: %w", err)
	}

	scores := make([]float64, len(chunks))
	for _, cs := range parsed {
		if cs.Index < 0 || cs.Index >= len(chunks) {
			continue
		}
		scores[cs.Index] = clampScore(cs.Score)
	}
	return scores, nil
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
