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
	reflectionMaxTokens   = 400
	reflectionSourceChars = 400
)

// Reflection grade weights. Groundedness dominates: an ungrounded answer is
// worse than an incomplete one.
const (
	weightGrounded     = 0.4
	weightAnswers      = 0.3
	weightCompleteness = 0.3
)

// AnswerReflector grades a generated answer against the sources it cited.
type AnswerReflector interface {
	Reflect(ctx context.Context, question, answer string, chunks []domain.RetrievedChunk) AnswerGrade
}

// LLMAnswerReflector grades with one LLM call. Reflection is advisory: on
// any failure the grade passes with ShouldRetry false, so a flaky grader
// never burns the retry budget or blocks an answer.
type LLMAnswerReflector struct {
	llmClient domain.LLMClient
	model     string
	minScore  float64
	logger    *slog.Logger
}

func NewLLMAnswerReflector(llmClient domain.LLMClient, model string, minScore float64, logger *slog.Logger) *LLMAnswerReflector {
	return &LLMAnswerReflector{
		llmClient: llmClient,
		model:     model,
		minScore:  minScore,
		logger:    logger,
	}
}

var _ AnswerReflector = (*LLMAnswerReflector)(nil)

type llmGrade struct {
	IsGrounded      bool     `json:"is_grounded"`
	AnswersQuestion bool     `json:"answers_question"`
	Completeness    float64  `json:"completeness"`
	Issues          []string `json:"issues"`
}

func (r *LLMAnswerReflector) Reflect(ctx context.Context, question, answer string, chunks []domain.RetrievedChunk) AnswerGrade {
	pass := AnswerGrade{
		IsGrounded:      true,
		AnswersQuestion: true,
		Completeness:    1,
		OverallScore:    1,
		ShouldRetry:     false,
	}

	resp, err := r.llmClient.Complete(ctx, r.model, []domain.Message{
		{Role: domain.RoleUser, Content: buildReflectionPrompt(question, answer, chunks)},
	}, reflectionMaxTokens)
	if err != nil {
		r.logger.Warn("answer_reflection_failed", slog.String("error", err.Error()))
		return pass
	}

	raw, ok := extractJSONObject(resp.Text)
	if !ok {
		r.logger.Warn("answer_reflection_unparseable", slog.String("response", truncateForLog(resp.Text, 200)))
		return pass
	}
	var parsed llmGrade
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		r.logger.Warn("answer_reflection_unparseable", slog.String("error", err.Error()))
		return pass
	}

	grade := AnswerGrade{
		IsGrounded:      parsed.IsGrounded,
		AnswersQuestion: parsed.AnswersQuestion,
		Completeness:    clamp01(parsed.Completeness),
		Issues:          parsed.Issues,
	}
	grade.OverallScore = weightGrounded*boolScore(grade.IsGrounded) +
		weightAnswers*boolScore(grade.AnswersQuestion) +
		weightCompleteness*grade.Completeness
	grade.ShouldRetry = grade.OverallScore < r.minScore

	r.logger.Info("answer_reflected",
		slog.Bool("is_grounded", grade.IsGrounded),
		slog.Bool("answers_question", grade.AnswersQuestion),
		slog.Float64("completeness", grade.Completeness),
		slog.Float64("overall_score", grade.OverallScore),
		slog.Bool("should_retry", grade.ShouldRetry))

	return grade
}

func buildReflectionPrompt(question, answer string, chunks []domain.RetrievedChunk) string {
	var sb strings.Builder
	sb.WriteString("You are a strict grader of retrieval-augmented answers.\n\n")
	sb.WriteString("Judge the answer against the sources only:\n")
	sb.WriteString("- is_grounded: every factual claim is supported by the sources\n")
	sb.WriteString("- answers_question: the answer actually addresses the question\n")
	sb.WriteString("- completeness: 0.0-1.0, how much of the askable answer it covers\n\n")
	sb.WriteString("Respond with ONLY a JSON object ")
	sb.WriteString(`{"is_grounded": bool, "answers_question": bool, "completeness": 0.0-1.0, "issues": ["..."]}.`)
	sb.WriteString("\nNo prose, no markdown fences.\n\n")
	fmt.Fprintf(&sb, "Question: %s\n\nAnswer:\n%s\n\nSources:\n", question, answer)
	for i, chunk := range chunks {
		text := chunk.Text
		if len(text) > reflectionSourceChars {
			text = text[:reflectionSourceChars]
		}
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, text)
	}
	return sb.String()
}

func boolScore(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
