package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"docqa-orchestrator/internal/domain"
	"docqa-orchestrator/internal/infra/metrics"
)

// ErrClientGone signals that the event consumer stopped listening mid-stream.
var ErrClientGone = errors.New("event consumer gone")

// GenerationResult records which model produced the final text and how many
// attempts it took.
type GenerationResult struct {
	Text     string
	Model    string
	Attempts int
}

// AnswerGenerator streams an answer from the primary model and, on any
// failure before completion, makes exactly one more attempt on the fallback
// model when one is configured and differs from the primary. Partial text
// from a failed attempt is dropped from the result, though its deltas have
// already been emitted to the consumer.
type AnswerGenerator struct {
	llmClient     domain.LLMClient
	promptBuilder PromptBuilder
	primaryModel  string
	fallbackModel string
	maxTokens     int
	logger        *slog.Logger
}

func NewAnswerGenerator(
	llmClient domain.LLMClient,
	promptBuilder PromptBuilder,
	primaryModel, fallbackModel string,
	maxTokens int,
	logger *slog.Logger,
) *AnswerGenerator {
	return &AnswerGenerator{
		llmClient:     llmClient,
		promptBuilder: promptBuilder,
		primaryModel:  primaryModel,
		fallbackModel: fallbackModel,
		maxTokens:     maxTokens,
		logger:        logger,
	}
}

// Generate runs the fallback state machine. emit is called for every
// thinking and token event; a false return means the consumer is gone and
// generation aborts with ErrClientGone. The returned error is non-nil only
// when both models failed or the consumer vanished.
func (g *AnswerGenerator) Generate(ctx context.Context, input PromptInput, emit func(PipelineEvent) bool) (*GenerationResult, error) {
	messages := g.promptBuilder.Build(input)

	models := []string{g.primaryModel}
	if g.fallbackModel != "" && g.fallbackModel != g.primaryModel {
		models = append(models, g.fallbackModel)
	}

	var lastErr error
	for attempt, model := range models {
		text, err := g.streamOnce(ctx, model, messages, emit)
		if err == nil {
			return &GenerationResult{Text: text, Model: model, Attempts: attempt + 1}, nil
		}
		if errors.Is(err, ErrClientGone) || ctx.Err() != nil {
			return nil, err
		}

		lastErr = err
		if attempt+1 < len(models) {
			metrics.GenerationFallbacksTotal.Inc()
			g.logger.Warn("generation_fallback",
				slog.String("from_model", g.primaryModel),
				slog.String("to_model", g.fallbackModel),
				slog.String("error", err.Error()))
		}
	}
	if len(models) == 1 {
		return nil, fmt.Errorf("generation failed on %s: %w", g.primaryModel, lastErr)
	}
	return nil, fmt.Errorf("generation failed on both models: %w", lastErr)
}

func (g *AnswerGenerator) streamOnce(ctx context.Context, model string, messages []domain.Message, emit func(PipelineEvent) bool) (string, error) {
	deltas, errs, err := g.llmClient.CompleteStream(ctx, model, messages, g.maxTokens)
	if err != nil {
		return "", fmt.Errorf("failed to open stream on %s: %w", model, err)
	}

	var sb strings.Builder
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case streamErr, ok := <-errs:
			if streamErr != nil {
				return "", fmt.Errorf("stream failed on %s: %w", model, streamErr)
			}
			if !ok {
				// Closed without an error; drain deltas only.
				errs = nil
			}
		case delta, ok := <-deltas:
			if !ok {
				answer := strings.TrimSpace(sb.String())
				if answer == "" {
					return "", fmt.Errorf("empty answer from %s", model)
				}
				return answer, nil
			}
			if delta.Thinking != "" {
				if !emit(PipelineEvent{Kind: EventKindThinking, Payload: delta.Thinking}) {
					return "", ErrClientGone
				}
			}
			if delta.Content != "" {
				sb.WriteString(delta.Content)
				if !emit(PipelineEvent{Kind: EventKindToken, Payload: delta.Content}) {
					return "", ErrClientGone
				}
			}
			if delta.Done {
				answer := strings.TrimSpace(sb.String())
				if answer == "" {
					return "", fmt.Errorf("empty answer from %s", model)
				}
				return answer, nil
			}
		}
	}
}
