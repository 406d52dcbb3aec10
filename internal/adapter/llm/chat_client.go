package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"docqa-orchestrator/internal/domain"

	"golang.org/x/time/rate"
)

const completionTemperature = 0.2

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// ChatClient talks to an OpenAI-compatible chat completion endpoint.
// The model identifier is supplied per call so the answer generator can
// switch to its fallback model on the same client.
type ChatClient struct {
	BaseURL string
	Client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewChatClient constructs a client for the given gateway URL. requestsPerSec
// bounds outbound call rate across all pipeline stages sharing the client.
func NewChatClient(baseURL string, requestsPerSec float64, logger *slog.Logger, client *http.Client) *ChatClient {
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	if requestsPerSec <= 0 {
		requestsPerSec = 10
	}
	return &ChatClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  client,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSec), int(requestsPerSec)+1),
		logger:  logger,
	}
}

// Complete sends the messages and returns the assistant message.
func (c *ChatClient) Complete(ctx context.Context, model string, messages []domain.Message, maxTokens int) (*domain.LLMResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	resp, err := c.post(ctx, chatRequest{
		Model:       model,
		Messages:    toWireMessages(messages),
		MaxTokens:   maxTokens,
		Temperature: completionTemperature,
		Stream:      false,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("completion endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode completion response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("completion response has no choices")
	}

	choice := chatResp.Choices[0]
	return &domain.LLMResponse{
		Text: strings.TrimSpace(choice.Message.Content),
		Done: choice.FinishReason != "",
	}, nil
}

// CompleteStream sends the messages and returns a channel of deltas plus an
// error channel. Reasoning tokens arrive as Thinking, answer tokens as
// Content. Both channels close when the stream ends.
func (c *ChatClient) CompleteStream(ctx context.Context, model string, messages []domain.Message, maxTokens int) (<-chan domain.StreamDelta, <-chan error, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	resp, err := c.post(ctx, chatRequest{
		Model:       model,
		Messages:    toWireMessages(messages),
		MaxTokens:   maxTokens,
		Temperature: completionTemperature,
		Stream:      true,
	})
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, nil, fmt.Errorf("completion endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	deltas := make(chan domain.StreamDelta, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(deltas)
		defer close(errs)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				c.send(ctx, deltas, domain.StreamDelta{Done: true})
				return
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				c.logger.Warn("stream_chunk_parse_failed", slog.String("error", err.Error()))
				continue
			}
			if len(chunk.Choices) == 0 {
				continue
			}

			choice := chunk.Choices[0]
			delta := domain.StreamDelta{
				Content:  choice.Delta.Content,
				Thinking: choice.Delta.ReasoningContent,
			}
			if choice.FinishReason != nil && *choice.FinishReason != "" {
				delta.Done = true
			}
			if !c.send(ctx, deltas, delta) {
				return
			}
			if delta.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case errs <- fmt.Errorf("stream read failed: %w", err):
			case <-ctx.Done():
			}
		}
	}()

	return deltas, errs, nil
}

func (c *ChatClient) send(ctx context.Context, deltas chan<- domain.StreamDelta, delta domain.StreamDelta) bool {
	select {
	case <-ctx.Done():
		return false
	case deltas <- delta:
		return true
	}
}

func (c *ChatClient) post(ctx context.Context, reqBody chatRequest) (*http.Response, error) {
	jsonPayload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/chat/completions", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonPayload))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call completion endpoint: %w", err)
	}
	return resp, nil
}

func toWireMessages(messages []domain.Message) []chatMessage {
	wire := make([]chatMessage, len(messages))
	for i, m := range messages {
		wire[i] = chatMessage{Role: m.Role, Content: m.Content}
	}
	return wire
}

var _ domain.LLMClient = (*ChatClient)(nil)
