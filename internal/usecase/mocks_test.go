package usecase_test

import (
	"context"
	"io"
	"log/slog"

	"docqa-orchestrator/internal/domain"
	"docqa-orchestrator/internal/usecase"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// MockLLMClient is a test double for domain.LLMClient.
type MockLLMClient struct {
	mock.Mock
}

func (m *MockLLMClient) Complete(ctx context.Context, model string, messages []domain.Message, maxTokens int) (*domain.LLMResponse, error) {
	args := m.Called(ctx, model, messages, maxTokens)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LLMResponse), args.Error(1)
}

func (m *MockLLMClient) CompleteStream(ctx context.Context, model string, messages []domain.Message, maxTokens int) (<-chan domain.StreamDelta, <-chan error, error) {
	args := m.Called(ctx, model, messages, maxTokens)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(<-chan domain.StreamDelta), args.Get(1).(<-chan error), args.Error(2)
}

// streamFrom builds the channel pair CompleteStream returns, pre-loaded with
// the given deltas and closed, mirroring a finished provider stream.
func streamFrom(deltas ...domain.StreamDelta) (<-chan domain.StreamDelta, <-chan error) {
	deltaCh := make(chan domain.StreamDelta, len(deltas))
	for _, d := range deltas {
		deltaCh <- d
	}
	close(deltaCh)
	errCh := make(chan error)
	close(errCh)
	return deltaCh, errCh
}

func failingStream(err error) (<-chan domain.StreamDelta, <-chan error) {
	deltaCh := make(chan domain.StreamDelta)
	close(deltaCh)
	errCh := make(chan error, 1)
	errCh <- err
	close(errCh)
	return deltaCh, errCh
}

// MockConversationRepository is a test double for domain.ConversationRepository.
type MockConversationRepository struct {
	mock.Mock
}

func (m *MockConversationRepository) GetOrCreate(ctx context.Context, id *uuid.UUID, collectionID uuid.UUID) (uuid.UUID, error) {
	args := m.Called(ctx, id, collectionID)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockConversationRepository) AppendMessage(ctx context.Context, conversationID uuid.UUID, role, content string, citations []domain.Citation) (uuid.UUID, error) {
	args := m.Called(ctx, conversationID, role, content, citations)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockConversationRepository) GetHistory(ctx context.Context, conversationID uuid.UUID, limit int) ([]domain.ConversationMessage, error) {
	args := m.Called(ctx, conversationID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ConversationMessage), args.Error(1)
}

// MockVectorEncoder is a test double for domain.VectorEncoder.
type MockVectorEncoder struct {
	mock.Mock
}

func (m *MockVectorEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockVectorEncoder) Version() string {
	args := m.Called()
	return args.String(0)
}

// MockHybridSearcher is a test double for domain.HybridSearcher.
type MockHybridSearcher struct {
	mock.Mock
}

func (m *MockHybridSearcher) Search(ctx context.Context, embedding []float32, queryText string, collectionID uuid.UUID, limit int, vectorWeight, lexicalWeight float64) ([]domain.RetrievedChunk, error) {
	args := m.Called(ctx, embedding, queryText, collectionID, limit, vectorWeight, lexicalWeight)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RetrievedChunk), args.Error(1)
}

// stubRouter returns a fixed routing result without touching an LLM.
type stubRouter struct {
	result usecase.RouterResult
}

func (s *stubRouter) Route(ctx context.Context, question string, hasHistory bool) usecase.RouterResult {
	return s.result
}

// stubRewriter echoes the question back, optionally replaced.
type stubRewriter struct {
	rewritten string
}

func (s *stubRewriter) Rewrite(ctx context.Context, question string, history []domain.ConversationMessage) usecase.RewriteResult {
	if s.rewritten != "" {
		return usecase.RewriteResult{Rewritten: s.rewritten, NeedsContext: true}
	}
	return usecase.RewriteResult{Rewritten: question}
}

// stubReflector returns queued grades in order, repeating the last one.
type stubReflector struct {
	grades []usecase.AnswerGrade
	calls  int
}

func (s *stubReflector) Reflect(ctx context.Context, question, answer string, chunks []domain.RetrievedChunk) usecase.AnswerGrade {
	if len(s.grades) == 0 {
		return usecase.AnswerGrade{IsGrounded: true, AnswersQuestion: true, Completeness: 1, OverallScore: 1}
	}
	idx := s.calls
	if idx >= len(s.grades) {
		idx = len(s.grades) - 1
	}
	s.calls++
	return s.grades[idx]
}
