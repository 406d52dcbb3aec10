package retrieval_test

import (
	"context"

	"docqa-orchestrator/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

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
