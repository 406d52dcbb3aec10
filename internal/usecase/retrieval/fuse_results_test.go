package retrieval_test

import (
	"context"
	"errors"
	"testing"

	"docqa-orchestrator/internal/domain"
	"docqa-orchestrator/internal/usecase/retrieval"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newStageContext(queries []string, chunkCount int) *retrieval.StageContext {
	return &retrieval.StageContext{
		RequestID:     "req-fuse",
		CollectionID:  uuid.New(),
		ChunkCount:    chunkCount,
		VectorWeight:  0.7,
		LexicalWeight: 0.3,
		Queries:       queries,
	}
}

func TestFuseResults_SingleQuery(t *testing.T) {
	encoder := new(MockVectorEncoder)
	searcher := new(MockHybridSearcher)
	sc := newStageContext([]string{"refund policy"}, 10)

	chunk := domain.RetrievedChunk{ChunkID: uuid.New(), SourceID: uuid.New(), Text: "refunds within 30 days", Similarity: 0.9}
	encoder.On("Encode", mock.Anything, []string{"refund policy"}).
		Return([][]float32{{0.1, 0.2}}, nil)
	searcher.On("Search", mock.Anything, []float32{0.1, 0.2}, "refund policy", sc.CollectionID, 10, 0.7, 0.3).
		Return([]domain.RetrievedChunk{chunk}, nil)

	err := retrieval.FuseResults(context.Background(), sc, encoder, searcher, discardLogger())
	require.NoError(t, err)

	require.Len(t, sc.Merged, 1)
	assert.Equal(t, chunk.ChunkID, sc.Merged[0].ChunkID)
	assert.Equal(t, 0.9, sc.Merged[0].Similarity)
	assert.Equal(t, 1, sc.Merged[0].QueryCount)
}

func TestFuseResults_RunningMeanAcrossVariants(t *testing.T) {
	encoder := new(MockVectorEncoder)
	searcher := new(MockHybridSearcher)
	sc := newStageContext([]string{"qA", "qB", "qC"}, 10)

	shared := domain.RetrievedChunk{ChunkID: uuid.New(), SourceID: uuid.New(), Text: "shared"}
	only := domain.RetrievedChunk{ChunkID: uuid.New(), SourceID: uuid.New(), Text: "only"}

	encoder.On("Encode", mock.Anything, []string{"qA", "qB", "qC"}).
		Return([][]float32{{1}, {2}, {3}}, nil)

	withScore := func(c domain.RetrievedChunk, s float64) domain.RetrievedChunk {
		c.Similarity = s
		return c
	}
	searcher.On("Search", mock.Anything, []float32{1}, "qA", sc.CollectionID, 10, 0.7, 0.3).
		Return([]domain.RetrievedChunk{withScore(shared, 0.9)}, nil)
	searcher.On("Search", mock.Anything, []float32{2}, "qB", sc.CollectionID, 10, 0.7, 0.3).
		Return([]domain.RetrievedChunk{withScore(shared, 0.6), withScore(only, 0.5)}, nil)
	searcher.On("Search", mock.Anything, []float32{3}, "qC", sc.CollectionID, 10, 0.7, 0.3).
		Return([]domain.RetrievedChunk{withScore(shared, 0.3)}, nil)

	err := retrieval.FuseResults(context.Background(), sc, encoder, searcher, discardLogger())
	require.NoError(t, err)

	require.Len(t, sc.Merged, 2)
	// (0.9 + 0.6 + 0.3) / 3
	assert.Equal(t, shared.ChunkID, sc.Merged[0].ChunkID)
	assert.InDelta(t, 0.6, sc.Merged[0].Similarity, 1e-9)
	assert.Equal(t, 3, sc.Merged[0].QueryCount)

	assert.Equal(t, only.ChunkID, sc.Merged[1].ChunkID)
	assert.Equal(t, 0.5, sc.Merged[1].Similarity)
	assert.Equal(t, 1, sc.Merged[1].QueryCount)
}

func TestFuseResults_MeanIsOrderIndependent(t *testing.T) {
	chunkID := uuid.New()
	run := func(first, second float64) float64 {
		encoder := new(MockVectorEncoder)
		searcher := new(MockHybridSearcher)
		sc := newStageContext([]string{"q1", "q2"}, 10)

		encoder.On("Encode", mock.Anything, mock.Anything).Return([][]float32{{1}, {2}}, nil)
		searcher.On("Search", mock.Anything, []float32{1}, "q1", sc.CollectionID, 10, 0.7, 0.3).
			Return([]domain.RetrievedChunk{{ChunkID: chunkID, Similarity: first}}, nil)
		searcher.On("Search", mock.Anything, []float32{2}, "q2", sc.CollectionID, 10, 0.7, 0.3).
			Return([]domain.RetrievedChunk{{ChunkID: chunkID, Similarity: second}}, nil)

		require.NoError(t, retrieval.FuseResults(context.Background(), sc, encoder, searcher, discardLogger()))
		require.Len(t, sc.Merged, 1)
		return sc.Merged[0].Similarity
	}

	assert.InDelta(t, run(0.8, 0.2), run(0.2, 0.8), 1e-9)
}

func TestFuseResults_TruncatesToChunkCount(t *testing.T) {
	encoder := new(MockVectorEncoder)
	searcher := new(MockHybridSearcher)
	sc := newStageContext([]string{"q"}, 2)

	results := []domain.RetrievedChunk{
		{ChunkID: uuid.New(), Similarity: 0.5},
		{ChunkID: uuid.New(), Similarity: 0.9},
		{ChunkID: uuid.New(), Similarity: 0.7},
	}
	encoder.On("Encode", mock.Anything, mock.Anything).Return([][]float32{{1}}, nil)
	searcher.On("Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(results, nil)

	err := retrieval.FuseResults(context.Background(), sc, encoder, searcher, discardLogger())
	require.NoError(t, err)

	require.Len(t, sc.Merged, 2)
	assert.Equal(t, 0.9, sc.Merged[0].Similarity)
	assert.Equal(t, 0.7, sc.Merged[1].Similarity)
}

func TestFuseResults_SkipsFailedVariant(t *testing.T) {
	encoder := new(MockVectorEncoder)
	searcher := new(MockHybridSearcher)
	sc := newStageContext([]string{"ok", "broken"}, 10)

	good := domain.RetrievedChunk{ChunkID: uuid.New(), Similarity: 0.8}
	encoder.On("Encode", mock.Anything, mock.Anything).Return([][]float32{{1}, {2}}, nil)
	searcher.On("Search", mock.Anything, []float32{1}, "ok", sc.CollectionID, 10, 0.7, 0.3).
		Return([]domain.RetrievedChunk{good}, nil)
	searcher.On("Search", mock.Anything, []float32{2}, "broken", sc.CollectionID, 10, 0.7, 0.3).
		Return(nil, errors.New("db timeout"))

	err := retrieval.FuseResults(context.Background(), sc, encoder, searcher, discardLogger())
	require.NoError(t, err)

	require.Len(t, sc.Merged, 1)
	assert.Equal(t, good.ChunkID, sc.Merged[0].ChunkID)
	assert.Equal(t, 1, sc.Merged[0].QueryCount)
}

func TestFuseResults_EncodeFailureIsFatal(t *testing.T) {
	encoder := new(MockVectorEncoder)
	searcher := new(MockHybridSearcher)
	sc := newStageContext([]string{"q"}, 10)

	encoder.On("Encode", mock.Anything, mock.Anything).Return(nil, errors.New("embedder down"))

	err := retrieval.FuseResults(context.Background(), sc, encoder, searcher, discardLogger())
	require.Error(t, err)
	searcher.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFuseResults_EmbeddingCountMismatchIsFatal(t *testing.T) {
	encoder := new(MockVectorEncoder)
	searcher := new(MockHybridSearcher)
	sc := newStageContext([]string{"q1", "q2"}, 10)

	encoder.On("Encode", mock.Anything, mock.Anything).Return([][]float32{{1}}, nil)

	err := retrieval.FuseResults(context.Background(), sc, encoder, searcher, discardLogger())
	require.Error(t, err)
}
