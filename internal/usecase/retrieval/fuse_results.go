package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"docqa-orchestrator/internal/domain"

	"github.com/google/uuid"
)

// FuseResults embeds all query variants in one batched call, runs one hybrid
// search per variant, and merges the hits by chunk id. On a repeat hit the
// similarity becomes the running arithmetic mean of all scores seen for that
// chunk and the query count increments. The merged set is sorted descending
// by similarity and truncated to sc.ChunkCount.
//
// A search failure for one variant is logged and skipped; only the batched
// embedding call is load-bearing.
func FuseResults(
	ctx context.Context,
	sc *StageContext,
	encoder domain.VectorEncoder,
	searcher domain.HybridSearcher,
	logger *slog.Logger,
) error {
	embedStart := time.Now()
	embeddings, err := encoder.Encode(ctx, sc.Queries)
	if err != nil {
		return fmt.Errorf("failed to encode queries: %w", err)
	}
	if len(embeddings) != len(sc.Queries) {
		return fmt.Errorf("expected %d embeddings, got %d", len(sc.Queries), len(embeddings))
	}
	sc.Embeddings = embeddings

	logger.Info("queries_encoded",
		slog.String("request_id", sc.RequestID),
		slog.Int("query_count", len(sc.Queries)),
		slog.Int64("duration_ms", time.Since(embedStart).Milliseconds()))

	merged := make(map[uuid.UUID]*domain.RetrievedChunk)

	searchStart := time.Now()
	failedVariants := 0
	for i, queryText := range sc.Queries {
		results, err := searcher.Search(ctx, sc.Embeddings[i], queryText, sc.CollectionID, sc.ChunkCount, sc.VectorWeight, sc.LexicalWeight)
		if err != nil {
			failedVariants++
			logger.Warn("variant_search_failed",
				slog.String("request_id", sc.RequestID),
				slog.Int("variant", i),
				slog.String("error", err.Error()))
			continue
		}

		for _, res := range results {
			existing, ok := merged[res.ChunkID]
			if !ok {
				chunk := res
				chunk.QueryCount = 1
				merged[res.ChunkID] = &chunk
				continue
			}
			// Running mean, updated in one step per hit.
			n := float64(existing.QueryCount + 1)
			existing.Similarity += (res.Similarity - existing.Similarity) / n
			existing.QueryCount++
		}
	}

	fused := make([]domain.RetrievedChunk, 0, len(merged))
	for _, chunk := range merged {
		fused = append(fused, *chunk)
	}
	sort.Slice(fused, func(i, j int) bool {
		return fused[i].Similarity > fused[j].Similarity
	})
	if len(fused) > sc.ChunkCount {
		fused = fused[:sc.ChunkCount]
	}
	sc.Merged = fused

	logger.Info("fusion_completed",
		slog.String("request_id", sc.RequestID),
		slog.Int("query_count", len(sc.Queries)),
		slog.Int("failed_variants", failedVariants),
		slog.Int("merged_count", len(fused)),
		slog.Int64("duration_ms", time.Since(searchStart).Milliseconds()))

	return nil
}
