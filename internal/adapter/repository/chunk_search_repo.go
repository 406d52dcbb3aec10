package repository

import (
	"context"
	"fmt"

	"docqa-orchestrator/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

type chunkSearchRepository struct {
	pool *pgxpool.Pool
}

// NewChunkSearchRepository creates a HybridSearcher over the document_chunks
// table: cosine similarity on the pgvector embedding plus ts_rank on the
// precomputed tsvector, combined with the caller's weights verbatim.
func NewChunkSearchRepository(pool *pgxpool.Pool) domain.HybridSearcher {
	return &chunkSearchRepository{pool: pool}
}

func (r *chunkSearchRepository) Search(ctx context.Context, embedding []float32, queryText string, collectionID uuid.UUID, limit int, vectorWeight, lexicalWeight float64) ([]domain.RetrievedChunk, error) {
	query := `
		SELECT id, source_id, source_title, page, content,
		       ($1::float8 * (1 - (embedding <=> $2)))
		     + ($3::float8 * ts_rank(tsv, plainto_tsquery('english', $4))) AS score
		FROM document_chunks
		WHERE collection_id = $5
		ORDER BY score DESC
		LIMIT $6
	`
	rows, err := r.pool.Query(ctx, query,
		vectorWeight, pgvector.NewVector(embedding), lexicalWeight, queryText, collectionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.RetrievedChunk
	for rows.Next() {
		var c domain.RetrievedChunk
		if err := rows.Scan(&c.ChunkID, &c.SourceID, &c.SourceTitle, &c.Page, &c.Text, &c.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		c.QueryCount = 1
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return chunks, nil
}
