package domain

import (
	"context"

	"github.com/google/uuid"
)

// RetrievedChunk is a stored document passage returned by hybrid search.
// Similarity is the running arithmetic mean of the scores seen for this chunk
// across query variants; QueryCount is how many variants surfaced it.
// Chunks are immutable once fetched.
type RetrievedChunk struct {
	ChunkID     uuid.UUID
	SourceID    uuid.UUID
	SourceTitle string
	Page        *int
	Text        string
	Similarity  float64
	QueryCount  int
}

// HybridSearcher performs one scored retrieval call combining vector
// similarity and lexical match. The ranking function itself is opaque to the
// pipeline; vectorWeight and lexicalWeight are passed through verbatim and
// need not sum to 1.
type HybridSearcher interface {
	Search(ctx context.Context, embedding []float32, queryText string, collectionID uuid.UUID, limit int, vectorWeight, lexicalWeight float64) ([]RetrievedChunk, error)
}
