package domain

import (
	"context"
)

// VectorEncoder defines the interface for generating embeddings.
// Encode is batched: all query variants go out in a single call.
type VectorEncoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Version() string
}
