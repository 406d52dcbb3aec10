package retrieval

import (
	"docqa-orchestrator/internal/domain"

	"github.com/google/uuid"
)

// StageContext carries data between pipeline stages for one request.
// Each field is written by exactly one stage and read-only afterwards.
type StageContext struct {
	// Input
	RequestID      string
	CollectionID   uuid.UUID
	EffectiveQuery string

	// Planner outputs (set once at init)
	ChunkCount       int
	ExpansionQueries int
	VectorWeight     float64
	LexicalWeight    float64

	// Expansion outputs. Queries[0] is always the effective query;
	// the list is deduplicated.
	Queries []string

	// Fusion outputs
	Embeddings [][]float32
	Merged     []domain.RetrievedChunk
}

// CRAGDecision is the corrective-retrieval verdict over the merged chunks.
type CRAGDecision string

const (
	DecisionProceed           CRAGDecision = "proceed"
	DecisionProceedFiltered   CRAGDecision = "proceed_filtered"
	DecisionNoRelevantSources CRAGDecision = "no_relevant_sources"
)

// CRAGResult holds the grading outcome. RelevantChunks is the subset that
// generation may use; on proceed it equals the full merged set.
type CRAGResult struct {
	Decision          CRAGDecision
	AvgRelevanceScore float64
	RelevantChunks    []domain.RetrievedChunk
}
