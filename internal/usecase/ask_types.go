package usecase

import (
	"context"

	"docqa-orchestrator/internal/domain"
	"docqa-orchestrator/internal/usecase/retrieval"

	"github.com/google/uuid"
)

// AskInput encapsulates one question against a collection. History may be
// supplied by the caller; when empty and a conversation id is present the
// orchestrator loads the bounded recent history itself.
type AskInput struct {
	Text           string
	CollectionID   uuid.UUID
	ConversationID *uuid.UUID
	History        []domain.ConversationMessage
}

// Intent classifies what kind of answer the question wants.
type Intent string

const (
	IntentLookup        Intent = "lookup"
	IntentComparison    Intent = "comparison"
	IntentSummarization Intent = "summarization"
	IntentAnalytical    Intent = "analytical"
	IntentFollowUp      Intent = "follow_up"
	IntentChitChat      Intent = "chit_chat"
)

// RouterResult is produced once per request and immutable thereafter.
// SkipRetrieval is a hard short-circuit: the orchestrator persists
// SuggestedResponse and terminates without touching retrieval.
type RouterResult struct {
	Intent            Intent
	Confidence        float64
	Reasoning         string
	SkipRetrieval     bool
	SuggestedResponse string
}

// RewriteResult carries the history-resolved form of the question.
type RewriteResult struct {
	Rewritten         string
	NeedsContext      bool
	ExtractedEntities []string
}

// RetrievalParams tunes the retrieval stage per intent and query length.
// VectorWeight and LexicalWeight are passed through to the search scoring
// function verbatim and need not sum to 1.
type RetrievalParams struct {
	ChunkCount       int
	ExpansionQueries int
	VectorWeight     float64
	LexicalWeight    float64
}

// AnswerGrade is the self-reflection verdict on a generated answer.
type AnswerGrade struct {
	IsGrounded      bool
	AnswersQuestion bool
	Completeness    float64
	OverallScore    float64
	Issues          []string
	ShouldRetry     bool
}

// PipelineEventKind tags the progress/result notifications streamed to the
// caller. done and error are terminal and mutually exclusive.
type PipelineEventKind string

const (
	EventKindStatus     PipelineEventKind = "status"
	EventKindRouting    PipelineEventKind = "routing"
	EventKindRewriting  PipelineEventKind = "rewriting"
	EventKindQueries    PipelineEventKind = "queries"
	EventKindSources    PipelineEventKind = "sources"
	EventKindGrading    PipelineEventKind = "grading"
	EventKindThinking   PipelineEventKind = "thinking"
	EventKindToken      PipelineEventKind = "token"
	EventKindReflection PipelineEventKind = "reflection"
	EventKindDone       PipelineEventKind = "done"
	EventKindError      PipelineEventKind = "error"
)

// PipelineEvent is one notification on the answer stream.
type PipelineEvent struct {
	Kind    PipelineEventKind `json:"kind"`
	Payload interface{}       `json:"payload"`
}

type RoutingPayload struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

type RewritingPayload struct {
	Original  string   `json:"original"`
	Rewritten string   `json:"rewritten"`
	Entities  []string `json:"entities"`
}

type SourceRef struct {
	SourceID uuid.UUID `json:"source_id"`
	Title    string    `json:"title"`
}

type GradingPayload struct {
	Decision      retrieval.CRAGDecision `json:"decision"`
	AvgScore      float64                `json:"avg_score"`
	RelevantCount int                    `json:"relevant_count"`
	TotalCount    int                    `json:"total_count"`
}

type ReflectionPayload struct {
	IsGrounded      bool     `json:"is_grounded"`
	AnswersQuestion bool     `json:"answers_question"`
	Completeness    float64  `json:"completeness"`
	OverallScore    float64  `json:"overall_score"`
	Issues          []string `json:"issues"`
}

type DonePayload struct {
	Answer         string                 `json:"answer"`
	Citations      []domain.Citation      `json:"citations"`
	ConversationID uuid.UUID              `json:"conversation_id"`
	MessageID      uuid.UUID              `json:"message_id"`
	Intent         Intent                 `json:"intent"`
	Decision       retrieval.CRAGDecision `json:"decision"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// AskUsecase is the sole entry point of the answering pipeline.
type AskUsecase interface {
	AskStream(ctx context.Context, input AskInput) <-chan PipelineEvent
}
