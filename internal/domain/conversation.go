package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Message roles stored in conversation history and sent to the LLM.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationMessage is a single turn of a conversation, most-recent-last
// when returned as history.
type ConversationMessage struct {
	ID        uuid.UUID
	Role      string
	Content   string
	CreatedAt time.Time
}

// Citation links a spot in the generated answer back to the chunk it came from.
type Citation struct {
	ChunkID  uuid.UUID `json:"chunk_id"`
	SourceID uuid.UUID `json:"source_id"`
	Title    string    `json:"title"`
	Page     *int      `json:"page,omitempty"`
	Snippet  string    `json:"snippet"`
}

// ConversationRepository persists conversations and their messages.
// The orchestrator is the only writer; it appends exactly one user message and
// at most one assistant message per request.
type ConversationRepository interface {
	// GetOrCreate resolves an existing conversation or creates a new one
	// scoped to the collection. A nil id always creates.
	GetOrCreate(ctx context.Context, id *uuid.UUID, collectionID uuid.UUID) (uuid.UUID, error)

	// AppendMessage stores one message and returns its id.
	AppendMessage(ctx context.Context, conversationID uuid.UUID, role, content string, citations []Citation) (uuid.UUID, error)

	// GetHistory returns up to limit most recent messages, oldest first.
	GetHistory(ctx context.Context, conversationID uuid.UUID, limit int) ([]ConversationMessage, error)
}
