package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"docqa-orchestrator/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type conversationRepository struct {
	pool *pgxpool.Pool
}

// NewConversationRepository creates a ConversationRepository backed by Postgres.
func NewConversationRepository(pool *pgxpool.Pool) domain.ConversationRepository {
	return &conversationRepository{pool: pool}
}

func (r *conversationRepository) GetOrCreate(ctx context.Context, id *uuid.UUID, collectionID uuid.UUID) (uuid.UUID, error) {
	if id != nil {
		var existing uuid.UUID
		err := r.pool.QueryRow(ctx,
			`SELECT id FROM conversations WHERE id = $1 AND collection_id = $2`,
			*id, collectionID,
		).Scan(&existing)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("failed to look up conversation: %w", err)
		}
		// Unknown id falls through to creation so a stale client id
		// cannot fail the whole request.
	}

	newID := uuid.New()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO conversations (id, collection_id, created_at) VALUES ($1, $2, $3)`,
		newID, collectionID, time.Now(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return newID, nil
}

func (r *conversationRepository) AppendMessage(ctx context.Context, conversationID uuid.UUID, role, content string, citations []domain.Citation) (uuid.UUID, error) {
	var citationsJSON []byte
	if len(citations) > 0 {
		var err error
		citationsJSON, err = json.Marshal(citations)
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to marshal citations: %w", err)
		}
	}

	messageID := uuid.New()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO conversation_messages (id, conversation_id, role, content, citations, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		messageID, conversationID, role, content, citationsJSON, time.Now(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to append message: %w", err)
	}
	return messageID, nil
}

func (r *conversationRepository) GetHistory(ctx context.Context, conversationID uuid.UUID, limit int) ([]domain.ConversationMessage, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, role, content, created_at
		 FROM conversation_messages
		 WHERE conversation_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var messages []domain.ConversationMessage
	for rows.Next() {
		var m domain.ConversationMessage
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	// Query returns newest first; history is consumed oldest first,
	// most-recent-last.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
