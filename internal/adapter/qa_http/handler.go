package qa_http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"docqa-orchestrator/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	askUsecase usecase.AskUsecase
}

func NewHandler(askUsecase usecase.AskUsecase) *Handler {
	return &Handler{askUsecase: askUsecase}
}

// AskRequest is the wire shape of a question.
type AskRequest struct {
	Question       string  `json:"question"`
	CollectionID   string  `json:"collection_id"`
	ConversationID *string `json:"conversation_id,omitempty"`
}

// AskStream answers a question over Server-Sent Events: one data line per
// pipeline event, flushed immediately.
// (POST /v1/qa/ask/stream)
func (h *Handler) AskStream(ctx echo.Context) error {
	var req AskRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	collectionID, err := uuid.Parse(req.CollectionID)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "collection_id must be a UUID"})
	}

	input := usecase.AskInput{
		Text:         req.Question,
		CollectionID: collectionID,
	}
	if req.ConversationID != nil && *req.ConversationID != "" {
		conversationID, err := uuid.Parse(*req.ConversationID)
		if err != nil {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "conversation_id must be a UUID"})
		}
		input.ConversationID = &conversationID
	}

	resp := ctx.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return fmt.Errorf("response writer does not support streaming")
	}

	requestCtx := ctx.Request().Context()
	events := h.askUsecase.AskStream(requestCtx, input)
	for event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			ctx.Logger().Errorf("failed to marshal pipeline event: %v", err)
			continue
		}
		if _, err := fmt.Fprintf(resp, "data: %s\n\n", payload); err != nil {
			// Client went away; the pipeline notices via context.
			return nil
		}
		flusher.Flush()
	}
	return nil
}
