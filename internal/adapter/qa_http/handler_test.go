package qa_http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"docqa-orchestrator/internal/adapter/qa_http"
	"docqa-orchestrator/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAskUsecase replays a fixed event sequence and records its input.
type stubAskUsecase struct {
	events []usecase.PipelineEvent
	input  usecase.AskInput
	called bool
}

func (s *stubAskUsecase) AskStream(ctx context.Context, input usecase.AskInput) <-chan usecase.PipelineEvent {
	s.called = true
	s.input = input
	out := make(chan usecase.PipelineEvent, len(s.events))
	for _, ev := range s.events {
		out <- ev
	}
	close(out)
	return out
}

func performAsk(t *testing.T, stub *stubAskUsecase, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/qa/ask/stream", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	handler := qa_http.NewHandler(stub)
	require.NoError(t, handler.AskStream(ctx))
	return rec
}

func sseEvents(t *testing.T, body string) []usecase.PipelineEvent {
	t.Helper()
	var events []usecase.PipelineEvent
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		raw := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		var ev usecase.PipelineEvent
		require.NoError(t, json.Unmarshal([]byte(raw), &ev))
		events = append(events, ev)
	}
	return events
}

func TestAskStream_StreamsEventsAsSSE(t *testing.T) {
	collectionID := uuid.New()
	stub := &stubAskUsecase{events: []usecase.PipelineEvent{
		{Kind: usecase.EventKindStatus, Payload: "processing question"},
		{Kind: usecase.EventKindToken, Payload: "The answer"},
		{Kind: usecase.EventKindDone, Payload: usecase.DonePayload{Answer: "The answer"}},
	}}

	rec := performAsk(t, stub, `{"question":"what is the refund policy","collection_id":"`+collectionID.String()+`"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/event-stream")

	events := sseEvents(t, rec.Body.String())
	require.Len(t, events, 3)
	assert.Equal(t, usecase.EventKindStatus, events[0].Kind)
	assert.Equal(t, usecase.EventKindToken, events[1].Kind)
	assert.Equal(t, usecase.EventKindDone, events[2].Kind)

	assert.Equal(t, "what is the refund policy", stub.input.Text)
	assert.Equal(t, collectionID, stub.input.CollectionID)
	assert.Nil(t, stub.input.ConversationID)
}

func TestAskStream_PassesConversationID(t *testing.T) {
	collectionID := uuid.New()
	conversationID := uuid.New()
	stub := &stubAskUsecase{events: []usecase.PipelineEvent{
		{Kind: usecase.EventKindDone, Payload: usecase.DonePayload{}},
	}}

	body := `{"question":"and the shipping cost?","collection_id":"` + collectionID.String() +
		`","conversation_id":"` + conversationID.String() + `"}`
	rec := performAsk(t, stub, body)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, stub.input.ConversationID)
	assert.Equal(t, conversationID, *stub.input.ConversationID)
}

func TestAskStream_RejectsBadCollectionID(t *testing.T) {
	stub := &stubAskUsecase{}

	rec := performAsk(t, stub, `{"question":"q","collection_id":"not-a-uuid"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, stub.called)
}

func TestAskStream_RejectsBadConversationID(t *testing.T) {
	stub := &stubAskUsecase{}

	body := `{"question":"q","collection_id":"` + uuid.NewString() + `","conversation_id":"nope"}`
	rec := performAsk(t, stub, body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, stub.called)
}

func TestAskStream_RejectsMalformedBody(t *testing.T) {
	stub := &stubAskUsecase{}

	rec := performAsk(t, stub, `{"question":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, stub.called)
}
