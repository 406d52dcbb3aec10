package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"docqa-orchestrator/internal/infra/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logOneRecord(ctx context.Context) map[string]any {
	var buf bytes.Buffer
	handler := logger.NewTraceContextHandler(slog.NewJSONHandler(&buf, nil))
	slog.New(handler).InfoContext(ctx, "stage_event")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		return nil
	}
	return record
}

func TestTraceContextHandler_AddsPipelineContextKeys(t *testing.T) {
	ctx := logger.WithRequestID(context.Background(), "req-1")
	ctx = logger.WithConversationID(ctx, "conv-1")
	ctx = logger.WithPipelineStage(ctx, "grading")

	record := logOneRecord(ctx)
	require.NotNil(t, record)
	assert.Equal(t, "req-1", record[string(logger.RequestIDKey)])
	assert.Equal(t, "conv-1", record[string(logger.ConversationIDKey)])
	assert.Equal(t, "grading", record[string(logger.PipelineStageKey)])
}

func TestTraceContextHandler_SkipsAbsentKeys(t *testing.T) {
	record := logOneRecord(context.Background())
	require.NotNil(t, record)
	assert.NotContains(t, record, string(logger.PipelineStageKey))
	assert.NotContains(t, record, string(logger.RequestIDKey))
}
