package di

import (
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"docqa-orchestrator/internal/adapter/llm"
	"docqa-orchestrator/internal/adapter/repository"
	"docqa-orchestrator/internal/domain"
	"docqa-orchestrator/internal/infra/config"
	"docqa-orchestrator/internal/infra/httpclient"
	"docqa-orchestrator/internal/usecase"
)

// ApplicationComponents holds all wired dependencies for the application.
type ApplicationComponents struct {
	ConversationRepo domain.ConversationRepository
	Searcher         domain.HybridSearcher
	LLMClient        domain.LLMClient
	Encoder          domain.VectorEncoder

	AskUsecase usecase.AskUsecase
}

// NewApplicationComponents wires all dependencies from config and database pool.
func NewApplicationComponents(cfg *config.Config, pool *pgxpool.Pool, log *slog.Logger) *ApplicationComponents {
	conversationRepo := repository.NewConversationRepository(pool)
	searcher := repository.NewChunkSearchRepository(pool)

	// Shared HTTP clients with connection pooling. The chat client timeout
	// covers a whole streamed generation, not a single round trip.
	chatHTTP := httpclient.NewPooledClient(120 * time.Second)
	embedHTTP := httpclient.NewPooledClient(time.Duration(cfg.ExternalTimeout) * time.Second)

	chatClient := llm.NewChatClient(cfg.LLMGatewayURL, cfg.LLMRequestsPerSec, log, chatHTTP)
	encoder := llm.NewEmbedClient(cfg.EmbeddingURL, cfg.EmbeddingModel, log, embedHTTP)

	// Ancillary stages (routing, rewriting, expansion, grading) run on the
	// fallback model; only answer generation starts on the primary.
	router := usecase.NewPatternIntentRouter(chatClient, cfg.FallbackModel, log)
	rewriter := usecase.NewLLMContextRewriter(chatClient, cfg.FallbackModel, log)
	reflector := usecase.NewLLMAnswerReflector(chatClient, cfg.FallbackModel, cfg.ReflectMinScore, log)
	generator := usecase.NewAnswerGenerator(
		chatClient,
		usecase.NewNumberedSourcePromptBuilder(),
		cfg.PrimaryModel,
		cfg.FallbackModel,
		cfg.MaxAnswerTokens,
		log,
	)

	askUsecase := usecase.NewAskUsecase(
		conversationRepo,
		router,
		rewriter,
		chatClient,
		encoder,
		searcher,
		generator,
		reflector,
		usecase.AskConfig{
			FallbackModel:     cfg.FallbackModel,
			ExternalTimeout:   time.Duration(cfg.ExternalTimeout) * time.Second,
			HistoryLimit:      cfg.HistoryLimit,
			CRAGMinRelevance:  cfg.CRAGMinRelevance,
			ReflectMinLength:  cfg.ReflectMinLength,
			ReflectMaxRetries: cfg.ReflectMaxRetries,
			CacheSize:         cfg.CacheSize,
			CacheTTL:          time.Duration(cfg.CacheTTLMinutes) * time.Minute,
		},
		log,
	)

	return &ApplicationComponents{
		ConversationRepo: conversationRepo,
		Searcher:         searcher,
		LLMClient:        chatClient,
		Encoder:          encoder,
		AskUsecase:       askUsecase,
	}
}
