package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"docqa-orchestrator/internal/domain"
	"docqa-orchestrator/internal/infra/logger"
	"docqa-orchestrator/internal/infra/metrics"
	"docqa-orchestrator/internal/usecase/retrieval"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	noSourcesAnswer = "I could not find anything in the documents that answers this question. " +
		"Try rephrasing it, or ask about a topic the collection covers."
	abstentionAnswer = "The passages I found do not actually answer this question, so I would " +
		"rather not guess. Try rephrasing it, or ask about a topic the collection covers."
)

// AskConfig carries the tuning knobs the orchestrator needs.
type AskConfig struct {
	FallbackModel     string
	ExternalTimeout   time.Duration
	HistoryLimit      int
	CRAGMinRelevance  float64
	ReflectMinLength  int
	ReflectMaxRetries int
	CacheSize         int
	CacheTTL          time.Duration
}

// Validate normalizes out-of-range knobs to safe values. Misconfiguration
// degrades behavior instead of refusing to start.
func (c *AskConfig) Validate() {
	if c.ExternalTimeout <= 0 {
		c.ExternalTimeout = 10 * time.Second
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 10
	}
	if c.CRAGMinRelevance < 0 || c.CRAGMinRelevance > 1 {
		c.CRAGMinRelevance = 0.4
	}
	if c.ReflectMaxRetries < 0 {
		c.ReflectMaxRetries = 0
	}
}

type cachedAnswer struct {
	Answer    string
	Citations []domain.Citation
	Intent    Intent
	Decision  retrieval.CRAGDecision
}

type askUsecase struct {
	conversationRepo domain.ConversationRepository
	router           IntentRouter
	rewriter         ContextRewriter
	llmClient        domain.LLMClient
	encoder          domain.VectorEncoder
	searcher         domain.HybridSearcher
	generator        *AnswerGenerator
	reflector        AnswerReflector
	cache            *expirable.LRU[string, cachedAnswer]
	cfg              AskConfig
	logger           *slog.Logger
}

// NewAskUsecase wires the answering pipeline. A CacheSize of zero or less
// disables the answer cache entirely.
func NewAskUsecase(
	conversationRepo domain.ConversationRepository,
	router IntentRouter,
	rewriter ContextRewriter,
	llmClient domain.LLMClient,
	encoder domain.VectorEncoder,
	searcher domain.HybridSearcher,
	generator *AnswerGenerator,
	reflector AnswerReflector,
	cfg AskConfig,
	log *slog.Logger,
) AskUsecase {
	cfg.Validate()

	var cache *expirable.LRU[string, cachedAnswer]
	if cfg.CacheSize > 0 {
		cache = expirable.NewLRU[string, cachedAnswer](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return &askUsecase{
		conversationRepo: conversationRepo,
		router:           router,
		rewriter:         rewriter,
		llmClient:        llmClient,
		encoder:          encoder,
		searcher:         searcher,
		generator:        generator,
		reflector:        reflector,
		cache:            cache,
		cfg:              cfg,
		logger:           log,
	}
}

var _ AskUsecase = (*askUsecase)(nil)

// AskStream runs the full pipeline and streams progress events. The channel
// closes after the terminal done or error event; exactly one terminal event
// is sent per request unless the consumer goes away first.
func (u *askUsecase) AskStream(ctx context.Context, input AskInput) <-chan PipelineEvent {
	events := make(chan PipelineEvent, 8)
	go func() {
		defer close(events)
		u.run(ctx, input, events)
	}()
	return events
}

func (u *askUsecase) run(ctx context.Context, input AskInput, events chan<- PipelineEvent) {
	requestID := uuid.New().String()
	ctx = logger.WithRequestID(ctx, requestID)
	log := u.logger.With(slog.String("request_id", requestID))

	question := strings.TrimSpace(input.Text)
	if question == "" {
		u.sendError(ctx, events, "question text is required")
		return
	}
	if input.CollectionID == uuid.Nil {
		u.sendError(ctx, events, "collection id is required")
		return
	}

	u.sendEvent(ctx, events, PipelineEvent{Kind: EventKindStatus, Payload: "processing question"})

	// Conversation bookkeeping happens before any model work so the user
	// turn is durable even when the pipeline fails later.
	conversationID, err := u.conversationRepo.GetOrCreate(ctx, input.ConversationID, input.CollectionID)
	if err != nil {
		log.Error("conversation_resolve_failed", slog.String("error", err.Error()))
		u.sendError(ctx, events, "failed to resolve conversation")
		return
	}
	ctx = logger.WithConversationID(ctx, conversationID.String())

	history := input.History
	if len(history) == 0 {
		history, err = u.conversationRepo.GetHistory(ctx, conversationID, u.cfg.HistoryLimit)
		if err != nil {
			// Losing history degrades rewriting, nothing else.
			log.Warn("history_load_failed", slog.String("error", err.Error()))
			history = nil
		}
	}

	if _, err := u.conversationRepo.AppendMessage(ctx, conversationID, domain.RoleUser, question, nil); err != nil {
		log.Error("user_message_persist_failed", slog.String("error", err.Error()))
		u.sendError(ctx, events, "failed to persist question")
		return
	}

	// Routing.
	routeStart := time.Now()
	routeCtx, cancel := context.WithTimeout(logger.WithPipelineStage(ctx, "routing"), u.cfg.ExternalTimeout)
	route := u.router.Route(routeCtx, question, len(history) > 0)
	cancel()
	metrics.StageDuration.WithLabelValues("routing").Observe(time.Since(routeStart).Seconds())
	metrics.RequestsTotal.WithLabelValues(string(route.Intent)).Inc()

	if !u.sendEvent(ctx, events, PipelineEvent{Kind: EventKindRouting, Payload: RoutingPayload{
		Intent:     route.Intent,
		Confidence: route.Confidence,
		Reasoning:  route.Reasoning,
	}}) {
		return
	}

	if route.SkipRetrieval {
		u.finishWithAnswer(ctx, events, log, conversationID, route.SuggestedResponse, nil, route.Intent, "", true)
		return
	}

	// Context rewriting.
	effectiveQuery := question
	if len(history) > 0 {
		rewriteStart := time.Now()
		rewriteCtx, cancel := context.WithTimeout(logger.WithPipelineStage(ctx, "rewriting"), u.cfg.ExternalTimeout)
		rewrite := u.rewriter.Rewrite(rewriteCtx, question, history)
		cancel()
		metrics.StageDuration.WithLabelValues("rewriting").Observe(time.Since(rewriteStart).Seconds())

		effectiveQuery = rewrite.Rewritten
		if !u.sendEvent(ctx, events, PipelineEvent{Kind: EventKindRewriting, Payload: RewritingPayload{
			Original:  question,
			Rewritten: rewrite.Rewritten,
			Entities:  rewrite.ExtractedEntities,
		}}) {
			return
		}
	}

	// The cache is only consulted for history-free questions: with history
	// in play the same text can mean different things per conversation.
	cacheKey := answerCacheKey(input.CollectionID, effectiveQuery)
	if u.cache != nil && len(history) == 0 {
		if hit, ok := u.cache.Get(cacheKey); ok {
			log.Info("answer_cache_hit", slog.String("key", cacheKey))
			messageID, err := u.conversationRepo.AppendMessage(ctx, conversationID, domain.RoleAssistant, hit.Answer, hit.Citations)
			if err != nil {
				log.Error("assistant_message_persist_failed", slog.String("error", err.Error()))
				u.sendError(ctx, events, "failed to persist answer")
				return
			}
			if !u.sendEvent(ctx, events, PipelineEvent{Kind: EventKindToken, Payload: hit.Answer}) {
				return
			}
			u.sendDone(ctx, events, DonePayload{
				Answer:         hit.Answer,
				Citations:      hit.Citations,
				ConversationID: conversationID,
				MessageID:      messageID,
				Intent:         route.Intent,
				Decision:       hit.Decision,
			})
			return
		}
	}

	// Retrieval: plan, expand, fuse.
	params := PlanRetrieval(route.Intent, effectiveQuery)
	sc := &retrieval.StageContext{
		RequestID:        requestID,
		CollectionID:     input.CollectionID,
		EffectiveQuery:   effectiveQuery,
		ChunkCount:       params.ChunkCount,
		ExpansionQueries: params.ExpansionQueries,
		VectorWeight:     params.VectorWeight,
		LexicalWeight:    params.LexicalWeight,
	}

	expandStart := time.Now()
	expandCtx, cancel := context.WithTimeout(logger.WithPipelineStage(ctx, "expansion"), u.cfg.ExternalTimeout)
	retrieval.ExpandQueries(expandCtx, sc, u.llmClient, u.cfg.FallbackModel, u.logger)
	cancel()
	metrics.StageDuration.WithLabelValues("expansion").Observe(time.Since(expandStart).Seconds())

	if !u.sendEvent(ctx, events, PipelineEvent{Kind: EventKindQueries, Payload: sc.Queries}) {
		return
	}

	fuseStart := time.Now()
	fuseCtx, cancel := context.WithTimeout(logger.WithPipelineStage(ctx, "retrieval"), u.cfg.ExternalTimeout)
	err = retrieval.FuseResults(fuseCtx, sc, u.encoder, u.searcher, u.logger)
	cancel()
	metrics.StageDuration.WithLabelValues("retrieval").Observe(time.Since(fuseStart).Seconds())
	if err != nil {
		log.Error("retrieval_failed", slog.String("error", err.Error()))
		u.sendError(ctx, events, "retrieval failed")
		return
	}

	if len(sc.Merged) == 0 {
		log.Info("no_chunks_retrieved", slog.String("query", effectiveQuery))
		u.finishWithAnswer(ctx, events, log, conversationID, noSourcesAnswer, nil, route.Intent, retrieval.DecisionNoRelevantSources, false)
		return
	}

	sources := uniqueSources(sc.Merged)
	if !u.sendEvent(ctx, events, PipelineEvent{Kind: EventKindSources, Payload: sources}) {
		return
	}

	// Corrective grading.
	gradeStart := time.Now()
	gradeCtx, cancel := context.WithTimeout(logger.WithPipelineStage(ctx, "grading"), u.cfg.ExternalTimeout)
	crag := retrieval.GradeChunks(gradeCtx, sc, u.llmClient, u.cfg.FallbackModel, u.cfg.CRAGMinRelevance, u.logger)
	cancel()
	metrics.StageDuration.WithLabelValues("grading").Observe(time.Since(gradeStart).Seconds())

	if !u.sendEvent(ctx, events, PipelineEvent{Kind: EventKindGrading, Payload: GradingPayload{
		Decision:      crag.Decision,
		AvgScore:      crag.AvgRelevanceScore,
		RelevantCount: len(crag.RelevantChunks),
		TotalCount:    len(sc.Merged),
	}}) {
		return
	}

	if crag.Decision == retrieval.DecisionNoRelevantSources {
		u.finishWithAnswer(ctx, events, log, conversationID, abstentionAnswer, nil, route.Intent, crag.Decision, false)
		return
	}

	// Generation plus one reflection-driven retry.
	promptInput := PromptInput{
		Query:   effectiveQuery,
		Chunks:  crag.RelevantChunks,
		History: history,
		Intent:  route.Intent,
	}
	emit := func(ev PipelineEvent) bool { return u.sendEvent(ctx, events, ev) }

	genStart := time.Now()
	result, err := u.generator.Generate(logger.WithPipelineStage(ctx, "generation"), promptInput, emit)
	metrics.StageDuration.WithLabelValues("generation").Observe(time.Since(genStart).Seconds())
	if err != nil {
		if errors.Is(err, ErrClientGone) || ctx.Err() != nil {
			log.Info("client_disconnected_during_generation")
			return
		}
		log.Error("generation_failed", slog.String("error", err.Error()))
		u.sendError(ctx, events, "answer generation failed")
		return
	}
	answer := result.Text

	retries := u.cfg.ReflectMaxRetries
	if retries > 0 && len(answer) >= u.cfg.ReflectMinLength {
		reflectStart := time.Now()
		reflectCtx, cancel := context.WithTimeout(logger.WithPipelineStage(ctx, "reflection"), u.cfg.ExternalTimeout)
		grade := u.reflector.Reflect(reflectCtx, effectiveQuery, answer, crag.RelevantChunks)
		cancel()
		metrics.StageDuration.WithLabelValues("reflection").Observe(time.Since(reflectStart).Seconds())

		if !u.sendEvent(ctx, events, PipelineEvent{Kind: EventKindReflection, Payload: ReflectionPayload{
			IsGrounded:      grade.IsGrounded,
			AnswersQuestion: grade.AnswersQuestion,
			Completeness:    grade.Completeness,
			OverallScore:    grade.OverallScore,
			Issues:          grade.Issues,
		}}) {
			return
		}

		if grade.ShouldRetry {
			metrics.ReflectionRetriesTotal.Inc()
			log.Info("reflection_retry",
				slog.Float64("overall_score", grade.OverallScore),
				slog.Any("issues", grade.Issues))

			// The retried answer ships as-is; one reflection per
			// request keeps latency bounded.
			retryResult, err := u.generator.Generate(logger.WithPipelineStage(ctx, "generation"), promptInput, emit)
			if err != nil {
				if errors.Is(err, ErrClientGone) || ctx.Err() != nil {
					return
				}
				log.Warn("reflection_retry_failed", slog.String("error", err.Error()))
			} else {
				answer = retryResult.Text
			}
		}
	}

	citations := ExtractCitations(answer, crag.RelevantChunks)

	messageID, err := u.conversationRepo.AppendMessage(ctx, conversationID, domain.RoleAssistant, answer, citations)
	if err != nil {
		log.Error("assistant_message_persist_failed", slog.String("error", err.Error()))
		u.sendError(ctx, events, "failed to persist answer")
		return
	}

	if u.cache != nil && len(history) == 0 {
		u.cache.Add(cacheKey, cachedAnswer{
			Answer:    answer,
			Citations: citations,
			Intent:    route.Intent,
			Decision:  crag.Decision,
		})
	}

	u.sendDone(ctx, events, DonePayload{
		Answer:         answer,
		Citations:      citations,
		ConversationID: conversationID,
		MessageID:      messageID,
		Intent:         route.Intent,
		Decision:       crag.Decision,
	})
}

// finishWithAnswer persists a pipeline-authored answer (shortcut or
// abstention) and terminates the stream. emitToken controls whether the text
// is also streamed as a token event before done.
func (u *askUsecase) finishWithAnswer(
	ctx context.Context,
	events chan<- PipelineEvent,
	log *slog.Logger,
	conversationID uuid.UUID,
	answer string,
	citations []domain.Citation,
	intent Intent,
	decision retrieval.CRAGDecision,
	emitToken bool,
) {
	messageID, err := u.conversationRepo.AppendMessage(ctx, conversationID, domain.RoleAssistant, answer, citations)
	if err != nil {
		log.Error("assistant_message_persist_failed", slog.String("error", err.Error()))
		u.sendError(ctx, events, "failed to persist answer")
		return
	}
	if emitToken {
		if !u.sendEvent(ctx, events, PipelineEvent{Kind: EventKindToken, Payload: answer}) {
			return
		}
	}
	u.sendDone(ctx, events, DonePayload{
		Answer:         answer,
		Citations:      citations,
		ConversationID: conversationID,
		MessageID:      messageID,
		Intent:         intent,
		Decision:       decision,
	})
}

func (u *askUsecase) sendEvent(ctx context.Context, events chan<- PipelineEvent, event PipelineEvent) bool {
	select {
	case <-ctx.Done():
		return false
	case events <- event:
		return true
	}
}

func (u *askUsecase) sendDone(ctx context.Context, events chan<- PipelineEvent, payload DonePayload) {
	if u.sendEvent(ctx, events, PipelineEvent{Kind: EventKindDone, Payload: payload}) {
		metrics.TerminalEventsTotal.WithLabelValues(string(EventKindDone)).Inc()
	}
}

func (u *askUsecase) sendError(ctx context.Context, events chan<- PipelineEvent, message string) {
	if u.sendEvent(ctx, events, PipelineEvent{Kind: EventKindError, Payload: ErrorPayload{Message: message}}) {
		metrics.TerminalEventsTotal.WithLabelValues(string(EventKindError)).Inc()
	}
}

func uniqueSources(chunks []domain.RetrievedChunk) []SourceRef {
	seen := make(map[uuid.UUID]bool, len(chunks))
	refs := make([]SourceRef, 0, len(chunks))
	for _, chunk := range chunks {
		if seen[chunk.SourceID] {
			continue
		}
		seen[chunk.SourceID] = true
		refs = append(refs, SourceRef{SourceID: chunk.SourceID, Title: chunk.SourceTitle})
	}
	return refs
}

func answerCacheKey(collectionID uuid.UUID, query string) string {
	return fmt.Sprintf("%s|%s", collectionID, strings.ToLower(strings.TrimSpace(query)))
}
