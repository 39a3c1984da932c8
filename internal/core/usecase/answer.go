package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/movie-search-assistant/internal/core/domain"
	"github.com/kirillkom/movie-search-assistant/internal/core/ports"
)

type AnswerConfig struct {
	CacheEnabled bool
	Threshold    float64
}

// AnswerUseCase is the full turn: retrieve, normalize, consult the response
// cache and generate on a miss.
type AnswerUseCase struct {
	dispatcher   *StrategyDispatcher
	normalizer   *ResultNormalizer
	cache        *SemanticCache
	orchestrator *GenerationOrchestrator
	publisher    ports.EventPublisher
	cfg          AnswerConfig
	now          func() time.Time
}

func NewAnswerUseCase(
	dispatcher *StrategyDispatcher,
	normalizer *ResultNormalizer,
	cache *SemanticCache,
	orchestrator *GenerationOrchestrator,
	publisher ports.EventPublisher,
	cfg AnswerConfig,
) *AnswerUseCase {
	return &AnswerUseCase{
		dispatcher:   dispatcher,
		normalizer:   normalizer,
		cache:        cache,
		orchestrator: orchestrator,
		publisher:    publisher,
		cfg:          cfg,
		now:          time.Now,
	}
}

func (uc *AnswerUseCase) Search(ctx context.Context, req domain.SearchRequest) ([]domain.RankedHit, error) {
	dispatched, err := uc.dispatcher.Dispatch(ctx, req)
	if err != nil {
		return nil, err
	}
	return uc.normalizer.Normalize(dispatched.Result)
}

func (uc *AnswerUseCase) Ask(ctx context.Context, conversation *domain.Conversation, req ports.AskRequest) (*domain.Answer, error) {
	if conversation == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", fmt.Errorf("conversation is required"))
	}
	start := uc.now()
	query := strings.TrimSpace(req.Search.Text)
	ctx = withTurnEmbeddings(ctx)

	hits, err := uc.Search(ctx, req.Search)
	if err != nil {
		return nil, err
	}

	answer := &domain.Answer{Strategy: req.Search.Strategy, Hits: hits}
	useCache := uc.cacheEnabled(req)

	if useCache {
		lookup, err := uc.cache.Lookup(ctx, query, uc.threshold(req))
		switch {
		case err != nil:
			slog.Warn("cache_lookup_failed", "conversation_id", conversation.ID, "error", err)
		case lookup.Hit:
			conversation.Append(domain.RoleUser, query)
			conversation.Append(domain.RoleAssistant, lookup.Match.Entry.ResponseText)
			answer.Text = lookup.Match.Entry.ResponseText
			answer.Source = domain.AnswerFromCache
			answer.Similarity = lookup.Match.Similarity
			uc.publish(ctx, conversation, query, answer, uc.now().Sub(start))
			return answer, nil
		}
	}

	orchestrator := uc.orchestrator
	if !useCache {
		orchestrator = orchestrator.WithoutCache()
	}
	outcome, err := orchestrator.Generate(ctx, conversation, query, hits)
	if err != nil {
		return nil, err
	}

	answer.Text = outcome.Response
	answer.Source = domain.AnswerFromGeneration
	answer.Attempts = outcome.Attempts
	uc.publish(ctx, conversation, query, answer, uc.now().Sub(start))
	return answer, nil
}

func (uc *AnswerUseCase) cacheEnabled(req ports.AskRequest) bool {
	if uc.cache == nil {
		return false
	}
	if req.UseCache != nil {
		return *req.UseCache
	}
	return uc.cfg.CacheEnabled
}

func (uc *AnswerUseCase) threshold(req ports.AskRequest) float64 {
	if req.Threshold != nil {
		return *req.Threshold
	}
	return uc.cfg.Threshold
}

func (uc *AnswerUseCase) publish(ctx context.Context, conversation *domain.Conversation, query string, answer *domain.Answer, elapsed time.Duration) {
	if uc.publisher == nil {
		return
	}
	event := domain.AnswerEvent{
		SessionID:  conversation.ID,
		Query:      query,
		Strategy:   answer.Strategy.String(),
		Source:     answer.Source,
		Similarity: answer.Similarity,
		Attempts:   answer.Attempts,
		HitCount:   len(answer.Hits),
		Duration:   elapsed,
		AnsweredAt: uc.now().UTC(),
	}
	if err := uc.publisher.PublishAnswered(ctx, event); err != nil {
		slog.Warn("answer_event_publish_failed", "conversation_id", conversation.ID, "error", err)
	}
}
