package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/movie-search-assistant/internal/core/domain"
	"github.com/kirillkom/movie-search-assistant/internal/core/ports"
)

type responseCacheWriter interface {
	Store(ctx context.Context, queryText, promptText, responseText string) error
}

// GenerationOrchestrator runs one generation turn on a cache miss:
// Idle -> PromptAssembled -> AwaitingResponse -> Succeeded | Failed.
type GenerationOrchestrator struct {
	generator ports.GenerationService
	retrier   ports.Retrier
	cache     responseCacheWriter
}

func NewGenerationOrchestrator(
	generator ports.GenerationService,
	retrier ports.Retrier,
	cache responseCacheWriter,
) *GenerationOrchestrator {
	if retrier == nil {
		retrier = singleAttempt{}
	}
	return &GenerationOrchestrator{
		generator: generator,
		retrier:   retrier,
		cache:     cache,
	}
}

// WithoutCache returns an orchestrator that never writes to the response cache.
func (o *GenerationOrchestrator) WithoutCache() *GenerationOrchestrator {
	return &GenerationOrchestrator{generator: o.generator, retrier: o.retrier}
}

func (o *GenerationOrchestrator) Generate(
	ctx context.Context,
	conversation *domain.Conversation,
	query string,
	hits []domain.RankedHit,
) (domain.GenerationOutcome, error) {
	out := domain.GenerationOutcome{
		State:       domain.GenerationIdle,
		Transitions: []domain.GenerationState{domain.GenerationIdle},
	}
	if conversation == nil {
		return out, domain.WrapError(domain.ErrInvalidInput, "generate answer", fmt.Errorf("conversation is required"))
	}

	out.Prompt = buildAnswerPrompt(query, hits)
	advance(&out, domain.GenerationPromptAssembled)

	conversation.Append(domain.RoleUser, out.Prompt)
	history := conversation.Messages()
	advance(&out, domain.GenerationAwaitingResponse)

	var response string
	attempts, err := o.retrier.Run(ctx, "generation.complete", func(callCtx context.Context) error {
		text, err := o.generator.Complete(callCtx, history)
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			return domain.NewGenerationError(domain.GenerationUnknownFailure, fmt.Errorf("empty completion"))
		}
		response = text
		return nil
	}, domain.IsRateLimited)
	out.Attempts = attempts

	if err != nil {
		advance(&out, domain.GenerationFailed)
		out.Failure = domain.GenerationFailureOf(err)
		if !domain.IsKind(err, domain.ErrGeneration) {
			err = domain.NewGenerationError(out.Failure, err)
		}
		slog.Warn("generation_failed",
			"conversation_id", conversation.ID,
			"attempts", attempts,
			"failure", string(out.Failure),
			"error", err,
		)
		return out, fmt.Errorf("generate answer: %w", err)
	}

	conversation.Append(domain.RoleAssistant, response)
	out.Response = response
	advance(&out, domain.GenerationSucceeded)

	if o.cache != nil {
		if err := o.cache.Store(ctx, query, out.Prompt, response); err != nil {
			out.CacheErr = err
			slog.Warn("cache_store_failed", "conversation_id", conversation.ID, "error", err)
		}
	}
	return out, nil
}

func advance(out *domain.GenerationOutcome, next domain.GenerationState) {
	out.State = next
	out.Transitions = append(out.Transitions, next)
}

type singleAttempt struct{}

func (singleAttempt) Run(ctx context.Context, _ string, fn func(context.Context) error, _ func(error) bool) (int, error) {
	return 1, fn(ctx)
}
