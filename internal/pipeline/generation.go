package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"imagestudio/internal/domain"
	"imagestudio/internal/infra"
	"imagestudio/internal/metrics"
)

// Generator produces an image for a prompt.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationOutput, error)
}

// Discarder is implemented by generators that can remove an output that was
// never recorded.
type Discarder interface {
	Discard(ctx context.Context, out *domain.GenerationOutput) error
}

// Persistence is the read-through quota store: it reads state and records
// images, and never accepts a locally computed counter.
type Persistence interface {
	domain.SubscriptionRepository
	RecordGeneratedImage(ctx context.Context, artifact *domain.GeneratedArtifact) (string, error)
}

// GenerationOrchestrator gates, generates, records and re-reads quota.
type GenerationOrchestrator struct {
	generator Generator
	store     Persistence
	quality   string
	logger    infra.Logger
	now       func() time.Time
}

// NewGenerationOrchestrator builds an orchestrator. quality is forwarded to
// the generator unchanged.
func NewGenerationOrchestrator(generator Generator, store Persistence, quality string, logger infra.Logger) *GenerationOrchestrator {
	return &GenerationOrchestrator{
		generator: generator,
		store:     store,
		quality:   quality,
		logger:    logger,
		now:       time.Now,
	}
}

// CheckQuota loads the user's state and applies the quota gate.
func (g *GenerationOrchestrator) CheckQuota(ctx context.Context, userID string, style domain.Style) (*domain.QuotaState, error) {
	state, err := g.store.GetUserSubscription(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load quota: %w", err)
	}
	if err := domain.CheckQuota(*state, style); err != nil {
		var qe *domain.QuotaExceededError
		if errors.As(err, &qe) {
			metrics.QuotaRefusalsTotal.WithLabelValues(string(qe.Reason), string(state.Tier)).Inc()
		}
		return state, err
	}
	return state, nil
}

// Generate produces, records and returns an artifact, along with the quota
// state re-read after recording. The gate is applied to state first, so a
// refused style never reaches the generator. Generator errors are returned
// as *domain.GenerationError without retry.
func (g *GenerationOrchestrator) Generate(ctx context.Context, state domain.QuotaState, req domain.GenerationRequest) (*domain.GeneratedArtifact, *domain.QuotaState, error) {
	if err := domain.CheckQuota(state, req.Style); err != nil {
		return nil, nil, err
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		return nil, nil, domain.ErrInvalidPrompt
	}
	if req.Quality == "" {
		req.Quality = g.quality
	}
	if req.AspectRatio == "" {
		req.AspectRatio = domain.AspectSquare
	}

	out, err := g.generator.Generate(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		g.logger.Error().Err(err).Str("user_id", req.UserID).Str("style", string(req.Style)).Msg("image generation failed")
		return nil, nil, &domain.GenerationError{Err: err}
	}
	if out == nil || strings.TrimSpace(out.URL) == "" {
		return nil, nil, &domain.GenerationError{Err: errors.New("generator returned no image url")}
	}

	artifact := &domain.GeneratedArtifact{
		UserID:      req.UserID,
		URL:         out.URL,
		Prompt:      req.Prompt,
		Style:       req.Style,
		AspectRatio: req.AspectRatio,
		StorageKey:  out.StorageKey,
		CreatedAt:   g.now().UTC(),
	}
	// Recording must not be abandoned because the caller went away; the
	// image already exists and the counter has to reflect it.
	recordCtx := context.WithoutCancel(ctx)
	id, err := g.store.RecordGeneratedImage(recordCtx, artifact)
	if err != nil {
		g.discard(recordCtx, out)
		if errors.Is(err, domain.ErrQuotaExceeded) {
			reason := domain.QuotaGeneralLimitReached
			if req.Style.Specialty() {
				reason = domain.QuotaStyleLimitReached
			}
			metrics.QuotaRefusalsTotal.WithLabelValues(string(reason), string(state.Tier)).Inc()
			return nil, nil, &domain.QuotaExceededError{Reason: reason, Style: req.Style, Tier: state.Tier}
		}
		return nil, nil, fmt.Errorf("record generated image: %w", err)
	}
	artifact.ID = id

	refreshed, err := g.store.GetUserSubscription(recordCtx, req.UserID)
	if err != nil {
		g.logger.Warn().Err(err).Str("user_id", req.UserID).Msg("quota refresh after generation failed")
		return artifact, nil, nil
	}
	return artifact, refreshed, nil
}

func (g *GenerationOrchestrator) discard(ctx context.Context, out *domain.GenerationOutput) {
	d, ok := g.generator.(Discarder)
	if !ok {
		return
	}
	if err := d.Discard(ctx, out); err != nil {
		g.logger.Warn().Err(err).Str("storage_key", out.StorageKey).Msg("failed to discard unrecorded image")
	}
}
