// Package pipeline implements the image submission pipeline: validation,
// preview, analysis with bounded degradation, the quota gate and generation,
// driven by an explicit state machine per run.
package pipeline

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"imagestudio/internal/domain"
	"imagestudio/internal/infra"
	"imagestudio/internal/metrics"
)

var tracer = infra.Tracer("pipeline")

// Options tunes a Pipeline.
type Options struct {
	Limits  UploadLimits
	Tracker *RunTracker
}

// Pipeline runs submissions. It is safe for concurrent use; runs of the same
// user supersede each other.
type Pipeline struct {
	analysis   *AnalysisOrchestrator
	generation *GenerationOrchestrator
	tracker    *RunTracker
	limits     UploadLimits
	logger     infra.Logger
}

func New(analysis *AnalysisOrchestrator, generation *GenerationOrchestrator, opts Options, logger infra.Logger) *Pipeline {
	tracker := opts.Tracker
	if tracker == nil {
		tracker = NewRunTracker()
	}
	limits := opts.Limits
	if limits.General <= 0 && limits.Specialty <= 0 {
		limits = DefaultUploadLimits()
	}
	return &Pipeline{
		analysis:   analysis,
		generation: generation,
		tracker:    tracker,
		limits:     limits,
		logger:     logger,
	}
}

// UploadRequest submits an image for analysis and, for SubmitUpload, for
// generation in the given style.
type UploadRequest struct {
	UserID      string
	Candidate   domain.UploadCandidate
	Style       domain.Style
	AspectRatio domain.AspectRatio
}

// PromptRequest generates from a text prompt, typically an edited
// description.
type PromptRequest struct {
	UserID      string
	Prompt      string
	Style       domain.Style
	AspectRatio domain.AspectRatio
}

// Result is what a run surfaces. Fields are filled as stages complete; a
// superseded run surfaces only its states.
type Result struct {
	State    State                     `json:"state"`
	History  []State                   `json:"history"`
	Preview  string                    `json:"preview,omitempty"`
	Analysis *domain.AnalysisResult    `json:"analysis,omitempty"`
	Artifact *domain.GeneratedArtifact `json:"artifact,omitempty"`
	Quota    *domain.QuotaState        `json:"quota,omitempty"`
}

// UploadLimit returns the byte ceiling for uploads in style.
func (p *Pipeline) UploadLimit(style domain.Style) int64 {
	return p.limits.For(style)
}

// SubmitUpload runs the full flow: validate, preview, analyze, check quota,
// generate.
func (p *Pipeline) SubmitUpload(ctx context.Context, req UploadRequest) (*Result, error) {
	return p.execute(ctx, "upload", req.UserID, func(r *run) error {
		if err := r.analyzeUpload(req.Candidate, req.Style); err != nil {
			return err
		}
		return r.generate(r.result.Analysis.Description, req.Style, req.AspectRatio)
	})
}

// AnalyzeUpload stops once the description is available so the user can edit
// it before generating.
func (p *Pipeline) AnalyzeUpload(ctx context.Context, req UploadRequest) (*Result, error) {
	return p.execute(ctx, "analyze", req.UserID, func(r *run) error {
		return r.analyzeUpload(req.Candidate, req.Style)
	})
}

// SubmitPrompt generates from text without an upload.
func (p *Pipeline) SubmitPrompt(ctx context.Context, req PromptRequest) (*Result, error) {
	return p.execute(ctx, "prompt", req.UserID, func(r *run) error {
		return r.generate(req.Prompt, req.Style, req.AspectRatio)
	})
}

// Clear drops the user's current selection and supersedes its run.
func (p *Pipeline) Clear(userID string) {
	p.tracker.Clear(userID)
}

type run struct {
	ctx       context.Context
	p         *Pipeline
	m         *Machine
	ticket    Ticket
	result    *Result
	previewCh <-chan Preview
	logger    infra.Logger
}

func (p *Pipeline) execute(ctx context.Context, flow, userID string, body func(*run) error) (*Result, error) {
	ctx, span := tracer.Start(ctx, "pipeline."+flow, trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	runCtx, ticket := p.tracker.Begin(ctx, userID)
	defer p.tracker.Finish(ticket)

	logger := p.logger.With().Str("user_id", userID).Str("flow", flow).Uint64("run", ticket.Version).Logger()
	entered := time.Now()
	r := &run{
		ctx:    runCtx,
		p:      p,
		ticket: ticket,
		result: &Result{},
		logger: logger,
	}
	r.m = NewMachine(func(from, to State) {
		now := time.Now()
		metrics.StageDuration.WithLabelValues(string(from)).Observe(now.Sub(entered).Seconds())
		metrics.StateTransitionsTotal.WithLabelValues(string(to)).Inc()
		entered = now
		span.AddEvent("state", trace.WithAttributes(attribute.String("from", string(from)), attribute.String("to", string(to))))
		logger.Debug().Str("from", string(from)).Str("to", string(to)).Msg("pipeline transition")
	})

	err := body(r)
	if err != nil {
		err = r.fail(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	r.collectPreview()

	r.result.State = r.m.State()
	r.result.History = r.m.History()
	outcome := string(r.result.State)
	if errors.Is(err, domain.ErrRunSuperseded) {
		outcome = "superseded"
		r.result = &Result{State: r.result.State, History: r.result.History}
	}
	metrics.PipelineRunsTotal.WithLabelValues(flow, outcome).Inc()
	return r.result, err
}

// step transitions unless the run was superseded. Staleness is checked on
// whichever side of the transition is allowed to fail.
func (r *run) step(to State) error {
	if CanTransition(r.m.State(), StateFailed) && r.stale() {
		return domain.ErrRunSuperseded
	}
	if err := r.m.Transition(to); err != nil {
		return err
	}
	if CanTransition(to, StateFailed) && r.stale() {
		return domain.ErrRunSuperseded
	}
	return nil
}

func (r *run) stale() bool {
	return !r.p.tracker.Current(r.ticket)
}

func (r *run) fail(err error) error {
	if r.stale() && (errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrRunSuperseded)) {
		err = domain.ErrRunSuperseded
	}
	if ferr := r.m.Fail(err); ferr != nil {
		r.logger.Error().Err(ferr).AnErr("cause", err).Msg("pipeline could not enter failed state")
	}
	switch {
	case errors.Is(err, domain.ErrRunSuperseded):
		r.logger.Info().Msg("pipeline run superseded")
	case errors.Is(err, domain.ErrQuotaExceeded):
		r.logger.Info().Err(err).Msg("pipeline run refused by quota")
	default:
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			r.logger.Info().Err(err).Msg("upload rejected")
		} else {
			r.logger.Error().Err(err).Msg("pipeline run failed")
		}
	}
	return err
}

func (r *run) analyzeUpload(c domain.UploadCandidate, style domain.Style) error {
	if err := r.step(StateValidating); err != nil {
		return err
	}
	if err := Validate(c, r.p.limits.For(style)); err != nil {
		return err
	}
	c.MediaType = ResolveMediaType(c)

	if err := r.step(StatePreviewing); err != nil {
		return err
	}
	r.previewCh = MaterializePreview(r.ctx, c)

	if err := r.step(StateAnalyzing); err != nil {
		return err
	}
	ctx, span := tracer.Start(r.ctx, "pipeline.analyze")
	defer span.End()
	var fallbackErr error
	analysis, err := r.p.analysis.Analyze(ctx, c.Payload(), func() {
		span.AddEvent("fallback")
		fallbackErr = r.m.Transition(StateAnalysisFallback)
	})
	if fallbackErr != nil {
		return fallbackErr
	}
	if err != nil {
		span.RecordError(err)
		return err
	}
	r.result.Analysis = analysis
	return r.step(StateAnalyzed)
}

func (r *run) generate(prompt string, style domain.Style, aspect domain.AspectRatio) error {
	if err := r.step(StateQuotaCheck); err != nil {
		return err
	}
	state, err := r.p.generation.CheckQuota(r.ctx, r.ticket.UserID, style)
	if state != nil {
		r.result.Quota = state
	}
	if err != nil {
		return err
	}

	if err := r.step(StateGenerating); err != nil {
		return err
	}
	ctx, span := tracer.Start(r.ctx, "pipeline.generate", trace.WithAttributes(attribute.String("style", string(style))))
	defer span.End()
	artifact, refreshed, err := r.p.generation.Generate(ctx, *state, domain.GenerationRequest{
		UserID:      r.ticket.UserID,
		Prompt:      prompt,
		Style:       style,
		AspectRatio: aspect,
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	r.result.Artifact = artifact
	if refreshed != nil {
		r.result.Quota = refreshed
	}
	return r.step(StateCompleted)
}

func (r *run) collectPreview() {
	if r.previewCh == nil {
		return
	}
	pv, ok := <-r.previewCh
	if !ok {
		return
	}
	if pv.Err != nil {
		r.logger.Debug().Err(pv.Err).Msg("preview unavailable")
		return
	}
	r.result.Preview = pv.DataURI
}
