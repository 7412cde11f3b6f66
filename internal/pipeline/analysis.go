package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"imagestudio/internal/domain"
	"imagestudio/internal/imaging"
	"imagestudio/internal/infra"
	"imagestudio/internal/metrics"
)

// AnalysisInstruction is sent with every image to the analysis backend.
const AnalysisInstruction = "Describe this image in enough detail to recreate a similar image"

// ErrEmptyDescription is returned when the backend answers with no text.
var ErrEmptyDescription = errors.New("failed to analyze image: empty description")

// Analyzer converts an image into a descriptive prompt.
type Analyzer interface {
	Analyze(ctx context.Context, img domain.ImagePayload, instruction string) (string, error)
}

// DegradationStrategy rewrites a payload into a form the analyzer is more
// likely to accept.
type DegradationStrategy interface {
	Name() string
	Degrade(ctx context.Context, img domain.ImagePayload) (domain.ImagePayload, error)
}

// DownscaleStrategy re-encodes the image as a JPEG no larger than
// MaxDimension on either side.
type DownscaleStrategy struct {
	MaxDimension int
	Quality      int
}

// DefaultDegradationStrategies returns the standard fallback list: a single
// 1024px, quality 85 JPEG re-encode.
func DefaultDegradationStrategies() []DegradationStrategy {
	return []DegradationStrategy{DownscaleStrategy{
		MaxDimension: imaging.DefaultMaxDimension,
		Quality:      imaging.DefaultJPEGQuality,
	}}
}

func (s DownscaleStrategy) Name() string { return "downscale_jpeg" }

func (s DownscaleStrategy) Degrade(ctx context.Context, img domain.ImagePayload) (domain.ImagePayload, error) {
	if err := ctx.Err(); err != nil {
		return domain.ImagePayload{}, err
	}
	out, err := imaging.Downscale(img.Data, s.MaxDimension, s.Quality)
	if err != nil {
		return domain.ImagePayload{}, fmt.Errorf("failed to convert image: %w", err)
	}
	return domain.ImagePayload{Data: out, MediaType: "image/jpeg"}, nil
}

// fallbackMarkers are matched case-insensitively against analysis errors.
var fallbackMarkers = []string{"failed to convert", "failed to analyze"}

// FallbackEligible reports whether err should trigger the degradation
// strategies.
func FallbackEligible(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range fallbackMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// AnalysisOrchestrator runs the primary analysis call and, when it fails with
// a conversion or analysis error, each degradation strategy once in order.
type AnalysisOrchestrator struct {
	client      Analyzer
	strategies  []DegradationStrategy
	instruction string
	logger      infra.Logger
}

// NewAnalysisOrchestrator builds an orchestrator. A nil strategy list means
// DefaultDegradationStrategies.
func NewAnalysisOrchestrator(client Analyzer, strategies []DegradationStrategy, logger infra.Logger) *AnalysisOrchestrator {
	if strategies == nil {
		strategies = DefaultDegradationStrategies()
	}
	return &AnalysisOrchestrator{
		client:      client,
		strategies:  strategies,
		instruction: AnalysisInstruction,
		logger:      logger,
	}
}

// Analyze describes img. onFallback is invoked once, before the first
// degradation strategy runs. Calls are strictly sequential.
func (o *AnalysisOrchestrator) Analyze(ctx context.Context, img domain.ImagePayload, onFallback func()) (*domain.AnalysisResult, error) {
	desc, err := o.describe(ctx, img)
	if err == nil {
		return &domain.AnalysisResult{Description: desc}, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if !FallbackEligible(err) {
		o.logger.Warn().Err(err).Msg("image analysis failed")
		return nil, &domain.AnalysisError{Err: err}
	}

	o.logger.Warn().Err(err).Int("strategies", len(o.strategies)).Msg("image analysis failed, trying degraded inputs")
	if onFallback != nil {
		onFallback()
	}

	var attempts []error
	for _, strategy := range o.strategies {
		name := strategy.Name()
		degraded, derr := strategy.Degrade(ctx, img)
		if derr == nil {
			var desc string
			desc, derr = o.describe(ctx, degraded)
			if derr == nil {
				metrics.AnalysisFallbacksTotal.WithLabelValues(name, "success").Inc()
				o.logger.Info().Str("strategy", name).Msg("image analysis recovered with degraded input")
				return &domain.AnalysisResult{Description: desc, Degraded: true, Strategy: name}, nil
			}
		}
		metrics.AnalysisFallbacksTotal.WithLabelValues(name, "failure").Inc()
		o.logger.Warn().Err(derr).Str("strategy", name).Msg("degradation strategy failed")
		attempts = append(attempts, fmt.Errorf("%s: %w", name, derr))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
	}
	return nil, &domain.AnalysisFallbackError{Primary: err, Attempts: attempts}
}

func (o *AnalysisOrchestrator) describe(ctx context.Context, img domain.ImagePayload) (string, error) {
	desc, err := o.client.Analyze(ctx, img, o.instruction)
	if err != nil {
		return "", err
	}
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return "", ErrEmptyDescription
	}
	return desc, nil
}
