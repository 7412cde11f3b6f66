// Package analysis turns uploaded images into descriptive prompts with Gemini.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"imagestudio/internal/domain"
	"imagestudio/internal/infra"
)

// ErrNotConfigured is returned by Disabled. Its message matches the
// analysis fallback markers, so a missing key degrades like any other
// analysis failure.
var ErrNotConfigured = errors.New("failed to analyze image: gemini api key not configured")

// Formats accepted inline by the model. Anything else must be converted first.
var inlineFormats = map[string]string{
	"image/jpeg": "jpeg",
	"image/jpg":  "jpeg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/heic": "heic",
	"image/heif": "heif",
}

// GeminiAnalyzer implements pipeline.Analyzer with the Gemini SDK.
type GeminiAnalyzer struct {
	client *genai.Client
	model  string
	logger infra.Logger
}

// NewGeminiAnalyzer dials the Gemini API. Call Close when done.
func NewGeminiAnalyzer(ctx context.Context, apiKey, model string, logger infra.Logger) (*GeminiAnalyzer, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiAnalyzer{client: client, model: model, logger: logger}, nil
}

// Close releases the underlying client.
func (a *GeminiAnalyzer) Close() error {
	return a.client.Close()
}

// Analyze sends the image with the instruction and returns the text answer.
// Error messages carry the "failed to convert image" and "failed to analyze
// image" prefixes the pipeline uses to decide on a degraded retry.
func (a *GeminiAnalyzer) Analyze(ctx context.Context, img domain.ImagePayload, instruction string) (string, error) {
	format, err := imageFormat(img.MediaType)
	if err != nil {
		return "", err
	}
	if len(img.Data) == 0 {
		return "", errors.New("failed to convert image: empty payload")
	}

	model := a.client.GenerativeModel(a.model)
	resp, err := model.GenerateContent(ctx, genai.ImageData(format, img.Data), genai.Text(instruction))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("failed to analyze image: %w", err)
	}

	text := collectText(resp)
	if text == "" {
		return "", errors.New("failed to analyze image: empty response")
	}
	a.logger.Debug().Str("model", a.model).Int("bytes", len(img.Data)).Int("chars", len(text)).Msg("image analyzed")
	return text, nil
}

func imageFormat(mediaType string) (string, error) {
	format, ok := inlineFormats[strings.ToLower(strings.TrimSpace(mediaType))]
	if !ok {
		return "", fmt.Errorf("failed to convert image: unsupported media type %q", mediaType)
	}
	return format, nil
}

func collectText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
		if b.Len() > 0 {
			break
		}
	}
	return strings.TrimSpace(b.String())
}

// Disabled is used when no API key is configured.
type Disabled struct{}

func (Disabled) Analyze(ctx context.Context, img domain.ImagePayload, instruction string) (string, error) {
	return "", ErrNotConfigured
}
