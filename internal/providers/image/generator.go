// Package image adapts the Gemini client to the pipeline's generator and
// stores every produced image in the object store.
package image

import (
	"context"
	"fmt"
	"mime"
	"strings"

	"github.com/google/uuid"

	"imagestudio/internal/domain"
	"imagestudio/internal/infra"
	"imagestudio/internal/providers/genai"
	"imagestudio/internal/storage"
)

// ImageClient is satisfied by *genai.Client.
type ImageClient interface {
	GenerateImage(ctx context.Context, req genai.ImageRequest) (*genai.ImageAsset, error)
	Model() string
}

// StoredGenerator generates an image and uploads it under
// generated/<user>/<id>.<ext>.
type StoredGenerator struct {
	client ImageClient
	store  storage.ObjectStore
	logger infra.Logger
	newID  func() string
}

func NewStoredGenerator(client ImageClient, store storage.ObjectStore, logger infra.Logger) *StoredGenerator {
	return &StoredGenerator{
		client: client,
		store:  store,
		logger: logger,
		newID:  func() string { return uuid.NewString() },
	}
}

// Generate implements pipeline.Generator. The returned prompt is the user
// facing description, not the styled instruction sent to the model.
func (g *StoredGenerator) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationOutput, error) {
	id := g.newID()
	asset, err := g.client.GenerateImage(ctx, genai.ImageRequest{
		Prompt:      BuildStylePrompt(req.Prompt, req.Style),
		AspectRatio: string(req.AspectRatio),
		Quality:     req.Quality,
		RequestID:   id,
	})
	if err != nil {
		return nil, err
	}
	if asset == nil || len(asset.Data) == 0 {
		return nil, genai.ErrNoImage
	}

	format := asset.Format
	if format == "" {
		format = "image/png"
	}
	key := fmt.Sprintf("generated/%s/%s%s", storageSegment(req.UserID), id, extensionFor(format))
	url, err := g.store.Put(ctx, key, asset.Data, format)
	if err != nil {
		return nil, fmt.Errorf("store generated image: %w", err)
	}

	g.logger.Debug().
		Str("user_id", req.UserID).
		Str("model", g.client.Model()).
		Str("storage_key", key).
		Bool("synthetic", asset.Synthetic).
		Msg("generated image stored")

	return &domain.GenerationOutput{
		URL:        url,
		Prompt:     req.Prompt,
		StorageKey: key,
		MediaType:  format,
	}, nil
}

// Discard removes an image that could not be recorded.
func (g *StoredGenerator) Discard(ctx context.Context, out *domain.GenerationOutput) error {
	if out == nil || out.StorageKey == "" {
		return nil
	}
	return g.store.Delete(ctx, out.StorageKey)
}

func extensionFor(mediaType string) string {
	switch mediaType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	}
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

func storageSegment(userID string) string {
	s := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, userID)
	if s == "" {
		return "anonymous"
	}
	return s
}
