package repo

import (
	"context"
	"fmt"
	"strings"

	"imagestudio/internal/domain"
	"imagestudio/internal/infra"
	"imagestudio/internal/sqlinline"
)

const defaultListLimit = 100

// ImageRepositoryPG implements domain.ImageRepository.
type ImageRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewImageRepository constructs a new image repository instance.
func NewImageRepository(sql infra.SQLExecutor) *ImageRepositoryPG {
	return &ImageRepositoryPG{sql: sql}
}

// RecordGeneratedImage stores the artifact and bumps the matching counter in
// one statement. It returns domain.ErrQuotaExceeded when the pool was used up
// by a concurrent run.
func (r *ImageRepositoryPG) RecordGeneratedImage(ctx context.Context, a *domain.GeneratedArtifact) (string, error) {
	if a == nil || strings.TrimSpace(a.UserID) == "" || strings.TrimSpace(a.URL) == "" {
		return "", fmt.Errorf("record generated image: user id and url are required")
	}
	row := r.sql.QueryRow(ctx, sqlinline.QRecordGeneratedImage,
		a.UserID,
		a.Style.Specialty(),
		a.URL,
		a.Prompt,
		string(a.Style),
		string(a.AspectRatio),
		a.StorageKey,
	)
	var id string
	if err := row.Scan(&id); err != nil {
		if infra.IsNoRows(err) {
			return "", domain.ErrQuotaExceeded
		}
		return "", fmt.Errorf("record generated image: %w", err)
	}
	return id, nil
}

// ListUserImages returns the newest artifacts of a user first.
func (r *ImageRepositoryPG) ListUserImages(ctx context.Context, userID string, limit int) ([]domain.GeneratedArtifact, error) {
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListUserImages, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list user images: %w", err)
	}
	defer rows.Close()

	var out []domain.GeneratedArtifact
	for rows.Next() {
		var (
			a      domain.GeneratedArtifact
			style  string
			aspect string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.URL, &a.Prompt, &style, &aspect, &a.StorageKey, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user image: %w", err)
		}
		a.Style = domain.Style(style)
		a.AspectRatio = domain.AspectRatio(aspect)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list user images: %w", err)
	}
	return out, nil
}

var _ domain.ImageRepository = (*ImageRepositoryPG)(nil)
