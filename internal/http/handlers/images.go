package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"

	"imagestudio/internal/domain"
	"imagestudio/internal/pipeline"
	"imagestudio/internal/storage"
	"imagestudio/pkg/zip"
)

const maxPromptBytes = 64 << 10

type imageGenerateRequest struct {
	Prompt      string `json:"prompt"`
	Style       string `json:"style"`
	AspectRatio string `json:"aspect_ratio"`
}

// ImagesGenerate generates from an edited prompt without an upload.
func (a *App) ImagesGenerate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req imageGenerateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPromptBytes)).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	style, _ := domain.ParseStyle(req.Style)

	if err := a.runs.Acquire(r.Context(), 1); err != nil {
		a.pipelineError(w, r, err, nil)
		return
	}
	defer a.runs.Release(1)

	res, err := a.Pipeline.SubmitPrompt(r.Context(), pipeline.PromptRequest{
		UserID:      userID,
		Prompt:      req.Prompt,
		Style:       style,
		AspectRatio: domain.NormalizeAspectRatio(req.AspectRatio),
	})
	if err != nil {
		a.pipelineError(w, r, err, res)
		return
	}
	a.json(w, http.StatusOK, res)
}

// ImagesList returns the caller's gallery, newest first.
func (a *App) ImagesList(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := a.Images.ListUserImages(r.Context(), userID, limit)
	if err != nil {
		a.pipelineError(w, r, err, nil)
		return
	}
	if items == nil {
		items = []domain.GeneratedArtifact{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// ImagesArchive streams the caller's gallery as a zip. Images missing from
// the store are skipped.
func (a *App) ImagesArchive(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	items, err := a.Images.ListUserImages(r.Context(), userID, 0)
	if err != nil {
		a.pipelineError(w, r, err, nil)
		return
	}

	assets := make([]zip.Asset, 0, len(items))
	for _, item := range items {
		if item.StorageKey == "" {
			continue
		}
		data, err := a.Store.Get(r.Context(), item.StorageKey)
		if err != nil {
			if !errors.Is(err, storage.ErrObjectNotFound) {
				a.Logger.Warn().Err(err).Str("image_id", item.ID).Msg("archive: failed to load image")
			}
			continue
		}
		assets = append(assets, zip.Asset{
			Filename: archiveName(item),
			Data:     data,
			Modified: item.CreatedAt,
		})
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "images-"+userID+".zip"))
	w.WriteHeader(http.StatusOK)
	if err := zip.Write(w, assets); err != nil {
		a.Logger.Warn().Err(err).Str("user_id", userID).Msg("archive: write failed")
	}
}

func archiveName(item domain.GeneratedArtifact) string {
	ext := path.Ext(item.StorageKey)
	if ext == "" {
		ext = ".png"
	}
	name := strings.ReplaceAll(string(item.Style), "/", "_")
	if name == "" {
		name = "image"
	}
	return fmt.Sprintf("%s-%s-%s%s", item.CreatedAt.UTC().Format("20060102-150405"), name, item.ID, ext)
}
