package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"imagestudio/internal/domain"
	"imagestudio/internal/pipeline"
)

const (
	uploadField = "image"
	// multipartOverhead covers form fields and part headers around the file.
	multipartOverhead = 1 << 20
	multipartMemory   = 8 << 20
)

// AnalyzeUpload validates an upload and returns its description for editing.
func (a *App) AnalyzeUpload(w http.ResponseWriter, r *http.Request) {
	a.runUpload(w, r, a.Pipeline.AnalyzeUpload)
}

// GenerateFromUpload runs the whole pipeline on an upload.
func (a *App) GenerateFromUpload(w http.ResponseWriter, r *http.Request) {
	a.runUpload(w, r, a.Pipeline.SubmitUpload)
}

// ClearUpload drops the caller's selection; an in-flight run is superseded.
func (a *App) ClearUpload(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	a.Pipeline.Clear(userID)
	w.WriteHeader(http.StatusNoContent)
}

type uploadRunner func(ctx context.Context, req pipeline.UploadRequest) (*pipeline.Result, error)

func (a *App) runUpload(w http.ResponseWriter, r *http.Request, run uploadRunner) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}

	req, err := a.readUpload(w, r)
	if err != nil {
		a.pipelineError(w, r, err, nil)
		return
	}
	req.UserID = userID

	if err := a.runs.Acquire(r.Context(), 1); err != nil {
		a.pipelineError(w, r, err, nil)
		return
	}
	defer a.runs.Release(1)

	res, err := run(r.Context(), req)
	if err != nil {
		a.pipelineError(w, r, err, res)
		return
	}
	a.json(w, http.StatusOK, res)
}

var errMalformedUpload = errors.New("expected a multipart form with an image field")

// readUpload parses the multipart form. The body is capped a little above the
// largest upload limit; per-style limits are enforced by the pipeline.
func (a *App) readUpload(w http.ResponseWriter, r *http.Request) (pipeline.UploadRequest, error) {
	limit := max(a.Pipeline.UploadLimit(domain.StyleGhibli), a.Pipeline.UploadLimit(domain.StylePhotorealistic))
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return pipeline.UploadRequest{}, &domain.ValidationError{Reason: domain.ValidationTooLarge, Limit: limit}
		}
		return pipeline.UploadRequest{}, errMalformedUpload
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	style, _ := domain.ParseStyle(r.FormValue("style"))
	file, header, err := r.FormFile(uploadField)
	if err != nil {
		return pipeline.UploadRequest{}, errMalformedUpload
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return pipeline.UploadRequest{}, fmt.Errorf("read upload: %w", err)
	}
	return pipeline.UploadRequest{
		Candidate: domain.UploadCandidate{
			Filename:  header.Filename,
			MediaType: header.Header.Get("Content-Type"),
			Size:      header.Size,
			Data:      data,
		},
		Style:       style,
		AspectRatio: domain.NormalizeAspectRatio(r.FormValue("aspect_ratio")),
	}, nil
}
