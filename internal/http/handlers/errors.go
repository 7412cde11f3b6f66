package handlers

import (
	"context"
	"errors"
	"net/http"

	"imagestudio/internal/domain"
	"imagestudio/internal/middleware"
	"imagestudio/internal/pipeline"
)

// pipelineError writes the response for a failed run. The partial result is
// included so clients can show the state the run reached.
func (a *App) pipelineError(w http.ResponseWriter, r *http.Request, err error, res *pipeline.Result) {
	body := errorBody{Message: err.Error(), Result: res}
	status := http.StatusInternalServerError

	var (
		ve *domain.ValidationError
		qe *domain.QuotaExceededError
		ae *domain.AnalysisError
		fe *domain.AnalysisFallbackError
		ge *domain.GenerationError
	)
	switch {
	case errors.As(err, &ve):
		body.Error, body.Reason = "invalid_upload", string(ve.Reason)
		switch ve.Reason {
		case domain.ValidationUnsupportedType:
			status = http.StatusUnsupportedMediaType
		case domain.ValidationTooLarge:
			status = http.StatusRequestEntityTooLarge
		default:
			status = http.StatusBadRequest
		}
	case errors.As(err, &qe):
		status, body.Error, body.Reason = http.StatusForbidden, "quota_exceeded", string(qe.Reason)
	case errors.Is(err, domain.ErrQuotaExceeded):
		status, body.Error = http.StatusForbidden, "quota_exceeded"
	case errors.Is(err, domain.ErrRunSuperseded):
		status, body.Error = http.StatusConflict, "superseded"
	case errors.As(err, &fe), errors.As(err, &ae):
		status, body.Error = http.StatusBadGateway, "analysis_failed"
	case errors.As(err, &ge):
		status, body.Error = http.StatusBadGateway, "generation_failed"
	case errors.Is(err, errMalformedUpload):
		status, body.Error = http.StatusBadRequest, "bad_request"
	case errors.Is(err, domain.ErrInvalidPrompt):
		status, body.Error = http.StatusBadRequest, "invalid_prompt"
	case errors.Is(err, domain.ErrUnauthorized):
		status, body.Error = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status, body.Error, body.Message = http.StatusServiceUnavailable, "unavailable", "request cancelled"
	default:
		body.Error, body.Message = "internal", "internal error"
		a.Logger.Error().Err(err).Str("request_id", middleware.RequestIDFromContext(r.Context())).Msg("request failed")
	}
	a.json(w, status, body)
}
