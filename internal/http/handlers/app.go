package handlers

import (
	"encoding/json"
	"net/http"

	"golang.org/x/sync/semaphore"

	"imagestudio/internal/domain"
	"imagestudio/internal/infra"
	"imagestudio/internal/middleware"
	"imagestudio/internal/pipeline"
	"imagestudio/internal/storage"
)

// Deps are the collaborators of the HTTP handlers.
type Deps struct {
	Pipeline      *pipeline.Pipeline
	Subscriptions domain.SubscriptionRepository
	Images        domain.ImageRepository
	Store         storage.ObjectStore
	Logger        infra.Logger
	// MaxConcurrentRuns bounds pipeline runs in flight across all users.
	MaxConcurrentRuns int64
}

type App struct {
	Pipeline      *pipeline.Pipeline
	Subscriptions domain.SubscriptionRepository
	Images        domain.ImageRepository
	Store         storage.ObjectStore
	Logger        infra.Logger

	runs *semaphore.Weighted
}

func NewApp(d Deps) *App {
	limit := d.MaxConcurrentRuns
	if limit <= 0 {
		limit = 1
	}
	return &App{
		Pipeline:      d.Pipeline,
		Subscriptions: d.Subscriptions,
		Images:        d.Images,
		Store:         d.Store,
		Logger:        d.Logger,
		runs:          semaphore.NewWeighted(limit),
	}
}

type errorBody struct {
	Error   string           `json:"error"`
	Message string           `json:"message"`
	Reason  string           `json:"reason,omitempty"`
	Result  *pipeline.Result `json:"result,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, errorBody{Error: errCode, Message: message})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}
