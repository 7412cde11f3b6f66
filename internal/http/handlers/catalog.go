package handlers

import (
	"net/http"

	"imagestudio/internal/domain"
)

type styleEntry struct {
	Style     domain.Style `json:"style"`
	Label     string       `json:"label"`
	Specialty bool         `json:"specialty"`
	Allowed   bool         `json:"allowed"`
}

type quotaResponse struct {
	domain.QuotaState
	GeneralRemaining   int `json:"general_remaining"`
	SpecialtyRemaining int `json:"specialty_remaining"`
}

// Styles lists the catalog and marks what the caller's tier allows.
func (a *App) Styles(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	state, err := a.Subscriptions.GetUserSubscription(r.Context(), userID)
	if err != nil {
		a.pipelineError(w, r, err, nil)
		return
	}
	policy := domain.PolicyFor(state.Tier)
	styles := domain.Styles()
	items := make([]styleEntry, 0, len(styles))
	for _, s := range styles {
		items = append(items, styleEntry{Style: s, Label: s.Label(), Specialty: s.Specialty(), Allowed: policy.Allows(s)})
	}
	a.json(w, http.StatusOK, map[string]any{"tier": state.Tier, "styles": items})
}

// Quota returns the persisted counters of the caller.
func (a *App) Quota(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	state, err := a.Subscriptions.GetUserSubscription(r.Context(), userID)
	if err != nil {
		a.pipelineError(w, r, err, nil)
		return
	}
	a.json(w, http.StatusOK, quotaResponse{
		QuotaState:         *state,
		GeneralRemaining:   state.GeneralRemaining(),
		SpecialtyRemaining: state.SpecialtyRemaining(),
	})
}
