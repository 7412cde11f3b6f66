package domain

import "time"

// QuotaState mirrors the persisted per-user counters. It is only ever read
// from the store; nothing in the service increments it locally.
type QuotaState struct {
	UserID                string    `json:"user_id"`
	Tier                  Tier      `json:"tier"`
	ImagesGenerated       int       `json:"images_generated"`
	ImagesLimit           int       `json:"images_limit"`
	GhibliImagesGenerated int       `json:"ghibli_images_generated"`
	GhibliImagesLimit     int       `json:"ghibli_images_limit"`
	LastRefresh           time.Time `json:"last_refresh"`
}

// GeneralRemaining returns the images left in the general pool, or
// Unlimited.
func (q QuotaState) GeneralRemaining() int {
	return remaining(q.ImagesGenerated, q.ImagesLimit)
}

// SpecialtyRemaining returns the images left in the specialty pool, or
// Unlimited.
func (q QuotaState) SpecialtyRemaining() int {
	return remaining(q.GhibliImagesGenerated, q.GhibliImagesLimit)
}

func remaining(used, limit int) int {
	if limit < 0 {
		return Unlimited
	}
	if used >= limit {
		return 0
	}
	return limit - used
}

// CheckQuota is the quota gate. It returns nil when the style may be
// generated for the given state, or a *QuotaExceededError naming the reason.
// Specialty styles are counted only against the specialty pool.
func CheckQuota(state QuotaState, style Style) error {
	policy := PolicyFor(state.Tier)
	if !policy.Allows(style) {
		return &QuotaExceededError{Reason: QuotaStyleNotInTier, Style: style, Tier: policy.Tier}
	}
	if style.Specialty() {
		if state.SpecialtyRemaining() == 0 {
			return &QuotaExceededError{Reason: QuotaStyleLimitReached, Style: style, Tier: policy.Tier}
		}
		return nil
	}
	if state.GeneralRemaining() == 0 {
		return &QuotaExceededError{Reason: QuotaGeneralLimitReached, Style: style, Tier: policy.Tier}
	}
	return nil
}
