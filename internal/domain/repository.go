package domain

import "context"

// SubscriptionRepository reads the persisted quota counters of a user.
type SubscriptionRepository interface {
	GetUserSubscription(ctx context.Context, userID string) (*QuotaState, error)
}

// ImageRepository records and lists generated images. RecordGeneratedImage
// increments the matching counter atomically and fails with ErrQuotaExceeded
// when the limit was reached in the meantime.
type ImageRepository interface {
	RecordGeneratedImage(ctx context.Context, artifact *GeneratedArtifact) (string, error)
	ListUserImages(ctx context.Context, userID string, limit int) ([]GeneratedArtifact, error)
}

// UserRepository manages subscription tiers.
type UserRepository interface {
	SetTier(ctx context.Context, userID string, tier Tier, resetUsage bool) (*QuotaState, error)
}
