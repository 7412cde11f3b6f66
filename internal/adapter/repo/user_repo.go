package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"imagestudio/internal/domain"
	"imagestudio/internal/infra"
	"imagestudio/internal/sqlinline"
)

// UserRepositoryPG implements domain.SubscriptionRepository and
// domain.UserRepository on top of the users table.
type UserRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewUserRepository creates a new UserRepositoryPG.
func NewUserRepository(sql infra.SQLExecutor) *UserRepositoryPG {
	return &UserRepositoryPG{sql: sql}
}

// GetUserSubscription returns the quota state of a user, creating a FREE
// subscription on first sight.
func (r *UserRepositoryPG) GetUserSubscription(ctx context.Context, userID string) (*domain.QuotaState, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	free := domain.PolicyFor(domain.TierFree)
	row := r.sql.QueryRow(ctx, sqlinline.QEnsureUserSubscription, userID, free.GeneralLimit, free.SpecialtyLimit)
	state, err := scanQuotaState(row)
	if err != nil {
		return nil, fmt.Errorf("get user subscription: %w", err)
	}
	return state, nil
}

// SetTier assigns a tier and its policy limits. resetUsage zeroes both
// counters.
func (r *UserRepositoryPG) SetTier(ctx context.Context, userID string, tier domain.Tier, resetUsage bool) (*domain.QuotaState, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("set tier: %w", domain.ErrNotFound)
	}
	if _, err := domain.ParseTier(string(tier)); err != nil {
		return nil, err
	}
	policy := domain.PolicyFor(tier)
	row := r.sql.QueryRow(ctx, sqlinline.QUpsertUserTier, userID, string(policy.Tier), policy.GeneralLimit, policy.SpecialtyLimit, resetUsage)
	state, err := scanQuotaState(row)
	if err != nil {
		return nil, fmt.Errorf("set tier: %w", err)
	}
	return state, nil
}

func scanQuotaState(row pgx.Row) (*domain.QuotaState, error) {
	var (
		q    domain.QuotaState
		tier string
	)
	if err := row.Scan(&q.UserID, &tier, &q.ImagesGenerated, &q.ImagesLimit, &q.GhibliImagesGenerated, &q.GhibliImagesLimit, &q.LastRefresh); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	q.Tier = domain.Tier(tier)
	return &q, nil
}

var (
	_ domain.SubscriptionRepository = (*UserRepositoryPG)(nil)
	_ domain.UserRepository         = (*UserRepositoryPG)(nil)
)
