package repository

import (
	"context"

	"github.com/astralhq/oraculum/internal/subscription/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.SubscriptionState, error) {
	var state domain.SubscriptionState
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, tier, status, external_billing_ref, created_at, updated_at
		 FROM subscription_states WHERE user_id = ?`,
		userID,
	).Scan(&state).Error
	if err != nil {
		return nil, err
	}
	if state.ID == 0 {
		return nil, nil
	}
	return &state, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, state *domain.SubscriptionState) error {
	if state == nil {
		return gorm.ErrInvalidData
	}

	res := db.WithContext(ctx).Exec(
		`UPDATE subscription_states
		 SET tier = ?, status = ?, external_billing_ref = ?, updated_at = ?
		 WHERE user_id = ?`,
		state.Tier,
		state.Status,
		state.ExternalBillingRef,
		state.UpdatedAt,
		state.UserID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	return db.WithContext(ctx).Exec(
		`INSERT INTO subscription_states (
			id, user_id, tier, status, external_billing_ref, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		state.ID,
		state.UserID,
		state.Tier,
		state.Status,
		state.ExternalBillingRef,
		state.CreatedAt,
		state.UpdatedAt,
	).Error
}
