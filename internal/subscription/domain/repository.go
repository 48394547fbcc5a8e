package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*SubscriptionState, error)
	Upsert(ctx context.Context, db *gorm.DB, state *SubscriptionState) error
}
