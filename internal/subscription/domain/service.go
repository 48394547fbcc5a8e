package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Service resolves subscription tiers. Resolve is a pure read and is
// called once per request so billing changes become visible promptly.
type Service interface {
	Resolve(ctx context.Context, userID snowflake.ID) (Tier, error)
	Get(ctx context.Context, userID snowflake.ID) (*Response, error)
	Upsert(ctx context.Context, req UpsertRequest) (*Response, error)
}

type UpsertRequest struct {
	UserID             string `json:"user_id"`
	Tier               string `json:"tier"`
	Status             string `json:"status"`
	ExternalBillingRef string `json:"external_billing_ref"`
}

type Response struct {
	UserID             string    `json:"user_id"`
	Tier               Tier      `json:"tier"`
	Status             Status    `json:"status"`
	ExternalBillingRef string    `json:"external_billing_ref,omitempty"`
	UpdatedAt          time.Time `json:"updated_at"`
}

var (
	// ErrSubscriptionUnknown means no usable subscription row exists for
	// the user. Absence is a provisioning gap, not the free tier.
	ErrSubscriptionUnknown = errors.New("subscription_unknown")
	ErrInvalidUserID       = errors.New("invalid_user_id")
	ErrInvalidTier         = errors.New("invalid_tier")
	ErrInvalidStatus       = errors.New("invalid_status")
)
