package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Tier is the subscription level of a user. Tiers are ordered:
// free < premium < pro.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
	TierPro     Tier = "pro"
)

// Rank returns the ordinal position of the tier, with unknown tiers
// below free.
func (t Tier) Rank() int {
	switch t {
	case TierFree:
		return 1
	case TierPremium:
		return 2
	case TierPro:
		return 3
	default:
		return 0
	}
}

// Valid reports whether the tier is one of the known levels.
func (t Tier) Valid() bool {
	return t.Rank() > 0
}

// ParseTier normalizes a raw tier value.
func ParseTier(value string) (Tier, bool) {
	t := Tier(strings.ToLower(strings.TrimSpace(value)))
	return t, t.Valid()
}

type Status string

const (
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

// SubscriptionState is the externally owned billing record for a user.
// This service only reads it; billing events write it out of band. At
// most one row exists per user.
type SubscriptionState struct {
	ID                snowflake.ID `gorm:"column:id;primaryKey" json:"id"`
	UserID            snowflake.ID `gorm:"column:user_id;uniqueIndex:ux_subscription_states_user" json:"user_id"`
	Tier              Tier         `gorm:"column:tier" json:"tier"`
	Status            Status       `gorm:"column:status" json:"status"`
	ExternalBillingRef string      `gorm:"column:external_billing_ref" json:"external_billing_ref"`
	CreatedAt         time.Time    `gorm:"column:created_at" json:"created_at"`
	UpdatedAt         time.Time    `gorm:"column:updated_at" json:"updated_at"`
}

func (SubscriptionState) TableName() string {
	return "subscription_states"
}
