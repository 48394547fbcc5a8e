// Package seed provisions demo subscription rows for non-production
// environments, one user per tier.
package seed

import (
	"time"

	subscriptiondomain "github.com/astralhq/oraculum/internal/subscription/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Demo users keep stable IDs so local clients can mint tokens for them.
const (
	DemoFreeUserID    snowflake.ID = 1001
	DemoPremiumUserID snowflake.ID = 1002
	DemoProUserID     snowflake.ID = 1003
)

var demoTiers = []struct {
	userID snowflake.ID
	tier   subscriptiondomain.Tier
}{
	{DemoFreeUserID, subscriptiondomain.TierFree},
	{DemoPremiumUserID, subscriptiondomain.TierPremium},
	{DemoProUserID, subscriptiondomain.TierPro},
}

// EnsureDemoSubscriptions inserts one subscription row per tier when the
// user has none yet. Existing rows are left untouched so local tier
// changes survive restarts.
func EnsureDemoSubscriptions(conn *gorm.DB, genID *snowflake.Node) error {
	now := time.Now().UTC()

	for _, demo := range demoTiers {
		var count int64
		if err := conn.Model(&subscriptiondomain.SubscriptionState{}).
			Where("user_id = ?", demo.userID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}

		state := subscriptiondomain.SubscriptionState{
			ID:        genID.Generate(),
			UserID:    demo.userID,
			Tier:      demo.tier,
			Status:    subscriptiondomain.StatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := conn.Create(&state).Error; err != nil {
			return err
		}
	}

	return nil
}
