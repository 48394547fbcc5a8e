package service

import (
	"context"
	"testing"
	"time"

	"github.com/astralhq/oraculum/internal/clock"
	"github.com/astralhq/oraculum/internal/subscription/domain"
	"github.com/astralhq/oraculum/internal/subscription/repository"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.SubscriptionState{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: clock.NewFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)),
		GenID: node,
		Repo:  repository.Provide(),
	})
	return svc.(*Service), node
}

func TestResolve_NoRowIsUnknownNotFree(t *testing.T) {
	svc, node := newTestService(t)

	_, err := svc.Resolve(context.Background(), node.Generate())
	assert.ErrorIs(t, err, domain.ErrSubscriptionUnknown)
}

func TestResolve_MalformedTierIsUnknown(t *testing.T) {
	svc, node := newTestService(t)
	userID := node.Generate()

	err := svc.db.Exec(
		`INSERT INTO subscription_states (id, user_id, tier, status, external_billing_ref, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		node.Generate(), userID, "platinum", "active", "", time.Now().UTC(), time.Now().UTC(),
	).Error
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), userID)
	assert.ErrorIs(t, err, domain.ErrSubscriptionUnknown)
}

func TestUpsertThenResolve(t *testing.T) {
	svc, node := newTestService(t)
	userID := node.Generate()

	resp, err := svc.Upsert(context.Background(), domain.UpsertRequest{
		UserID: userID.String(),
		Tier:   "Premium",
		Status: "active",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TierPremium, resp.Tier)

	tier, err := svc.Resolve(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, domain.TierPremium, tier)

	// Upsert again replaces the single row rather than adding one.
	_, err = svc.Upsert(context.Background(), domain.UpsertRequest{
		UserID: userID.String(),
		Tier:   "pro",
	})
	require.NoError(t, err)

	tier, err = svc.Resolve(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, domain.TierPro, tier)

	var count int64
	require.NoError(t, svc.db.Model(&domain.SubscriptionState{}).Where("user_id = ?", userID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestUpsert_RejectsUnknownTier(t *testing.T) {
	svc, node := newTestService(t)

	_, err := svc.Upsert(context.Background(), domain.UpsertRequest{
		UserID: node.Generate().String(),
		Tier:   "gold",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTier)
}

func TestTierRankOrdering(t *testing.T) {
	assert.Less(t, domain.TierFree.Rank(), domain.TierPremium.Rank())
	assert.Less(t, domain.TierPremium.Rank(), domain.TierPro.Rank())
	assert.Equal(t, 0, domain.Tier("gold").Rank())
}
