package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	artifactdomain "github.com/astralhq/oraculum/internal/artifact/domain"
	artifactrepo "github.com/astralhq/oraculum/internal/artifact/repository"
	"github.com/astralhq/oraculum/internal/clock"
	"github.com/astralhq/oraculum/internal/config"
	"github.com/astralhq/oraculum/internal/divination/domain"
	"github.com/astralhq/oraculum/internal/entitlement"
	"github.com/astralhq/oraculum/internal/generator"
	subscriptiondomain "github.com/astralhq/oraculum/internal/subscription/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// -- Fakes --

type tierFake struct {
	tiers map[snowflake.ID]subscriptiondomain.Tier
}

func (f *tierFake) Resolve(_ context.Context, userID snowflake.ID) (subscriptiondomain.Tier, error) {
	tier, ok := f.tiers[userID]
	if !ok {
		return "", subscriptiondomain.ErrSubscriptionUnknown
	}
	return tier, nil
}

func (f *tierFake) Get(context.Context, snowflake.ID) (*subscriptiondomain.Response, error) {
	return nil, subscriptiondomain.ErrSubscriptionUnknown
}

func (f *tierFake) Upsert(context.Context, subscriptiondomain.UpsertRequest) (*subscriptiondomain.Response, error) {
	return nil, nil
}

type generatorFake struct {
	calls atomic.Int64
	err   error
}

func (g *generatorFake) Generate(_ context.Context, req generator.Request) (generator.Result, error) {
	n := g.calls.Add(1)
	if g.err != nil {
		return generator.Result{}, g.err
	}
	return generator.Result{
		Text:  fmt.Sprintf("reading %d for %s", n, req.Kind),
		Model: "fake",
	}, nil
}

// memStore is a mutex-guarded Store for the concurrency test, where the
// in-memory sqlite driver would serialize writers anyway.
type memStore struct {
	mu   sync.Mutex
	rows map[artifactdomain.Key]*artifactdomain.Artifact
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[artifactdomain.Key]*artifactdomain.Artifact)}
}

func (m *memStore) Get(_ context.Context, _ *gorm.DB, key artifactdomain.Key) (*artifactdomain.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[key], nil
}

func (m *memStore) PutIfAbsent(_ context.Context, _ *gorm.DB, artifact *artifactdomain.Artifact) (artifactdomain.PutOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := artifact.KeyOf()
	if winner, ok := m.rows[key]; ok {
		return artifactdomain.PutOutcome{Inserted: false, Artifact: winner}, nil
	}
	m.rows[key] = artifact
	return artifactdomain.PutOutcome{Inserted: true, Artifact: artifact}, nil
}

// -- Harness --

type harness struct {
	svc   domain.Service
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	gen   *generatorFake
	tiers *tierFake
}

func newHarness(t *testing.T, store artifactdomain.Store) *harness {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&artifactdomain.Artifact{}))

	if store == nil {
		store = artifactrepo.Provide()
	}

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	gen := &generatorFake{}
	tiers := &tierFake{tiers: make(map[snowflake.ID]subscriptiondomain.Tier)}

	svc := New(Params{
		Config: config.Config{ReferenceTimezone: "UTC"},
		DB:     conn,
		Log:    zap.NewNop(),
		Clock:  fake,
		GenID:  node,
		Tiers:  tiers,
		Policy: entitlement.NewPolicy(),
		Store:  store,
		Gen:    gen,
	})

	return &harness{svc: svc, db: conn, node: node, clock: fake, gen: gen, tiers: tiers}
}

func (h *harness) user(tier subscriptiondomain.Tier) snowflake.ID {
	id := h.node.Generate()
	h.tiers.tiers[id] = tier
	return id
}

// -- Tests --

func TestObtain_GenerateThenReuseSameDay(t *testing.T) {
	h := newHarness(t, nil)
	userID := h.user(subscriptiondomain.TierFree)

	first, err := h.svc.Obtain(context.Background(), domain.ObtainRequest{
		UserID:  userID,
		Feature: entitlement.FeatureHoroscopeBasic,
		Inputs:  map[string]string{"sign": "aries"},
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusAllowed, first.Status)
	assert.False(t, first.FromCache)
	assert.Equal(t, subscriptiondomain.TierFree, first.Tier)
	require.NotNil(t, first.Artifact)
	assert.Equal(t, "2025-03-10", first.Artifact.PeriodID)

	var payload domain.Payload
	require.NoError(t, json.Unmarshal(first.Artifact.Payload, &payload))
	assert.Equal(t, "horoscope_basic", payload.Feature)
	assert.NotEmpty(t, payload.Text)

	second, err := h.svc.Obtain(context.Background(), domain.ObtainRequest{
		UserID:  userID,
		Feature: entitlement.FeatureHoroscopeBasic,
		Inputs:  map[string]string{"sign": "aries"},
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusAllowed, second.Status)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Artifact.ID, second.Artifact.ID)

	assert.EqualValues(t, 1, h.gen.calls.Load())
}

func TestObtain_NewPeriodGeneratesAgain(t *testing.T) {
	h := newHarness(t, nil)
	userID := h.user(subscriptiondomain.TierFree)

	req := domain.ObtainRequest{UserID: userID, Feature: entitlement.FeatureHoroscopeBasic}

	first, err := h.svc.Obtain(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10", first.Artifact.PeriodID)

	// 9:00 next day; the day rolls over and the slot is fresh.
	h.clock.Advance(24 * time.Hour)

	second, err := h.svc.Obtain(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-11", second.Artifact.PeriodID)
	assert.False(t, second.FromCache)
	assert.EqualValues(t, 2, h.gen.calls.Load())
}

func TestObtain_DeniedNeverReachesCacheOrGenerator(t *testing.T) {
	h := newHarness(t, nil)
	userID := h.user(subscriptiondomain.TierFree)

	res, err := h.svc.Obtain(context.Background(), domain.ObtainRequest{
		UserID:  userID,
		Feature: entitlement.FeatureDreamInterpretation,
		Inputs:  map[string]string{"dream": "falling"},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusDenied, res.Status)
	assert.Equal(t, subscriptiondomain.TierFree, res.Tier)
	assert.True(t, res.UpgradeRequired)
	assert.Nil(t, res.Artifact)
	assert.EqualValues(t, 0, h.gen.calls.Load())

	var count int64
	require.NoError(t, h.db.Model(&artifactdomain.Artifact{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestObtain_ProTierGetsEverything(t *testing.T) {
	h := newHarness(t, nil)
	userID := h.user(subscriptiondomain.TierPro)

	for _, feature := range []entitlement.FeatureKey{
		entitlement.FeatureHoroscopeBasic,
		entitlement.FeatureHoroscopeEnhanced,
		entitlement.FeatureTarotReading,
		entitlement.FeatureIChingReading,
		entitlement.FeatureDreamInterpretation,
	} {
		res, err := h.svc.Obtain(context.Background(), domain.ObtainRequest{UserID: userID, Feature: feature})
		require.NoError(t, err, feature)
		assert.Equal(t, domain.StatusAllowed, res.Status, feature)
	}
}

func TestObtain_UnknownSubscriptionIsFailureNotFree(t *testing.T) {
	h := newHarness(t, nil)
	userID := h.node.Generate() // no subscription row

	res, err := h.svc.Obtain(context.Background(), domain.ObtainRequest{
		UserID:  userID,
		Feature: entitlement.FeatureHoroscopeBasic,
	})
	require.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionUnknown)

	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.Equal(t, domain.ErrorKindEntitlementUnresolvable, res.ErrorKind)
	assert.EqualValues(t, 0, h.gen.calls.Load())
}

func TestObtain_UnknownFeatureFailsLoudly(t *testing.T) {
	h := newHarness(t, nil)
	userID := h.user(subscriptiondomain.TierPro)

	res, err := h.svc.Obtain(context.Background(), domain.ObtainRequest{
		UserID:  userID,
		Feature: entitlement.FeatureKey("palm_reading"),
	})
	require.ErrorIs(t, err, entitlement.ErrUnknownFeature)
	assert.Equal(t, domain.ErrorKindUnknownFeature, res.ErrorKind)
}

func TestObtain_UnauthenticatedRejected(t *testing.T) {
	h := newHarness(t, nil)

	res, err := h.svc.Obtain(context.Background(), domain.ObtainRequest{
		Feature: entitlement.FeatureHoroscopeBasic,
	})
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
	assert.Equal(t, domain.ErrorKindUnauthenticated, res.ErrorKind)
}

func TestObtain_OneShotTypesGetFreshSlots(t *testing.T) {
	h := newHarness(t, nil)
	userID := h.user(subscriptiondomain.TierPremium)

	req := domain.ObtainRequest{
		UserID:  userID,
		Feature: entitlement.FeatureTarotReading,
		Inputs:  map[string]string{"cards": "The Fool"},
	}

	first, err := h.svc.Obtain(context.Background(), req)
	require.NoError(t, err)
	second, err := h.svc.Obtain(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, first.FromCache)
	assert.False(t, second.FromCache)
	assert.NotEqual(t, first.Artifact.PeriodID, second.Artifact.PeriodID)
	assert.EqualValues(t, 2, h.gen.calls.Load())
}

func TestObtain_ClientArtifactShortCircuits(t *testing.T) {
	h := newHarness(t, nil)
	userID := h.user(subscriptiondomain.TierFree)

	res, err := h.svc.Obtain(context.Background(), domain.ObtainRequest{
		UserID:  userID,
		Feature: entitlement.FeatureHoroscopeBasic,
		ClientArtifact: &domain.ClientArtifact{
			ArtifactType: artifactdomain.TypeHoroscopeBasic,
			PeriodID:     "2025-03-10",
			Payload:      json.RawMessage(`{"feature":"horoscope_basic","text":"held by client"}`),
		},
	})
	require.NoError(t, err)

	assert.True(t, res.FromCache)
	assert.JSONEq(t, `{"feature":"horoscope_basic","text":"held by client"}`, string(res.Artifact.Payload))
	assert.EqualValues(t, 0, h.gen.calls.Load())

	// Nothing was persisted; the handle never touched the store.
	var count int64
	require.NoError(t, h.db.Model(&artifactdomain.Artifact{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestObtain_StaleClientArtifactIgnored(t *testing.T) {
	h := newHarness(t, nil)
	userID := h.user(subscriptiondomain.TierFree)

	res, err := h.svc.Obtain(context.Background(), domain.ObtainRequest{
		UserID:  userID,
		Feature: entitlement.FeatureHoroscopeBasic,
		ClientArtifact: &domain.ClientArtifact{
			ArtifactType: artifactdomain.TypeHoroscopeBasic,
			PeriodID:     "2025-03-09", // yesterday's handle
			Payload:      json.RawMessage(`{"text":"stale"}`),
		},
	})
	require.NoError(t, err)

	assert.False(t, res.FromCache)
	assert.Equal(t, "2025-03-10", res.Artifact.PeriodID)
	assert.EqualValues(t, 1, h.gen.calls.Load())
}

func TestObtain_GenerationFailureSurfaced(t *testing.T) {
	h := newHarness(t, nil)
	userID := h.user(subscriptiondomain.TierFree)
	h.gen.err = fmt.Errorf("provider unavailable")

	res, err := h.svc.Obtain(context.Background(), domain.ObtainRequest{
		UserID:  userID,
		Feature: entitlement.FeatureHoroscopeBasic,
	})
	require.Error(t, err)

	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.Equal(t, domain.ErrorKindGenerationFailure, res.ErrorKind)

	var count int64
	require.NoError(t, h.db.Model(&artifactdomain.Artifact{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestObtain_ConcurrentRequestsConverge(t *testing.T) {
	store := newMemStore()
	h := newHarness(t, store)
	userID := h.user(subscriptiondomain.TierPremium)

	const workers = 16
	results := make([]*domain.ObtainResult, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.svc.Obtain(context.Background(), domain.ObtainRequest{
				UserID:  userID,
				Feature: entitlement.FeatureHoroscopeEnhanced,
			})
		}(i)
	}
	wg.Wait()

	winnerID := snowflake.ID(0)
	inserted := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, domain.StatusAllowed, results[i].Status)
		require.NotNil(t, results[i].Artifact)

		if winnerID == 0 {
			winnerID = results[i].Artifact.ID
		}
		assert.Equal(t, winnerID, results[i].Artifact.ID, "all callers must converge on one artifact")
		if !results[i].FromCache {
			inserted++
		}
	}

	assert.Equal(t, 1, inserted, "exactly one caller performed the winning insert")
	assert.Len(t, store.rows, 1)
}
