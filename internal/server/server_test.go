package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	artifactdomain "github.com/astralhq/oraculum/internal/artifact/domain"
	artifactrepo "github.com/astralhq/oraculum/internal/artifact/repository"
	"github.com/astralhq/oraculum/internal/clock"
	"github.com/astralhq/oraculum/internal/config"
	divinationservice "github.com/astralhq/oraculum/internal/divination/service"
	"github.com/astralhq/oraculum/internal/entitlement"
	"github.com/astralhq/oraculum/internal/generator"
	"github.com/astralhq/oraculum/internal/observability"
	subscriptiondomain "github.com/astralhq/oraculum/internal/subscription/domain"
	subscriptionrepo "github.com/astralhq/oraculum/internal/subscription/repository"
	subscriptionservice "github.com/astralhq/oraculum/internal/subscription/service"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testJWTSecret = "test-secret"

type testServer struct {
	server *Server
	node   *snowflake.Node
	subs   subscriptiondomain.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&subscriptiondomain.SubscriptionState{}, &artifactdomain.Artifact{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := config.Config{
		Environment:       "test",
		AuthJWTSecret:     testJWTSecret,
		ReferenceTimezone: "UTC",
	}
	log := zap.NewNop()
	fake := clock.NewFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))

	subs := subscriptionservice.New(subscriptionservice.Params{
		DB:    conn,
		Log:   log,
		Clock: fake,
		GenID: node,
		Repo:  subscriptionrepo.Provide(),
	})

	divs := divinationservice.New(divinationservice.Params{
		Config: cfg,
		DB:     conn,
		Log:    log,
		Clock:  fake,
		GenID:  node,
		Tiers:  subs,
		Policy: entitlement.NewPolicy(),
		Store:  artifactrepo.Provide(),
		Gen:    generator.NewStatic(),
	})

	engine := NewEngine(observability.Config{Environment: "test"}, nil)
	srv := NewServer(ServerParams{
		Gin:             engine,
		Cfg:             cfg,
		DB:              conn,
		Log:             log,
		DivinationSvc:   divs,
		SubscriptionSvc: subs,
	})

	return &testServer{server: srv, node: node, subs: subs}
}

func (ts *testServer) token(t *testing.T, userID snowflake.ID) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return token
}

func (ts *testServer) subscribe(t *testing.T, tier subscriptiondomain.Tier) snowflake.ID {
	t.Helper()

	userID := ts.node.Generate()
	_, err := ts.subs.Upsert(context.Background(), subscriptiondomain.UpsertRequest{
		UserID: userID.String(),
		Tier:   string(tier),
	})
	require.NoError(t, err)
	return userID
}

func (ts *testServer) request(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	ts.server.Engine().ServeHTTP(rec, req)
	return rec
}

func TestObtainHoroscope_RequiresAuth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodPost, "/api/divinations/horoscope", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestObtainHoroscope_RejectsForgedToken(t *testing.T) {
	ts := newTestServer(t)
	userID := ts.subscribe(t, subscriptiondomain.TierFree)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("wrong-secret"))
	require.NoError(t, err)

	rec := ts.request(t, http.MethodPost, "/api/divinations/horoscope", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestObtainHoroscope_GenerateThenCache(t *testing.T) {
	ts := newTestServer(t)
	userID := ts.subscribe(t, subscriptiondomain.TierFree)
	token := ts.token(t, userID)

	rec := ts.request(t, http.MethodPost, "/api/divinations/horoscope", token, gin.H{
		"inputs": gin.H{"sign": "aries"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var first obtainResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.Equal(t, "allowed", first.Status)
	assert.Equal(t, "free", first.Tier)
	assert.False(t, first.FromCache)
	require.NotNil(t, first.Artifact)
	assert.Equal(t, "horoscope_basic", first.Artifact.ArtifactType)
	assert.Equal(t, "2025-03-10", first.Artifact.PeriodID)

	rec = ts.request(t, http.MethodPost, "/api/divinations/horoscope", token, gin.H{
		"inputs": gin.H{"sign": "aries"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var second obtainResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Artifact.ID, second.Artifact.ID)
}

func TestObtainDream_DeniedForFreeTier(t *testing.T) {
	ts := newTestServer(t)
	userID := ts.subscribe(t, subscriptiondomain.TierFree)

	rec := ts.request(t, http.MethodPost, "/api/divinations/dream", ts.token(t, userID), gin.H{
		"inputs": gin.H{"dream": "flying over water"},
	})
	require.Equal(t, http.StatusForbidden, rec.Code)

	var resp obtainResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "denied", resp.Status)
	assert.Equal(t, "free", resp.Tier)
	assert.True(t, resp.UpgradeRequired)
	assert.Nil(t, resp.Artifact)
}

func TestObtainDream_AllowedForProTier(t *testing.T) {
	ts := newTestServer(t)
	userID := ts.subscribe(t, subscriptiondomain.TierPro)

	rec := ts.request(t, http.MethodPost, "/api/divinations/dream", ts.token(t, userID), gin.H{
		"inputs": gin.H{"dream": "flying over water"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestObtain_UnprovisionedUserIsServerFailure(t *testing.T) {
	ts := newTestServer(t)
	userID := ts.node.Generate() // no subscription row

	rec := ts.request(t, http.MethodPost, "/api/divinations/horoscope", ts.token(t, userID), nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "entitlement_unresolvable")
}

func TestDevUpsertSubscriptionThenGetMe(t *testing.T) {
	ts := newTestServer(t)
	userID := ts.node.Generate()

	rec := ts.request(t, http.MethodPost, "/api/dev/subscriptions", "", gin.H{
		"user_id": userID.String(),
		"tier":    "premium",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.request(t, http.MethodGet, "/api/subscriptions/me", ts.token(t, userID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"tier":"premium"`)
}

func TestGetMySubscription_UnknownIs404(t *testing.T) {
	ts := newTestServer(t)
	userID := ts.node.Generate()

	rec := ts.request(t, http.MethodGet, "/api/subscriptions/me", ts.token(t, userID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTarot_FreshReadingEachRequest(t *testing.T) {
	ts := newTestServer(t)
	userID := ts.subscribe(t, subscriptiondomain.TierPremium)
	token := ts.token(t, userID)

	periods := map[string]bool{}
	for i := 0; i < 2; i++ {
		rec := ts.request(t, http.MethodPost, "/api/divinations/tarot", token, gin.H{
			"inputs": gin.H{"cards": fmt.Sprintf("spread %d", i)},
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp obtainResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.FromCache)
		periods[resp.Artifact.PeriodID] = true
	}
	assert.Len(t, periods, 2)
}
