package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	artifactdomain "github.com/astralhq/oraculum/internal/artifact/domain"
	"github.com/astralhq/oraculum/internal/cache"
	"github.com/astralhq/oraculum/internal/clock"
	"github.com/astralhq/oraculum/internal/config"
	"github.com/astralhq/oraculum/internal/divination/domain"
	"github.com/astralhq/oraculum/internal/entitlement"
	"github.com/astralhq/oraculum/internal/generator"
	"github.com/astralhq/oraculum/internal/observability/metrics"
	"github.com/astralhq/oraculum/internal/ratelimit"
	subscriptiondomain "github.com/astralhq/oraculum/internal/subscription/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Config  config.Config
	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	GenID   *snowflake.Node
	Tiers   subscriptiondomain.Service
	Policy  *entitlement.Policy
	Store   artifactdomain.Store
	Gen     generator.Generator
	Limiter *ratelimit.GenerationLimiter `optional:"true"`
	Metrics *metrics.PipelineMetrics     `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	genID     *snowflake.Node
	tiers     subscriptiondomain.Service
	policy    *entitlement.Policy
	store     artifactdomain.Store
	gen       generator.Generator
	limiter   *ratelimit.GenerationLimiter
	metrics   *metrics.PipelineMetrics
	memory    cache.Cache[artifactdomain.Key, *artifactdomain.Artifact]
	reference *time.Location
}

func New(p Params) domain.Service {
	reference := time.UTC
	if p.Config.ReferenceTimezone != "" {
		loc, err := time.LoadLocation(p.Config.ReferenceTimezone)
		if err != nil {
			p.Log.Warn("invalid reference timezone, falling back to UTC",
				zap.String("timezone", p.Config.ReferenceTimezone),
			)
		} else {
			reference = loc
		}
	}

	return &Service{
		db:      p.DB,
		log:     p.Log.Named("divination.service"),
		clock:   p.Clock,
		genID:   p.GenID,
		tiers:   p.Tiers,
		policy:  p.Policy,
		store:   p.Store,
		gen:     p.Gen,
		limiter: p.Limiter,
		metrics: p.Metrics,
		// Artifacts are immutable once written, so a short read cache can
		// never serve stale content, only absent-vs-present races.
		memory:    cache.NewTTLCache[artifactdomain.Key, *artifactdomain.Artifact](5 * time.Minute),
		reference: reference,
	}
}

// Obtain walks one request through tier resolution, entitlement, cache
// reuse and generation. Tier is re-resolved on every call so billing
// changes stay promptly visible.
func (s *Service) Obtain(ctx context.Context, req domain.ObtainRequest) (*domain.ObtainResult, error) {
	feature := string(req.Feature)

	if req.UserID == 0 {
		return s.fail("", feature, domain.ErrorKindUnauthenticated), domain.ErrUnauthenticated
	}

	tier, err := s.tiers.Resolve(ctx, req.UserID)
	if err != nil {
		s.log.Warn("tier resolution failed",
			zap.String("user_id", req.UserID.String()),
			zap.String("feature", feature),
			zap.Error(err),
		)
		return s.fail("", feature, domain.ErrorKindEntitlementUnresolvable), err
	}

	allowed, err := s.policy.Allowed(tier, req.Feature)
	if err != nil {
		s.log.Error("entitlement table has no entry for feature",
			zap.String("feature", feature),
			zap.Error(err),
		)
		return s.fail(tier, feature, domain.ErrorKindUnknownFeature), err
	}
	if !allowed {
		s.metrics.RecordDenial(feature, string(tier))
		return &domain.ObtainResult{
			Status:          domain.StatusDenied,
			State:           domain.StateDenied,
			Tier:            tier,
			UpgradeRequired: true,
		}, nil
	}

	artifactType, ok := domain.ArtifactTypeFor(req.Feature)
	if !ok {
		return s.fail(tier, feature, domain.ErrorKindUnknownFeature), entitlement.ErrUnknownFeature
	}

	key := s.computeKey(req.UserID, artifactType)

	// A handle the client already holds for this exact slot needs no
	// store round-trip.
	if hit := s.clientCacheHit(req.ClientArtifact, key); hit != nil {
		s.metrics.RecordCacheHit(feature, "client")
		return s.hit(tier, hit), nil
	}

	if cached, ok := s.memory.Get(key); ok {
		s.metrics.RecordCacheHit(feature, "memory")
		return s.hit(tier, cached), nil
	}

	stored, err := s.store.Get(ctx, s.db, key)
	if err != nil {
		return s.fail(tier, feature, domain.ErrorKindPersistenceFailure), err
	}
	if stored != nil {
		s.memory.Set(key, stored)
		s.metrics.RecordCacheHit(feature, "store")
		return s.hit(tier, stored), nil
	}

	if s.limiter != nil && !s.limiter.Allow(ctx, req.UserID, feature) {
		return s.fail(tier, feature, domain.ErrorKindRateLimited), domain.ErrRateLimited
	}

	// Best-effort single flight per slot. Losing the lock only means
	// another request is likely generating; a short re-check avoids the
	// duplicate spend, and generating anyway stays correct because the
	// conditional insert arbitrates.
	release, acquired := s.lockSlot(ctx, key)
	defer release()
	if !acquired {
		stored, err := s.store.Get(ctx, s.db, key)
		if err == nil && stored != nil {
			s.memory.Set(key, stored)
			s.metrics.RecordCacheHit(feature, "store")
			return s.hit(tier, stored), nil
		}
	}

	s.metrics.RecordGeneration(feature)
	result, err := s.gen.Generate(ctx, generator.Request{
		Kind:   string(artifactType),
		Inputs: req.Inputs,
	})
	if err != nil {
		s.log.Warn("generation failed",
			zap.String("user_id", req.UserID.String()),
			zap.String("feature", feature),
			zap.Error(err),
		)
		return s.fail(tier, feature, domain.ErrorKindGenerationFailure), err
	}

	now := s.clock.Now()
	payload, err := json.Marshal(domain.Payload{
		Feature:     feature,
		Text:        result.Text,
		Model:       result.Model,
		GeneratedAt: now.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return s.fail(tier, feature, domain.ErrorKindPersistenceFailure), fmt.Errorf("marshal payload: %w", err)
	}

	outcome, err := s.store.PutIfAbsent(ctx, s.db, &artifactdomain.Artifact{
		ID:        s.genID.Generate(),
		UserID:    key.UserID,
		Type:      key.Type,
		PeriodID:  key.PeriodID,
		Payload:   datatypes.JSON(payload),
		CreatedAt: now,
	})
	if err != nil {
		return s.fail(tier, feature, domain.ErrorKindPersistenceFailure), err
	}

	s.memory.Set(key, outcome.Artifact)

	if !outcome.Inserted {
		// A concurrent request won the slot; its artifact is canonical
		// and the payload generated here is discarded.
		s.log.Debug("conditional insert lost the race",
			zap.String("user_id", key.UserID.String()),
			zap.String("artifact_type", string(key.Type)),
			zap.String("period_id", key.PeriodID),
		)
		s.metrics.RecordCacheHit(feature, "store")
		return s.hit(tier, outcome.Artifact), nil
	}

	return &domain.ObtainResult{
		Status:   domain.StatusAllowed,
		State:    domain.StateDone,
		Tier:     tier,
		Artifact: outcome.Artifact,
	}, nil
}

func (s *Service) computeKey(userID snowflake.ID, artifactType artifactdomain.Type) artifactdomain.Key {
	now := s.clock.Now()
	periodID := artifactdomain.RequestPeriodID(now)
	if artifactType.Recurring() {
		periodID = artifactdomain.DailyPeriodID(now, s.reference)
	}
	return artifactdomain.Key{UserID: userID, Type: artifactType, PeriodID: periodID}
}

func (s *Service) clientCacheHit(client *domain.ClientArtifact, key artifactdomain.Key) *artifactdomain.Artifact {
	if client == nil {
		return nil
	}
	if client.ArtifactType != key.Type || client.PeriodID != key.PeriodID {
		return nil
	}
	if len(client.Payload) == 0 {
		return nil
	}
	return &artifactdomain.Artifact{
		UserID:   key.UserID,
		Type:     key.Type,
		PeriodID: key.PeriodID,
		Payload:  datatypes.JSON(client.Payload),
	}
}

func (s *Service) hit(tier subscriptiondomain.Tier, artifact *artifactdomain.Artifact) *domain.ObtainResult {
	return &domain.ObtainResult{
		Status:    domain.StatusAllowed,
		State:     domain.StateCacheHit,
		Tier:      tier,
		Artifact:  artifact,
		FromCache: true,
	}
}

func (s *Service) fail(tier subscriptiondomain.Tier, feature string, kind domain.ErrorKind) *domain.ObtainResult {
	s.metrics.RecordFailure(feature, string(kind))
	return &domain.ObtainResult{
		Status:    domain.StatusFailed,
		State:     domain.StateFailed,
		Tier:      tier,
		ErrorKind: kind,
	}
}

func (s *Service) lockSlot(ctx context.Context, key artifactdomain.Key) (func(), bool) {
	if s.limiter == nil {
		return func() {}, true
	}
	slot := fmt.Sprintf("%s:%s:%s", key.UserID.String(), key.Type, key.PeriodID)
	return s.limiter.TryLock(ctx, slot)
}
