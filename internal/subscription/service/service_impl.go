package service

import (
	"context"
	"strings"

	"github.com/astralhq/oraculum/internal/clock"
	"github.com/astralhq/oraculum/internal/subscription/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	genID *snowflake.Node
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscription.service"),
		clock: p.Clock,
		genID: p.GenID,
		repo:  p.Repo,
	}
}

// Resolve maps a user to its subscription tier. A missing row or a row
// without a recognizable tier yields ErrSubscriptionUnknown; it is never
// collapsed into the free tier.
func (s *Service) Resolve(ctx context.Context, userID snowflake.ID) (domain.Tier, error) {
	if userID == 0 {
		return "", domain.ErrInvalidUserID
	}

	state, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return "", err
	}
	if state == nil {
		return "", domain.ErrSubscriptionUnknown
	}

	tier, ok := domain.ParseTier(string(state.Tier))
	if !ok {
		s.log.Warn("subscription row carries unknown tier",
			zap.String("user_id", userID.String()),
			zap.String("tier", string(state.Tier)),
		)
		return "", domain.ErrSubscriptionUnknown
	}

	return tier, nil
}

func (s *Service) Get(ctx context.Context, userID snowflake.ID) (*domain.Response, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUserID
	}

	state, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, domain.ErrSubscriptionUnknown
	}

	resp := toResponse(state)
	return &resp, nil
}

// Upsert writes subscription state directly. It exists for local
// development and seeding; production rows arrive through billing
// events outside this service.
func (s *Service) Upsert(ctx context.Context, req domain.UpsertRequest) (*domain.Response, error) {
	userID, err := snowflake.ParseString(strings.TrimSpace(req.UserID))
	if err != nil || userID == 0 {
		return nil, domain.ErrInvalidUserID
	}

	tier, ok := domain.ParseTier(req.Tier)
	if !ok {
		return nil, domain.ErrInvalidTier
	}

	status, err := normalizeStatus(req.Status)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	state := &domain.SubscriptionState{
		ID:                 s.genID.Generate(),
		UserID:             userID,
		Tier:               tier,
		Status:             status,
		ExternalBillingRef: strings.TrimSpace(req.ExternalBillingRef),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.repo.Upsert(ctx, s.db, state); err != nil {
		return nil, err
	}

	resp := toResponse(state)
	return &resp, nil
}

func toResponse(state *domain.SubscriptionState) domain.Response {
	return domain.Response{
		UserID:             state.UserID.String(),
		Tier:               state.Tier,
		Status:             state.Status,
		ExternalBillingRef: state.ExternalBillingRef,
		UpdatedAt:          state.UpdatedAt,
	}
}

func normalizeStatus(value string) (domain.Status, error) {
	switch domain.Status(strings.ToLower(strings.TrimSpace(value))) {
	case domain.StatusActive, "":
		return domain.StatusActive, nil
	case domain.StatusPastDue:
		return domain.StatusPastDue, nil
	case domain.StatusCanceled:
		return domain.StatusCanceled, nil
	default:
		return "", domain.ErrInvalidStatus
	}
}
