package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	artifactdomain "github.com/astralhq/oraculum/internal/artifact/domain"
	divinationdomain "github.com/astralhq/oraculum/internal/divination/domain"
	"github.com/astralhq/oraculum/internal/entitlement"
	"github.com/astralhq/oraculum/internal/userctx"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type clientArtifactRequest struct {
	ArtifactType string          `json:"artifact_type"`
	PeriodID     string          `json:"period_id"`
	Payload      json.RawMessage `json:"payload"`
}

type obtainRequest struct {
	Enhanced       bool                   `json:"enhanced"`
	Inputs         map[string]string      `json:"inputs"`
	ClientArtifact *clientArtifactRequest `json:"client_artifact"`
}

type artifactResponse struct {
	ID           string          `json:"id,omitempty"`
	ArtifactType string          `json:"artifact_type"`
	PeriodID     string          `json:"period_id"`
	Payload      json.RawMessage `json:"payload"`
	CreatedAt    *time.Time      `json:"created_at,omitempty"`
}

type obtainResponse struct {
	Status          string            `json:"status"`
	Tier            string            `json:"tier"`
	FromCache       bool              `json:"from_cache"`
	UpgradeRequired bool              `json:"upgrade_required,omitempty"`
	Artifact        *artifactResponse `json:"artifact,omitempty"`
}

func (s *Server) ObtainHoroscope(c *gin.Context) {
	req, ok := s.bindObtain(c)
	if !ok {
		return
	}

	feature := entitlement.FeatureHoroscopeBasic
	if req.Enhanced {
		feature = entitlement.FeatureHoroscopeEnhanced
	}
	s.obtain(c, feature, req)
}

func (s *Server) ObtainTarot(c *gin.Context) {
	req, ok := s.bindObtain(c)
	if !ok {
		return
	}
	s.obtain(c, entitlement.FeatureTarotReading, req)
}

func (s *Server) ObtainIChing(c *gin.Context) {
	req, ok := s.bindObtain(c)
	if !ok {
		return
	}
	s.obtain(c, entitlement.FeatureIChingReading, req)
}

func (s *Server) ObtainDream(c *gin.Context) {
	req, ok := s.bindObtain(c)
	if !ok {
		return
	}
	s.obtain(c, entitlement.FeatureDreamInterpretation, req)
}

func (s *Server) bindObtain(c *gin.Context) (obtainRequest, bool) {
	var req obtainRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return obtainRequest{}, false
	}
	return req, true
}

func (s *Server) obtain(c *gin.Context, feature entitlement.FeatureKey, req obtainRequest) {
	userID, ok := userctx.UserIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	obtainReq := divinationdomain.ObtainRequest{
		UserID:  userID,
		Feature: feature,
		Inputs:  req.Inputs,
	}
	if req.ClientArtifact != nil {
		obtainReq.ClientArtifact = &divinationdomain.ClientArtifact{
			ArtifactType: artifactdomain.Type(req.ClientArtifact.ArtifactType),
			PeriodID:     req.ClientArtifact.PeriodID,
			Payload:      req.ClientArtifact.Payload,
		}
	}

	result, err := s.divinationSvc.Obtain(c.Request.Context(), obtainReq)
	if err != nil {
		s.respondObtainFailure(c, result, err)
		return
	}

	if result.Status == divinationdomain.StatusDenied {
		c.JSON(http.StatusForbidden, obtainResponse{
			Status:          string(divinationdomain.StatusDenied),
			Tier:            string(result.Tier),
			UpgradeRequired: result.UpgradeRequired,
		})
		return
	}

	c.JSON(http.StatusOK, obtainResponse{
		Status:    string(divinationdomain.StatusAllowed),
		Tier:      string(result.Tier),
		FromCache: result.FromCache,
		Artifact:  toArtifactResponse(result.Artifact),
	})
}

// respondObtainFailure maps pipeline failure kinds onto HTTP statuses.
// Provider failures get a gateway status so callers can tell "the
// upstream model failed" apart from "this service is broken".
func (s *Server) respondObtainFailure(c *gin.Context, result *divinationdomain.ObtainResult, err error) {
	kind := divinationdomain.ErrorKindNone
	if result != nil {
		kind = result.ErrorKind
	}

	switch kind {
	case divinationdomain.ErrorKindUnauthenticated:
		AbortWithError(c, ErrUnauthorized)
	case divinationdomain.ErrorKindRateLimited:
		AbortWithError(c, divinationdomain.ErrRateLimited)
	case divinationdomain.ErrorKindGenerationFailure:
		c.AbortWithStatusJSON(http.StatusBadGateway, errorResponse{Error: errorPayload{
			Type:    string(kind),
			Message: "content generation failed",
		}})
	case divinationdomain.ErrorKindEntitlementUnresolvable:
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: errorPayload{
			Type:    string(kind),
			Message: "subscription state could not be resolved",
		}})
	default:
		s.log.Error("divination pipeline failed",
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		AbortWithError(c, ErrInternal)
	}
}

func toArtifactResponse(artifact *artifactdomain.Artifact) *artifactResponse {
	if artifact == nil {
		return nil
	}

	resp := &artifactResponse{
		ArtifactType: string(artifact.Type),
		PeriodID:     artifact.PeriodID,
		Payload:      json.RawMessage(artifact.Payload),
	}
	if artifact.ID != 0 {
		resp.ID = artifact.ID.String()
	}
	if !artifact.CreatedAt.IsZero() {
		createdAt := artifact.CreatedAt
		resp.CreatedAt = &createdAt
	}
	return resp
}
