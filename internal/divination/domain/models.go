package domain

import (
	"context"
	"encoding/json"
	"errors"

	artifactdomain "github.com/astralhq/oraculum/internal/artifact/domain"
	"github.com/astralhq/oraculum/internal/entitlement"
	subscriptiondomain "github.com/astralhq/oraculum/internal/subscription/domain"
	"github.com/bwmarrin/snowflake"
)

// Status is the terminal outcome of one obtain request.
type Status string

const (
	StatusAllowed Status = "allowed"
	StatusDenied  Status = "denied"
	StatusFailed  Status = "failed"
)

// ErrorKind classifies failed outcomes for the caller.
type ErrorKind string

const (
	ErrorKindNone                    ErrorKind = ""
	ErrorKindUnauthenticated         ErrorKind = "unauthenticated"
	ErrorKindEntitlementUnresolvable ErrorKind = "entitlement_unresolvable"
	ErrorKindUnknownFeature          ErrorKind = "unknown_feature"
	ErrorKindGenerationFailure       ErrorKind = "generation_failure"
	ErrorKindPersistenceFailure      ErrorKind = "persistence_failure"
	ErrorKindRateLimited             ErrorKind = "rate_limited"
)

// State labels the pipeline position a request reached; used for
// logging, never for control flow decisions by callers.
type State string

const (
	StateStart         State = "start"
	StateAuthenticated State = "authenticated"
	StateEntitled      State = "entitled"
	StateCacheChecked  State = "cache_checked"
	StateCacheHit      State = "cache_hit"
	StateGenerating    State = "generating"
	StatePersisted     State = "persisted"
	StateDone          State = "done"
	StateDenied        State = "denied"
	StateFailed        State = "failed"
)

// ClientArtifact is an artifact handle the caller already holds from an
// earlier response. When it addresses the same slot the request would
// compute, the pipeline returns it without a store round-trip.
type ClientArtifact struct {
	ArtifactType artifactdomain.Type `json:"artifact_type"`
	PeriodID     string              `json:"period_id"`
	Payload      json.RawMessage     `json:"payload"`
}

type ObtainRequest struct {
	UserID         snowflake.ID
	Feature        entitlement.FeatureKey
	Inputs         map[string]string
	ClientArtifact *ClientArtifact
}

type ObtainResult struct {
	Status          Status
	State           State
	Tier            subscriptiondomain.Tier
	Artifact        *artifactdomain.Artifact
	FromCache       bool
	UpgradeRequired bool
	ErrorKind       ErrorKind
}

// Service runs the cache-or-generate pipeline. Denials are successful
// results with StatusDenied; only server-side failures return a non-nil
// error, and the result still carries the classification.
type Service interface {
	Obtain(ctx context.Context, req ObtainRequest) (*ObtainResult, error)
}

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrRateLimited     = errors.New("generation_rate_limited")
)

// ArtifactTypeFor maps a feature onto the artifact type it produces.
func ArtifactTypeFor(feature entitlement.FeatureKey) (artifactdomain.Type, bool) {
	switch feature {
	case entitlement.FeatureHoroscopeBasic:
		return artifactdomain.TypeHoroscopeBasic, true
	case entitlement.FeatureHoroscopeEnhanced:
		return artifactdomain.TypeHoroscopeEnhanced, true
	case entitlement.FeatureTarotReading:
		return artifactdomain.TypeTarotReading, true
	case entitlement.FeatureIChingReading:
		return artifactdomain.TypeIChingReading, true
	case entitlement.FeatureDreamInterpretation:
		return artifactdomain.TypeDreamInterpretation, true
	default:
		return "", false
	}
}

// Payload is the persisted artifact body.
type Payload struct {
	Feature     string `json:"feature"`
	Text        string `json:"text"`
	Model       string `json:"model"`
	GeneratedAt string `json:"generated_at"`
}
