package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Type names a persisted artifact kind. Types map one-to-one onto the
// generatable features.
type Type string

const (
	TypeHoroscopeBasic      Type = "horoscope_basic"
	TypeHoroscopeEnhanced   Type = "horoscope_enhanced"
	TypeTarotReading        Type = "tarot_reading"
	TypeIChingReading       Type = "iching_reading"
	TypeDreamInterpretation Type = "dream_interpretation"
)

// Recurring reports whether artifacts of this type share one slot per
// calendar day. Non-recurring types get a fresh request-scoped period
// token instead.
func (t Type) Recurring() bool {
	switch t {
	case TypeHoroscopeBasic, TypeHoroscopeEnhanced:
		return true
	default:
		return false
	}
}

// Key addresses exactly one artifact slot. At most one persisted
// artifact exists per key; the composite unique index on the artifacts
// table enforces it.
type Key struct {
	UserID   snowflake.ID
	Type     Type
	PeriodID string
}

// Artifact is an immutable generated payload. Rows are created by the
// first successful generation for a key and never updated afterwards.
type Artifact struct {
	ID        snowflake.ID   `gorm:"column:id;primaryKey" json:"id"`
	UserID    snowflake.ID   `gorm:"column:user_id;uniqueIndex:ux_artifacts_key" json:"user_id"`
	Type      Type           `gorm:"column:artifact_type;uniqueIndex:ux_artifacts_key" json:"artifact_type"`
	PeriodID  string         `gorm:"column:period_id;uniqueIndex:ux_artifacts_key" json:"period_id"`
	Payload   datatypes.JSON `gorm:"column:payload" json:"payload"`
	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
}

func (Artifact) TableName() string {
	return "artifacts"
}

// KeyOf returns the addressing key of a stored artifact.
func (a *Artifact) KeyOf() Key {
	return Key{UserID: a.UserID, Type: a.Type, PeriodID: a.PeriodID}
}

// PutOutcome reports which side of the conditional insert happened.
// When Inserted is false another writer won the race and Artifact is the
// row already in the store.
type PutOutcome struct {
	Inserted bool
	Artifact *Artifact
}
