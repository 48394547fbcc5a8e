package repository

import (
	"context"

	"github.com/astralhq/oraculum/internal/artifact/domain"
	"github.com/astralhq/oraculum/pkg/db"
	"gorm.io/gorm"
)

type store struct{}

func Provide() domain.Store {
	return &store{}
}

func (s *store) Get(ctx context.Context, conn *gorm.DB, key domain.Key) (*domain.Artifact, error) {
	var artifact domain.Artifact
	err := conn.WithContext(ctx).Raw(
		`SELECT id, user_id, artifact_type, period_id, payload, created_at
		 FROM artifacts WHERE user_id = ? AND artifact_type = ? AND period_id = ?`,
		key.UserID,
		key.Type,
		key.PeriodID,
	).Scan(&artifact).Error
	if err != nil {
		return nil, err
	}
	if artifact.ID == 0 {
		return nil, nil
	}
	return &artifact, nil
}

// PutIfAbsent relies on the ux_artifacts_key unique index for the
// first-writer-wins guarantee. A duplicate-key error means another
// writer already filled the slot; the winner is read back and returned
// as the conflict outcome.
func (s *store) PutIfAbsent(ctx context.Context, conn *gorm.DB, artifact *domain.Artifact) (domain.PutOutcome, error) {
	if artifact == nil {
		return domain.PutOutcome{}, gorm.ErrInvalidData
	}

	err := conn.WithContext(ctx).Exec(
		`INSERT INTO artifacts (
			id, user_id, artifact_type, period_id, payload, created_at
		) VALUES (?, ?, ?, ?, ?, ?)`,
		artifact.ID,
		artifact.UserID,
		artifact.Type,
		artifact.PeriodID,
		artifact.Payload,
		artifact.CreatedAt,
	).Error
	if err == nil {
		return domain.PutOutcome{Inserted: true, Artifact: artifact}, nil
	}
	if !db.IsDuplicateKeyErr(err) {
		return domain.PutOutcome{}, err
	}

	winner, getErr := s.Get(ctx, conn, artifact.KeyOf())
	if getErr != nil {
		return domain.PutOutcome{}, getErr
	}
	if winner == nil {
		return domain.PutOutcome{}, domain.ErrConflictRowMissing
	}
	return domain.PutOutcome{Inserted: false, Artifact: winner}, nil
}
