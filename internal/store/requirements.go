package store

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"github.com/camprush/camprush/internal/models"
)

// FreshRequirement returns the cached analysis for a session and provider if
// it has not expired at now.
func (s *Store) FreshRequirement(ctx context.Context, sessionID, providerURL string, now time.Time) (*models.SessionRequirement, error) {
	var row models.SessionRequirement
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND provider_url = ? AND expires_at > ?", sessionID, providerURL, now).
		First(&row).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &row, nil
}

// SaveRequirement replaces the cached analysis for the row's session and
// provider.
func (s *Store) SaveRequirement(ctx context.Context, row *models.SessionRequirement) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "provider_url"}},
		DoUpdates: clause.AssignmentColumns([]string{"barriers", "metrics", "certainty", "degraded", "enriched", "expires_at", "updated_at"}),
	}).Create(row).Error
}
