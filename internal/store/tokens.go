package store

import (
	"context"
	"time"

	"github.com/camprush/camprush/internal/models"
)

func (s *Store) CreateApprovalToken(ctx context.Context, tok *models.ApprovalToken) error {
	return s.db.WithContext(ctx).Create(tok).Error
}

func (s *Store) GetApprovalToken(ctx context.Context, token string) (*models.ApprovalToken, error) {
	var tok models.ApprovalToken
	if err := s.db.WithContext(ctx).Where("token = ?", token).First(&tok).Error; err != nil {
		return nil, notFound(err)
	}
	return &tok, nil
}

// MarkTokenUsed sets used_at only if the token is still unused. It reports
// false when another redeem won.
func (s *Store) MarkTokenUsed(ctx context.Context, token string, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.ApprovalToken{}).
		Where("token = ? AND used_at IS NULL", token).
		Update("used_at", at)
	return res.RowsAffected == 1, res.Error
}
