package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/camprush/camprush/internal/models"
)

// logStep is the smallest gap kept between two log rows of one plan; it
// survives the microsecond precision of postgres timestamps.
const logStep = time.Millisecond

// AppendLog adds one detection log row. Timestamps are kept strictly
// increasing per plan: an at that does not come after the plan's latest row
// is moved just past it.
func (s *Store) AppendLog(ctx context.Context, planID string, at time.Time, signal, note string) (models.OpenDetectionLog, error) {
	row := models.OpenDetectionLog{PlanID: planID, At: at.UTC(), PolledAt: at.UTC(), Signal: signal, Note: note}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last models.OpenDetectionLog
		err := tx.Where("plan_id = ?", planID).Order("at desc").Limit(1).Take(&last).Error
		switch {
		case err == nil:
			if !row.At.After(last.At) {
				row.At = last.At.Add(logStep)
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		return tx.Create(&row).Error
	})
	return row, err
}

// LastCheck returns the tick instant of the plan's latest poll, or nil when
// the plan was never polled. Rows written later in the same tick do not move
// it forward.
func (s *Store) LastCheck(ctx context.Context, planID string) (*time.Time, error) {
	var last models.OpenDetectionLog
	err := s.db.WithContext(ctx).Where("plan_id = ?", planID).Order("at desc").Limit(1).Take(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	at := last.PolledAt
	if at.IsZero() {
		at = last.At
	}
	return &at, nil
}

// ListLogs returns the plan's log in poll order; limit <= 0 returns all rows.
func (s *Store) ListLogs(ctx context.Context, planID string, limit int) ([]models.OpenDetectionLog, error) {
	q := s.db.WithContext(ctx).Where("plan_id = ?", planID).Order("at asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.OpenDetectionLog
	return rows, q.Find(&rows).Error
}
