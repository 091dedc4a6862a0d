package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/camprush/camprush/internal/models"
)

const (
	RegPending   = "pending"
	RegSubmitted = "submitted"
	RegConfirmed = "confirmed"
	RegFailed    = "failed"
)

// generateRegCode creates a REG-XXXXXXXX code from 4 random bytes.
func generateRegCode() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return "REG-" + strings.ToUpper(hex.EncodeToString(b[:]))
}

// CreateRegistrationsForPlan inserts one pending registration per plan child.
// Children that already have one are left alone, so calling it again after an
// open detection creates nothing new. It returns the number of rows created.
func (s *Store) CreateRegistrationsForPlan(ctx context.Context, planID string) (int, error) {
	created := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var plan models.RegistrationPlan
		if err := tx.Preload("Children").Where("id = ?", planID).First(&plan).Error; err != nil {
			return notFound(err)
		}
		for _, pc := range plan.Children {
			reg := models.Registration{
				PlanID:   plan.ID,
				ChildID:  pc.ChildID,
				ParentID: plan.UserID,
				Session:  pc.Session,
				Status:   RegPending,
				Code:     generateRegCode(),
			}
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "plan_id"}, {Name: "child_id"}},
				DoNothing: true,
			}).Create(&reg)
			if res.Error != nil {
				return fmt.Errorf("registration for child %d: %w", pc.ChildID, res.Error)
			}
			created += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

func (s *Store) ListRegistrations(ctx context.Context, planID string) ([]models.Registration, error) {
	var regs []models.Registration
	err := s.db.WithContext(ctx).Where("plan_id = ?", planID).Order("child_id asc").Find(&regs).Error
	return regs, err
}
