package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/camprush/camprush/internal/models"
)

// NewPlan describes a plan as the parent commits it.
type NewPlan struct {
	UserID       uint
	DetectURL    string
	ProviderURL  string
	ManualOpenAt *time.Time
	Timezone     string
	OpenStrategy string
	Status       models.PlanStatus
	Children     []PlanChild
}

type PlanChild struct {
	ChildID uint
	Session string
}

func validStrategy(s string) bool {
	switch s {
	case models.StrategyManual, models.StrategyPublished, models.StrategyAuto:
		return true
	}
	return false
}

func (s *Store) CreatePlan(ctx context.Context, in NewPlan) (*models.RegistrationPlan, error) {
	if in.UserID == 0 {
		return nil, fmt.Errorf("plan needs an owner")
	}
	if in.OpenStrategy == "" {
		in.OpenStrategy = models.StrategyManual
	}
	if !validStrategy(in.OpenStrategy) {
		return nil, fmt.Errorf("unknown open strategy %q", in.OpenStrategy)
	}
	if in.Status == "" {
		in.Status = models.PlanDraft
	}
	if !in.Status.Valid() {
		return nil, fmt.Errorf("unknown plan status %q", in.Status)
	}

	plan := models.RegistrationPlan{
		ID:           uuid.NewString(),
		UserID:       in.UserID,
		ProviderURL:  strings.TrimSpace(in.ProviderURL),
		ManualOpenAt: in.ManualOpenAt,
		Timezone:     strings.TrimSpace(in.Timezone),
		OpenStrategy: in.OpenStrategy,
		Status:       string(in.Status),
	}
	if u := strings.TrimSpace(in.DetectURL); u != "" {
		plan.DetectURL = &u
	}
	for _, c := range in.Children {
		plan.Children = append(plan.Children, models.PlanChild{ChildID: c.ChildID, Session: c.Session})
	}

	if err := s.db.WithContext(ctx).Create(&plan).Error; err != nil {
		return nil, fmt.Errorf("create plan: %w", err)
	}
	return &plan, nil
}

func (s *Store) GetPlan(ctx context.Context, id string) (*models.RegistrationPlan, error) {
	var plan models.RegistrationPlan
	err := s.db.WithContext(ctx).Preload("Children").Where("id = ?", id).First(&plan).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &plan, nil
}

func (s *Store) ListPlansForUser(ctx context.Context, userID uint) ([]models.RegistrationPlan, error) {
	var plans []models.RegistrationPlan
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at asc").Find(&plans).Error
	return plans, err
}

// ListMonitored returns the plans a poll tick should look at, in id order.
func (s *Store) ListMonitored(ctx context.Context) ([]models.RegistrationPlan, error) {
	var plans []models.RegistrationPlan
	err := s.db.WithContext(ctx).
		Where("open_strategy IN ?", []string{models.StrategyPublished, models.StrategyAuto}).
		Where("status = ?", string(models.PlanMonitoring)).
		Where("detect_url IS NOT NULL AND detect_url <> ''").
		Order("id asc").
		Find(&plans).Error
	return plans, err
}

// TransitionPlan moves a plan from one status to another with a conditional
// update. It returns ErrStaleTransition when the plan is no longer in from.
func (s *Store) TransitionPlan(ctx context.Context, id string, from, to models.PlanStatus) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, from, to)
	}
	res := s.db.WithContext(ctx).Model(&models.RegistrationPlan{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(map[string]any{"status": string(to), "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetPlan(ctx, id); err != nil {
			return err
		}
		return ErrStaleTransition
	}
	return nil
}

// SetManualOpenAt records an opening time only when none is set yet, so an
// extracted time never overrides one a parent entered.
func (s *Store) SetManualOpenAt(ctx context.Context, id string, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.RegistrationPlan{}).
		Where("id = ? AND manual_open_at IS NULL", id).
		Update("manual_open_at", at)
	return res.RowsAffected > 0, res.Error
}
