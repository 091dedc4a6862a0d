package store

import (
	"context"
	"encoding/json"

	"gorm.io/datatypes"

	"github.com/camprush/camprush/internal/models"
)

const (
	AuditPlanOpened      = "plan_opened"
	AuditPlanTransition  = "plan_status_changed"
	AuditBarrierAnalysis = "barrier_analysis"
	AuditTokenIssued     = "approval_token_issued"
	AuditTokenRedeemed   = "approval_token_redeemed"
	AuditEscalation      = "notification_escalated"
)

// AuditEvent is one compliance_audit row before it is stored.
type AuditEvent struct {
	Event     string
	PlanID    string
	SessionID string
	UserID    uint
	Detail    map[string]any
}

// Audit appends an event. The audit log feeds analytics, so callers log
// failures and carry on.
func (s *Store) Audit(ctx context.Context, ev AuditEvent) error {
	detail, err := json.Marshal(ev.Detail)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&models.ComplianceAudit{
		Event:     ev.Event,
		PlanID:    ev.PlanID,
		SessionID: ev.SessionID,
		UserID:    ev.UserID,
		Detail:    datatypes.JSON(detail),
	}).Error
}

func (s *Store) ListAudit(ctx context.Context, planID string) ([]models.ComplianceAudit, error) {
	var rows []models.ComplianceAudit
	err := s.db.WithContext(ctx).Where("plan_id = ?", planID).Order("id asc").Find(&rows).Error
	return rows, err
}
