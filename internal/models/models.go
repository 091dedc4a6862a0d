package models

import (
	"time"

	"gorm.io/datatypes"
)

type Parent struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Name          string
	Phone         string `gorm:"uniqueIndex;not null"` // unique parent identity
	PhoneVerified bool
	Email         string
	Timezone      string

	// ChannelOverrides maps an urgency tier to the channel the parent wants
	// for it, e.g. {"high":"telegram"}.
	ChannelOverrides datatypes.JSON

	Children []Child
}

type Child struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Name      string
	BirthDate time.Time

	ParentID uint
	Parent   Parent
}

// RegistrationPlan is a parent's intent to register children for sessions
// that open at a future, possibly unknown, time.
type RegistrationPlan struct {
	ID        string `gorm:"primaryKey;size:36"`
	CreatedAt time.Time
	UpdatedAt time.Time

	UserID       uint    `gorm:"index"`
	DetectURL    *string // nil when the plan is not monitored
	ProviderURL  string
	ManualOpenAt *time.Time
	Timezone     string
	OpenStrategy string `gorm:"index"` // manual | published | auto
	Status       string `gorm:"index"` // see PlanStatus

	Children []PlanChild `gorm:"foreignKey:PlanID"`
}

type PlanChild struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time

	PlanID  string `gorm:"size:36;index"`
	ChildID uint
	Session string
}

// Status: "pending", "submitted", "confirmed", "failed"
type Registration struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	PlanID   string `gorm:"size:36;uniqueIndex:idx_reg_plan_child"`
	ChildID  uint   `gorm:"uniqueIndex:idx_reg_plan_child"`
	ParentID uint
	Session  string

	Status string
	Code   string `gorm:"uniqueIndex"` // e.g., REG-1A2B3C4D
}

// OpenDetectionLog rows are append-only.
type OpenDetectionLog struct {
	ID     uint      `gorm:"primaryKey"`
	PlanID string    `gorm:"size:36;index:idx_odl_plan_at"`
	At     time.Time `gorm:"index:idx_odl_plan_at"`
	// PolledAt is the tick instant that wrote the row; At may sit a few
	// steps past it to keep rows of one tick ordered.
	PolledAt time.Time
	Signal   string
	Note     string
}

// SessionRequirement caches one barrier analysis for a session/provider pair.
type SessionRequirement struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	SessionID   string `gorm:"uniqueIndex:idx_req_session_provider"`
	ProviderURL string `gorm:"uniqueIndex:idx_req_session_provider"`

	Barriers  datatypes.JSON
	Metrics   datatypes.JSON
	Certainty string
	Degraded  bool
	// Enriched is set when the AI analyzer contributed to the barriers.
	Enriched  bool
	ExpiresAt time.Time `gorm:"index"`
}

type NotificationQueue struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	MessageID  string `gorm:"uniqueIndex;size:64"`
	UserID     uint   `gorm:"index"`
	TemplateID string
	Channel    string
	Urgency    string
	Data       datatypes.JSON
	Status     string // queued | sent | failed
	Error      string
}

// ComplianceAudit rows are append-only.
type ComplianceAudit struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time

	Event     string `gorm:"index"`
	PlanID    string `gorm:"size:36;index"`
	SessionID string
	UserID    uint
	Detail    datatypes.JSON
}

type ApprovalToken struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Token       string `gorm:"uniqueIndex"`
	SessionID   string `gorm:"index"`
	BarrierType string
	ExpiresAt   time.Time
	UsedAt      *time.Time
}
