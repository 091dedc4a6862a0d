package models

import "time"

// TelegramUser is a chat linked (or about to be linked) to a parent; it is the
// delivery address of the telegram notification channel.
type TelegramUser struct {
	ID             uint  `gorm:"primarykey"`
	TelegramUserID int64 `gorm:"uniqueIndex"`
	ChatID         int64
	Username       string
	FirstName      string
	Phone          string
	ParentID       *uint `gorm:"index"`
	LinkedAt       *time.Time
	Deliverable    bool `gorm:"default:true"`
	// LastMessageID is the notification the chat was last asked to act on;
	// a bare "/done" answers it.
	LastMessageID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type LinkCode struct {
	ID        uint      `gorm:"primarykey"`
	Code      string    `gorm:"uniqueIndex"`
	ParentID  uint      `gorm:"index"`
	ExpiresAt time.Time `gorm:"index"`
	UsedAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}
