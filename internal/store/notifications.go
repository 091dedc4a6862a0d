package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/camprush/camprush/internal/models"
	"github.com/camprush/camprush/internal/notify"
)

func (s *Store) RecordNotification(ctx context.Context, row *models.NotificationQueue) error {
	return s.db.WithContext(ctx).Create(row).Error
}

func (s *Store) UpdateNotificationStatus(ctx context.Context, messageID, status, errText string) error {
	return s.db.WithContext(ctx).Model(&models.NotificationQueue{}).
		Where("message_id = ?", messageID).
		Updates(map[string]any{"status": status, "error": errText}).Error
}

func (s *Store) ListNotifications(ctx context.Context, userID uint) ([]models.NotificationQueue, error) {
	var rows []models.NotificationQueue
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id asc").Find(&rows).Error
	return rows, err
}

// Recipient builds a parent's notification preferences from the parent row
// and the linked, deliverable Telegram chat if there is one.
func (s *Store) Recipient(ctx context.Context, userID uint) (notify.Preferences, error) {
	var p models.Parent
	if err := s.db.WithContext(ctx).First(&p, userID).Error; err != nil {
		return notify.Preferences{}, notFound(err)
	}
	prefs := notify.Preferences{
		UserID:        p.ID,
		Name:          p.Name,
		Email:         p.Email,
		Phone:         p.Phone,
		PhoneVerified: p.PhoneVerified,
		Timezone:      p.Timezone,
	}

	if len(p.ChannelOverrides) > 0 {
		var raw map[string]string
		if err := json.Unmarshal(p.ChannelOverrides, &raw); err != nil {
			return notify.Preferences{}, fmt.Errorf("parent %d channel overrides: %w", p.ID, err)
		}
		prefs.Overrides = make(map[notify.Urgency]notify.Channel, len(raw))
		for u, ch := range raw {
			if notify.Urgency(u).Valid() && notify.Channel(ch).Valid() {
				prefs.Overrides[notify.Urgency(u)] = notify.Channel(ch)
			}
		}
	}

	var tu models.TelegramUser
	err := s.db.WithContext(ctx).
		Where("parent_id = ? AND deliverable = ?", p.ID, true).
		Order("linked_at desc").
		Limit(1).Find(&tu).Error
	if err != nil {
		return notify.Preferences{}, err
	}
	prefs.TelegramChatID = tu.ChatID
	return prefs, nil
}

// RememberTelegramMessage stores the message a parent's chat was last asked
// to act on so that a bare /done can answer it.
func (s *Store) RememberTelegramMessage(ctx context.Context, chatID int64, messageID string) error {
	return s.db.WithContext(ctx).Model(&models.TelegramUser{}).
		Where("chat_id = ?", chatID).
		Update("last_message_id", messageID).Error
}
