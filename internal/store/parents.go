package store

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/camprush/camprush/internal/models"
)

var ErrLinkCodeInvalid = errors.New("link code invalid or expired")

type NewParent struct {
	Name          string
	Phone         string
	PhoneVerified bool
	Email         string
	Timezone      string
	Overrides     map[string]string
	Children      []NewChild
}

type NewChild struct {
	Name      string
	BirthDate time.Time
}

// CreateParent stores a parent and their children. Phone and email are
// expected to be normalised already.
func (s *Store) CreateParent(ctx context.Context, in NewParent) (*models.Parent, error) {
	if strings.TrimSpace(in.Phone) == "" {
		return nil, fmt.Errorf("parent needs a phone")
	}
	p := models.Parent{
		Name:          strings.TrimSpace(in.Name),
		Phone:         in.Phone,
		PhoneVerified: in.PhoneVerified,
		Email:         in.Email,
		Timezone:      in.Timezone,
	}
	if len(in.Overrides) > 0 {
		b, err := json.Marshal(in.Overrides)
		if err != nil {
			return nil, err
		}
		p.ChannelOverrides = datatypes.JSON(b)
	}
	for _, c := range in.Children {
		p.Children = append(p.Children, models.Child{Name: strings.TrimSpace(c.Name), BirthDate: c.BirthDate})
	}
	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		return nil, fmt.Errorf("create parent: %w", err)
	}
	return &p, nil
}

func (s *Store) GetParent(ctx context.Context, id uint) (*models.Parent, error) {
	var p models.Parent
	if err := s.db.WithContext(ctx).Preload("Children").First(&p, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// generate 6-digit code using crypto/rand
func genCode6() string {
	var b [3]byte
	_, _ = rand.Read(b[:])
	n := (int(b[0])<<16 | int(b[1])<<8 | int(b[2])) % 1000000
	return fmt.Sprintf("%06d", n)
}

// CreateLinkCode issues a short-lived code the parent sends to the bot as
// "/link CODE".
func (s *Store) CreateLinkCode(ctx context.Context, parentID uint, ttl time.Duration) (string, error) {
	gdb := s.db.WithContext(ctx)

	// housekeeping: drop this parent's used or long-expired codes
	_ = gdb.Where("parent_id = ? AND (used_at IS NOT NULL OR expires_at < ?)", parentID, time.Now().Add(-24*time.Hour)).
		Delete(&models.LinkCode{}).Error

	// try up to 10 times to avoid unique collisions
	for i := 0; i < 10; i++ {
		lc := models.LinkCode{
			Code:      genCode6(),
			ParentID:  parentID,
			ExpiresAt: time.Now().Add(ttl),
		}
		err := gdb.Create(&lc).Error
		if err == nil {
			return lc.Code, nil
		}
		msg := strings.ToLower(err.Error())
		if !strings.Contains(msg, "unique") && !strings.Contains(msg, "constraint") && !strings.Contains(msg, "duplicate") {
			return "", err
		}
	}
	return "", fmt.Errorf("unable to generate link code")
}

// LinkTelegram consumes a link code and attaches the chat to its parent.
func (s *Store) LinkTelegram(ctx context.Context, tu *models.TelegramUser, code string, now time.Time) (*models.Parent, error) {
	var parent models.Parent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.LinkCode{}).
			Where("code = ? AND used_at IS NULL AND expires_at > ?", code, now).
			Update("used_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrLinkCodeInvalid
		}
		var lc models.LinkCode
		if err := tx.Where("code = ?", code).First(&lc).Error; err != nil {
			return err
		}
		if err := tx.First(&parent, lc.ParentID).Error; err != nil {
			return notFound(err)
		}
		return attachTelegram(tx, tu, &parent, now)
	})
	if err != nil {
		return nil, err
	}
	return &parent, nil
}

// AttachTelegram links a chat to a parent found by other means, such as a
// shared contact.
func (s *Store) AttachTelegram(ctx context.Context, tu *models.TelegramUser, parent *models.Parent, now time.Time) error {
	return attachTelegram(s.db.WithContext(ctx), tu, parent, now)
}

func attachTelegram(tx *gorm.DB, tu *models.TelegramUser, parent *models.Parent, now time.Time) error {
	tu.ParentID = &parent.ID
	tu.Phone = parent.Phone
	tu.LinkedAt = &now
	tu.Deliverable = true
	return tx.Save(tu).Error
}

// TouchTelegramUser upserts the chat a bot update came from.
func (s *Store) TouchTelegramUser(ctx context.Context, userID, chatID int64, username, firstName string) (*models.TelegramUser, error) {
	var tu models.TelegramUser
	err := s.db.WithContext(ctx).Where("telegram_user_id = ?", userID).
		Attrs(models.TelegramUser{
			TelegramUserID: userID,
			ChatID:         chatID,
			Username:       username,
			FirstName:      firstName,
			Deliverable:    true,
		}).
		FirstOrCreate(&tu).Error
	if err != nil {
		return nil, err
	}
	return &tu, nil
}
