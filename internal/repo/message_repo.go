// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// model: idempotent creation and keyset-paginated history.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vroymv/AfroLingo-sub000/internal/domain"
	"github.com/vroymv/AfroLingo-sub000/internal/utils"
)

// messageClock is swapped in tests.
var messageClock = time.Now

// CreateMessage inserts m, filling ID and CreatedAt when empty. A filled
// CreatedAt is strictly after the sender's previous message, even when two
// sends share a microsecond or the wall clock steps back. A violation of the
// (sender_id, client_message_id) index returns ErrDuplicate so the caller can
// recover the original row.
func CreateMessage(ctx context.Context, db *gorm.DB, m *domain.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		ts, err := nextCreatedAt(ctx, db, m.SenderID)
		if err != nil {
			return err
		}
		m.CreatedAt = ts
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// nextCreatedAt returns the current time truncated to microseconds, bumped
// past the sender's latest message when needed. Postgres keeps microseconds;
// truncating keeps cursors exact on both drivers.
func nextCreatedAt(ctx context.Context, db *gorm.DB, senderID string) (time.Time, error) {
	now := messageClock().UTC().Truncate(time.Microsecond)

	// Avoid MAX() -> TEXT in SQLite.
	var last struct {
		CreatedAt time.Time
	}
	err := db.WithContext(ctx).Model(&domain.Message{}).
		Select("created_at").
		Where("sender_id = ?", senderID).
		Order("created_at DESC").
		Limit(1).
		Scan(&last).Error
	if err != nil {
		return time.Time{}, err
	}
	if prev := last.CreatedAt.UTC(); !last.CreatedAt.IsZero() && !now.After(prev) {
		now = prev.Add(time.Microsecond)
	}
	return now, nil
}

// GetMessageBySenderClientID returns the message a sender created with the
// given client-supplied idempotency token.
func GetMessageBySenderClientID(ctx context.Context, db *gorm.DB, senderID, clientMessageID string) (*domain.Message, error) {
	var m domain.Message
	err := db.WithContext(ctx).
		Where("sender_id = ? AND client_message_id = ?", senderID, clientMessageID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CountMessages returns how many messages groupID holds.
func CountMessages(ctx context.Context, db *gorm.DB, groupID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Message{}).Where("group_id = ?", groupID).Count(&total).Error
	return total, err
}

// ListMessagesPage returns up to limit messages of groupID, newest first,
// strictly older than before when it is non-nil. channelID narrows the page
// to one channel when set.
func ListMessagesPage(ctx context.Context, db *gorm.DB, groupID, channelID string, before *utils.Cursor, limit int) ([]domain.Message, error) {
	q := db.WithContext(ctx).Where("group_id = ?", groupID)
	if channelID != "" {
		q = q.Where("channel_id = ?", channelID)
	}
	if before != nil {
		ts := before.CreatedAt.UTC()
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", ts, ts, before.ID)
	}
	var out []domain.Message
	err := q.Order("created_at desc, id desc").Limit(limit).Find(&out).Error
	return out, err
}
