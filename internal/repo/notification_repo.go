// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Notification model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vroymv/AfroLingo-sub000/internal/domain"
	"github.com/vroymv/AfroLingo-sub000/internal/utils"
)

// CreateNotification inserts n, filling ID and CreatedAt when empty. A second
// notification for the same (user, message) returns ErrDuplicate.
func CreateNotification(ctx context.Context, db *gorm.DB, n *domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}
	if err := db.WithContext(ctx).Create(n).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// ListNotificationsPage returns up to limit notifications for userID, newest
// first, strictly older than before when it is non-nil.
func ListNotificationsPage(ctx context.Context, db *gorm.DB, userID string, unreadOnly bool, before *utils.Cursor, limit int) ([]domain.Notification, error) {
	q := db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("read_at IS NULL")
	}
	if before != nil {
		ts := before.CreatedAt.UTC()
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", ts, ts, before.ID)
	}
	var out []domain.Notification
	err := q.Order("created_at desc, id desc").Limit(limit).Find(&out).Error
	return out, err
}

// CountUnreadNotifications returns how many unread notifications userID has.
func CountUnreadNotifications(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Count(&n).Error
	return n, err
}

// MarkNotificationRead stamps read_at on a notification owned by userID and
// returns the row. Marking an already-read notification keeps the original
// timestamp. A notification owned by someone else is ErrNotFound.
func MarkNotificationRead(ctx context.Context, db *gorm.DB, id, userID string, at time.Time) (*domain.Notification, error) {
	var n domain.Notification
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&n).Error; err != nil {
			return err
		}
		if n.ReadAt != nil {
			return nil
		}
		ts := at.UTC().Truncate(time.Microsecond)
		if err := tx.Model(&domain.Notification{}).
			Where("id = ? AND read_at IS NULL", id).
			Update("read_at", ts).Error; err != nil {
			return err
		}
		n.ReadAt = &ts
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &n, nil
}
