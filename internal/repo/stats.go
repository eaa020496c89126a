// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/vroymv/AfroLingo-sub000/internal/domain"
)

// MessagesStats returns the number of messages in groupID and the newest
// CreatedAt among them. Messages are immutable, so (count, newest) changes
// exactly when history changes. When the group has no messages, latest is nil.
func MessagesStats(ctx context.Context, db *gorm.DB, groupID string) (count int64, latest *time.Time, err error) {
	if count, err = CountMessages(ctx, db, groupID); err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Avoid MAX() -> TEXT in SQLite.
	var row struct {
		CreatedAt time.Time
	}
	q := db.WithContext(ctx).Model(&domain.Message{}).Where("group_id = ?", groupID)
	if err = q.Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}
