// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Channel
// model, including default-channel resolution.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vroymv/AfroLingo-sub000/internal/domain"
)

// GetChannel fetches a channel that belongs to groupID. A channel from
// another group is reported as ErrNotFound.
func GetChannel(ctx context.Context, db *gorm.DB, groupID, channelID string) (*domain.Channel, error) {
	var ch domain.Channel
	err := db.WithContext(ctx).
		Where("id = ? AND group_id = ?", channelID, groupID).
		First(&ch).Error
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// ResolveChannel picks the channel a message lands in.
//
//   - channelID set: it must belong to groupID, else ErrNotFound.
//   - otherwise the group's default channel, else its oldest channel,
//     else a "General" default channel created on the spot.
//
// Two senders racing to create the default both end up with the same row:
// the loser of the unique-index race re-reads the winner.
func ResolveChannel(ctx context.Context, db *gorm.DB, groupID, channelID string) (*domain.Channel, error) {
	if channelID != "" {
		return GetChannel(ctx, db, groupID, channelID)
	}

	var ch domain.Channel
	err := db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("is_default desc, created_at asc, id asc").
		First(&ch).Error
	if err == nil {
		return &ch, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	created := &domain.Channel{
		ID:        uuid.NewString(),
		GroupID:   groupID,
		Name:      domain.DefaultChannelName,
		IsDefault: true,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(created).Error; err != nil {
		if isDuplicate(err) {
			var winner domain.Channel
			if rerr := db.WithContext(ctx).
				Where("group_id = ? AND is_default = ?", groupID, true).
				First(&winner).Error; rerr != nil {
				return nil, rerr
			}
			return &winner, nil
		}
		return nil, err
	}
	return created, nil
}
