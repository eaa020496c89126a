// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for groups and
// their memberships.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
//
// Error semantics:
//   - Missing rows surface as ErrNotFound.
//   - Unique-index violations surface as ErrDuplicate.
//   - Other DB errors are propagated unchanged.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vroymv/AfroLingo-sub000/internal/domain"
)

// Membership roles.
const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

// CreateGroup inserts a group, an owner membership for createdBy and the
// group's default channel in one transaction.
func CreateGroup(ctx context.Context, db *gorm.DB, name, createdBy string) (*domain.Group, error) {
	now := time.Now().UTC()
	g := &domain.Group{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(g).Error; err != nil {
			return err
		}
		if err := tx.Create(&domain.Membership{
			ID:       uuid.NewString(),
			GroupID:  g.ID,
			UserID:   createdBy,
			Role:     RoleOwner,
			JoinedAt: now,
		}).Error; err != nil {
			return err
		}
		return tx.Create(&domain.Channel{
			ID:        uuid.NewString(),
			GroupID:   g.ID,
			Name:      domain.DefaultChannelName,
			IsDefault: true,
			CreatedAt: now,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// GetGroup fetches a group by id.
func GetGroup(ctx context.Context, db *gorm.DB, id string) (*domain.Group, error) {
	var g domain.Group
	if err := db.WithContext(ctx).Where("id = ?", id).First(&g).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

// ListGroupsForUser returns the groups in which userID holds an active
// membership, most recently joined first.
func ListGroupsForUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.Group, error) {
	var out []domain.Group
	err := db.WithContext(ctx).
		Table("groups").
		Select("groups.*").
		Joins("JOIN memberships ON memberships.group_id = groups.id").
		Where("memberships.user_id = ? AND memberships.left_at IS NULL", userID).
		Order("memberships.joined_at desc").
		Find(&out).Error
	return out, err
}

// FindActiveMemberships returns every active membership held by userID.
func FindActiveMemberships(ctx context.Context, db *gorm.DB, userID string) ([]domain.Membership, error) {
	var out []domain.Membership
	err := db.WithContext(ctx).
		Where("user_id = ? AND left_at IS NULL", userID).
		Order("joined_at asc, id asc").
		Find(&out).Error
	return out, err
}

// FindMembership returns the most recent membership row for (groupID,
// userID), active or not. Callers check Active() for authorization.
func FindMembership(ctx context.Context, db *gorm.DB, groupID, userID string) (*domain.Membership, error) {
	var m domain.Membership
	err := db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Order("joined_at desc, id desc").
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListActiveMemberIDs returns the user ids of all active members of groupID.
func ListActiveMemberIDs(ctx context.Context, db *gorm.DB, groupID string) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Membership{}).
		Where("group_id = ? AND left_at IS NULL", groupID).
		Order("user_id asc").
		Pluck("user_id", &ids).Error
	return ids, err
}

// JoinGroup creates an active membership for userID. If one already exists it
// is returned with created=false; a concurrent join losing the unique-index
// race re-reads the winner.
func JoinGroup(ctx context.Context, db *gorm.DB, groupID, userID, role string) (m *domain.Membership, created bool, err error) {
	if existing, err := findActive(ctx, db, groupID, userID); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	m = &domain.Membership{
		ID:       uuid.NewString(),
		GroupID:  groupID,
		UserID:   userID,
		Role:     role,
		JoinedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		if isDuplicate(err) {
			existing, rerr := findActive(ctx, db, groupID, userID)
			return existing, false, rerr
		}
		return nil, false, err
	}
	return m, true, nil
}

// LeaveGroup soft-deletes the active membership by setting left_at. It
// returns ErrNotFound when userID holds no active membership.
func LeaveGroup(ctx context.Context, db *gorm.DB, groupID, userID string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Membership{}).
		Where("group_id = ? AND user_id = ? AND left_at IS NULL", groupID, userID).
		Update("left_at", at.UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func findActive(ctx context.Context, db *gorm.DB, groupID, userID string) (*domain.Membership, error) {
	var m domain.Membership
	err := db.WithContext(ctx).
		Where("group_id = ? AND user_id = ? AND left_at IS NULL", groupID, userID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}
