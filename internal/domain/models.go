// Package domain defines the persistence models for groups, memberships,
// channels, messages, and notifications. These types are mapped with GORM and
// form the durable data layer of the realtime messaging core.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// NotificationTypeGroupMessage is the only notification type produced by the
// messaging core.
const NotificationTypeGroupMessage = "group_message"

// DefaultChannelName is used when a group's first channel is created lazily.
const DefaultChannelName = "General"

// Group is a durable chat group. Users are attached to it through
// Memberships and its conversation is split into Channels.
type Group struct {
	ID        string    `json:"id"         gorm:"type:varchar(64);primaryKey"`
	Name      string    `json:"name"       gorm:"type:varchar(255);not null"`
	CreatedBy string    `json:"created_by" gorm:"type:varchar(64);not null;index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Group.
func (Group) TableName() string { return "groups" }

// Membership links a user to a group. A non-nil LeftAt marks the membership
// inactive: it no longer routes, counts toward presence, or authorizes sends.
// Memberships are never hard-deleted; re-joining creates a new row.
//
// The partial unique index guarantees at most one active row per (group, user).
type Membership struct {
	ID       string     `json:"id"        gorm:"type:char(36);primaryKey"`
	GroupID  string     `json:"group_id"  gorm:"type:varchar(64);not null;index:idx_membership_group;index:ux_membership_active,unique,where:left_at IS NULL"`
	UserID   string     `json:"user_id"   gorm:"type:varchar(64);not null;index:idx_membership_user;index:ux_membership_active,unique,where:left_at IS NULL"`
	Role     string     `json:"role"      gorm:"type:varchar(16);not null;default:'member'"`
	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty" gorm:"index"`
}

// TableName returns the database table name for Membership.
func (Membership) TableName() string { return "memberships" }

// Active reports whether the membership is still in force.
func (m Membership) Active() bool { return m.LeftAt == nil }

// Channel belongs to exactly one group. At most one channel per group is the
// default.
type Channel struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	GroupID   string    `json:"group_id"   gorm:"type:varchar(64);not null;index:idx_channel_group;index:ux_channel_default,unique,where:is_default = true"`
	Name      string    `json:"name"       gorm:"type:varchar(255);not null"`
	IsDefault bool      `json:"is_default" gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Channel.
func (Channel) TableName() string { return "channels" }

// Message is an immutable chat message. The (SenderID, ClientMessageID) pair
// is unique so a resubmitted send resolves to the original row.
//
// Metadata is an opaque JSON object stored and forwarded verbatim.
type Message struct {
	ID              string            `json:"id"                gorm:"type:char(36);primaryKey"`
	GroupID         string            `json:"group_id"          gorm:"type:varchar(64);not null;index:idx_group_msgs,priority:1"`
	ChannelID       string            `json:"channel_id"        gorm:"type:char(36);not null;index"`
	SenderID        string            `json:"sender_id"         gorm:"type:varchar(64);not null;uniqueIndex:ux_message_sender_client,priority:1"`
	Body            string            `json:"body"              gorm:"type:text;not null"`
	Metadata        datatypes.JSONMap `json:"metadata,omitempty"`
	ClientMessageID string            `json:"client_message_id" gorm:"type:varchar(128);not null;uniqueIndex:ux_message_sender_client,priority:2"`
	CreatedAt       time.Time         `json:"created_at"        gorm:"index:idx_group_msgs,priority:2"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Notification is a durable record addressed to one user who was absent when
// a group message was broadcast. Body is a truncated preview of the message.
// The (UserID, MessageID) pair is unique so a message never notifies the same
// user twice.
type Notification struct {
	ID        string            `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string            `json:"user_id"    gorm:"type:varchar(64);not null;index:idx_user_notifications,priority:1;uniqueIndex:ux_notification_user_message,priority:1"`
	Type      string            `json:"type"       gorm:"type:varchar(32);not null"`
	Body      string            `json:"body"       gorm:"type:text;not null"`
	GroupID   string            `json:"group_id"   gorm:"type:varchar(64);not null"`
	ChannelID string            `json:"channel_id" gorm:"type:char(36);not null"`
	MessageID string            `json:"message_id" gorm:"type:char(36);not null;uniqueIndex:ux_notification_user_message,priority:2"`
	SenderID  string            `json:"sender_id"  gorm:"type:varchar(64);not null"`
	Data      datatypes.JSONMap `json:"data,omitempty"`
	ReadAt    *time.Time        `json:"read_at"`
	CreatedAt time.Time         `json:"created_at" gorm:"index:idx_user_notifications,priority:2"`
}

// TableName returns the database table name for Notification.
func (Notification) TableName() string { return "notifications" }
