// Package services – NotificationService
//
// NotificationService creates durable notifications for group members who
// were absent when a message was broadcast, pushes each one to the
// recipient's personal room, and serves the caller's notification feed.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/vroymv/AfroLingo-sub000/internal/domain"
	"github.com/vroymv/AfroLingo-sub000/internal/presence"
	"github.com/vroymv/AfroLingo-sub000/internal/repo"
	"github.com/vroymv/AfroLingo-sub000/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// PreviewRunes is the notification preview length before the ellipsis.
	PreviewRunes = 140

	previewEllipsis = "…"

	defaultFeedLimit = 20
	maxFeedLimit     = 100
)

// RosterReader reports who is online in a group.
type RosterReader interface {
	Roster(ctx context.Context, groupID string) (presence.Roster, error)
}

// NotificationPusher delivers a created notification to its recipient's
// personal room.
type NotificationPusher interface {
	PushNotification(ctx context.Context, n *domain.Notification)
}

// NotificationService fans out and lists notifications.
type NotificationService struct {
	DB       *gorm.DB
	Presence RosterReader
	Pusher   NotificationPusher

	now func() time.Time
}

// NewNotificationService wires a NotificationService. A nil presence reader
// treats every member as absent; a nil pusher skips live delivery.
func NewNotificationService(db *gorm.DB, p RosterReader, pusher NotificationPusher) *NotificationService {
	return &NotificationService{DB: db, Presence: p, Pusher: pusher, now: time.Now}
}

// FanOut notifies every active member of m's group who is neither the sender
// nor in the online roster. Creates are independent: one failing recipient is
// logged and the rest proceed. It returns the number of notifications
// created.
func (s *NotificationService) FanOut(ctx context.Context, m *domain.Message) int {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "FanOut",
		trace.WithAttributes(
			attribute.String("group.id", m.GroupID),
			attribute.String("message.id", m.ID),
		),
	)
	defer span.End()

	logger := log.With().Str("group_id", m.GroupID).Str("message_id", m.ID).Logger()

	members, err := repo.ListActiveMemberIDs(ctx, s.DB, m.GroupID)
	if err != nil {
		logger.Error().Err(err).Msg("fan-out: list members")
		return 0
	}

	// A roster read failure counts everyone as absent: over-notifying beats
	// losing a notification.
	var roster presence.Roster
	if s.Presence != nil {
		if roster, err = s.Presence.Roster(ctx, m.GroupID); err != nil {
			logger.Warn().Err(err).Msg("fan-out: presence unavailable, treating roster as empty")
			roster = presence.Roster{GroupID: m.GroupID}
		}
	}

	recipients := Recipients(members, m.SenderID, roster)
	span.SetAttributes(attribute.Int("recipients", len(recipients)))

	preview := Preview(m.Body, PreviewRunes)
	created := 0
	for _, uid := range recipients {
		n := &domain.Notification{
			UserID:    uid,
			Type:      domain.NotificationTypeGroupMessage,
			Body:      preview,
			GroupID:   m.GroupID,
			ChannelID: m.ChannelID,
			MessageID: m.ID,
			SenderID:  m.SenderID,
			Data: datatypes.JSONMap{
				"groupId":   m.GroupID,
				"channelId": m.ChannelID,
				"messageId": m.ID,
				"senderId":  m.SenderID,
			},
		}
		if err := repo.CreateNotification(ctx, s.DB, n); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				notificationsTotal.WithLabelValues("duplicate").Inc()
				logger.Debug().Str("recipient", uid).Msg("fan-out: notification already exists")
				continue
			}
			notificationsTotal.WithLabelValues("failed").Inc()
			logger.Warn().Err(err).Str("recipient", uid).Msg("fan-out: create notification")
			continue
		}
		notificationsTotal.WithLabelValues("created").Inc()
		created++
		if s.Pusher != nil {
			s.Pusher.PushNotification(ctx, n)
		}
	}
	return created
}

// Recipients returns members minus sender minus everyone online in roster,
// preserving member order.
func Recipients(members []string, senderID string, roster presence.Roster) []string {
	out := make([]string, 0, len(members))
	for _, uid := range members {
		if uid == senderID || roster.IsOnline(uid) {
			continue
		}
		out = append(out, uid)
	}
	return out
}

// Preview truncates body to n runes, appending an ellipsis when it cut.
func Preview(body string, n int) string {
	body = strings.TrimSpace(body)
	if utf8.RuneCountInString(body) <= n {
		return body
	}
	return string([]rune(body)[:n]) + previewEllipsis
}

// List returns up to limit notifications for userID, newest first, plus the
// cursor of the next page ("" on the last page).
func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool, cursor string, limit int) ([]domain.Notification, string, error) {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "List",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Bool("unread_only", unreadOnly),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	before, err := utils.DecodeCursor(cursor)
	if err != nil {
		return nil, "", fmt.Errorf("%w: cursor", ErrValidation)
	}
	limit = utils.ClampLimit(limit, defaultFeedLimit, maxFeedLimit)
	items, err := repo.ListNotificationsPage(ctx, s.DB, userID, unreadOnly, before, limit)
	if err != nil {
		return nil, "", err
	}
	next := ""
	if len(items) == limit {
		last := items[len(items)-1]
		next = utils.EncodeCursor(utils.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return items, next, nil
}

// UnreadCount returns how many unread notifications userID has.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return repo.CountUnreadNotifications(ctx, s.DB, userID)
}

// MarkRead stamps readAt on one of userID's notifications. Repeating the call
// keeps the first timestamp.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) (*domain.Notification, error) {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "MarkRead",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("notification.id", id),
		),
	)
	defer span.End()

	n, err := repo.MarkNotificationRead(ctx, s.DB, id, userID, clock(s.now))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	return n, nil
}
