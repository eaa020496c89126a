// Package handlers exposes the REST surface of the messaging core:
//   - groups:        list, create, join, leave
//   - messages:      paged history (weak ETag) and an HTTP fallback send
//   - notifications: paged feed and mark-read
//
// Handlers are transport-thin: they parse and bound inputs, delegate to the
// application services, and translate results and sentinel errors into HTTP
// responses. The caller identity always comes from the bearer token verified
// by middleware.Authenticate.
package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vroymv/AfroLingo-sub000/internal/domain"
	"github.com/vroymv/AfroLingo-sub000/internal/http/middleware"
	"github.com/vroymv/AfroLingo-sub000/internal/services"
)

// GroupService covers membership lifecycle operations.
type GroupService interface {
	Create(ctx context.Context, userID, name string) (*domain.Group, error)
	List(ctx context.Context, userID string) ([]domain.Group, error)
	Join(ctx context.Context, userID, groupID string) (*domain.Membership, bool, error)
	Leave(ctx context.Context, userID, groupID string) error
}

// MessageService is the message pipeline plus history reads.
type MessageService interface {
	Submit(ctx context.Context, senderID string, in services.SendInput, ack func(*services.SendResult)) (*services.SendResult, error)
	History(ctx context.Context, userID, groupID, channelID, cursor string, limit int) ([]domain.Message, string, error)
	Stats(ctx context.Context, userID, groupID string) (int64, *time.Time, error)
}

// NotificationService is the per-user notification feed.
type NotificationService interface {
	List(ctx context.Context, userID string, unreadOnly bool, cursor string, limit int) ([]domain.Notification, string, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, userID, id string) (*domain.Notification, error)
}

// Handlers groups the REST endpoints.
type Handlers struct {
	groups GroupService
	msgs   MessageService
	notifs NotificationService
}

// New binds handlers to their services.
func New(groups GroupService, msgs MessageService, notifs NotificationService) *Handlers {
	return &Handlers{groups: groups, msgs: msgs, notifs: notifs}
}

// userID is the verified caller id. Routes are mounted behind
// middleware.Authenticate, so it is never empty in practice.
func userID(c *gin.Context) string {
	return middleware.UserID(c)
}
