// Notification HTTP handlers.
//
//   - GET  /notifications              (caller's feed, newest first)
//   - POST /notifications/{id}/read    (mark one read; idempotent)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vroymv/AfroLingo-sub000/internal/realtime"
	"github.com/vroymv/AfroLingo-sub000/internal/sysutil"
	"github.com/vroymv/AfroLingo-sub000/internal/utils"
)

// ListNotificationsResponse is one page of the feed.
type ListNotificationsResponse struct {
	Notifications []realtime.NotificationView `json:"notifications"`
	NextCursor    string                      `json:"nextCursor"`
	UnreadCount   int64                       `json:"unreadCount"`
}

// MarkReadResponse wraps the updated notification.
type MarkReadResponse struct {
	Notification realtime.NotificationView `json:"notification"`
}

// ListNotifications godoc
// @ID          listNotifications
// @Summary     List my notifications
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
// @Param       unread  query  bool    false  "Only unread"
// @Param       cursor  query  string  false  "Opaque cursor from a previous page"
// @Param       limit   query  int     false  "Page size"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListNotificationsResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /notifications [get]
func (h *Handlers) ListNotifications(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)

	items, next, err := h.notifs.List(ctx, uid,
		sysutil.IsTruthy(c.Query("unread")),
		c.Query("cursor"),
		utils.AtoiDefault(c.Query("limit"), 0))
	if err != nil {
		failFor(c, err, ErrCodeListFailed)
		return
	}
	unread, err := h.notifs.UnreadCount(ctx, uid)
	if err != nil {
		failFor(c, err, ErrCodeListFailed)
		return
	}

	out := make([]realtime.NotificationView, 0, len(items))
	for i := range items {
		out = append(out, realtime.NewNotificationView(&items[i]))
	}
	ok(c, http.StatusOK, ListNotificationsResponse{Notifications: out, NextCursor: next, UnreadCount: unread})
}

// MarkNotificationRead godoc
// @ID          markNotificationRead
// @Summary     Mark a notification read
// @Description Repeating the call keeps the first readAt.
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Notification ID"
// @Success     200  {object}  handlers.MarkReadResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /notifications/{id}/read [post]
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid notification id")
		return
	}
	n, err := h.notifs.MarkRead(c.Request.Context(), userID(c), id)
	if err != nil {
		failFor(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, MarkReadResponse{Notification: realtime.NewNotificationView(n)})
}
