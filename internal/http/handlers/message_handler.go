// Message HTTP handlers.
//
//   - GET  /groups/{id}/messages   (paged history, newest first, weak ETag)
//   - POST /groups/{id}/messages   (HTTP fallback for message:send)
//
// The POST route runs the same pipeline as the websocket event: validate,
// authorize, resolve channel, persist idempotently, then broadcast and fan out
// when the message is new.
//
// Idempotency:
// The Idempotency-Key header is the message's clientMessageId. Resubmitting
// with the same key returns the original message with
// `Idempotency-Replayed: true` and has no side effects.
package handlers

import (
	"fmt"
	"hash/fnv"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vroymv/AfroLingo-sub000/internal/http/middleware"
	"github.com/vroymv/AfroLingo-sub000/internal/realtime"
	"github.com/vroymv/AfroLingo-sub000/internal/services"
	"github.com/vroymv/AfroLingo-sub000/internal/utils"
)

// PostMessageRequest is the JSON payload of the HTTP send.
type PostMessageRequest struct {
	// Body is the message text, 1..4000 characters after trimming.
	Body string `json:"body" binding:"required" example:"Habari za asubuhi!"`
	// ChannelID targets a channel of the group; empty means the default channel.
	ChannelID string `json:"channelId,omitempty"`
	// ClientMessageID is used when no Idempotency-Key header is sent.
	ClientMessageID string `json:"clientMessageId,omitempty" example:"c-01HZX"`
	// Metadata is stored and forwarded verbatim.
	Metadata map[string]any `json:"metadata,omitempty" swaggertype:"object"`
}

// PostMessageResponse wraps the persisted message.
type PostMessageResponse struct {
	Message realtime.MessageView `json:"message"`
}

// ListMessagesResponse is one page of history.
type ListMessagesResponse struct {
	Messages []realtime.MessageView `json:"messages"`
	// NextCursor fetches the following (older) page; empty on the last page.
	NextCursor string `json:"nextCursor"`
}

// historyETag covers the group's (count, newest) and the page requested, so
// different pages never share a validator.
func historyETag(groupID string, count int64, latestMicros int64, page string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(page))
	return fmt.Sprintf(`W/"messages:%s:%d:%d:%08x"`, groupID, count, latestMicros, h.Sum32())
}

// ListMessages godoc
// @ID          listMessages
// @Summary     List group messages
// @Description Newest first. Pass nextCursor back as cursor for older pages.
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
// @Param       id         path    string  true   "Group ID"
// @Param       channelId  query   string  false  "Restrict to one channel"
// @Param       cursor     query   string  false  "Opaque cursor from a previous page"
// @Param       limit      query   int     false  "Page size"  minimum(1) maximum(100) default(50)
// @Param       If-None-Match  header  string  false  "ETag from a previous response"
// @Success     200  {object}  handlers.ListMessagesResponse
// @Success     304  "Not modified"
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Not a member"
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /groups/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	groupID := groupParam(c)
	if groupID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid group id")
		return
	}
	uid := userID(c)
	channelID := strings.TrimSpace(c.Query("channelId"))
	cursor := c.Query("cursor")
	limit := utils.AtoiDefault(c.Query("limit"), 0)

	// Stats is member-only, so it also authorizes the request.
	count, latest, err := h.msgs.Stats(ctx, uid, groupID)
	if err != nil {
		failFor(c, err, ErrCodeListFailed)
		return
	}
	var ts int64
	if latest != nil {
		ts = latest.UnixMicro()
	}
	etag := historyETag(groupID, count, ts, fmt.Sprintf("%s|%s|%d", channelID, cursor, limit))
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return
	}

	items, next, err := h.msgs.History(ctx, uid, groupID, channelID, cursor, limit)
	if err != nil {
		failFor(c, err, ErrCodeListFailed)
		return
	}
	out := make([]realtime.MessageView, 0, len(items))
	for i := range items {
		out = append(out, realtime.NewMessageView(&items[i]))
	}
	ok(c, http.StatusOK, ListMessagesResponse{Messages: out, NextCursor: next})
}

// PostMessage godoc
// @ID          postMessage
// @Summary     Send a message
// @Description HTTP fallback for the message:send event. Safe to retry with the same Idempotency-Key.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id               path    string  true   "Group ID"
// @Param       Idempotency-Key  header  string  false  "Client message id (takes precedence over clientMessageId)"
// @Param       body             body    handlers.PostMessageRequest  true  "Message"
// @Success     201  {object}  handlers.PostMessageResponse  "Created"
// @Success     200  {object}  handlers.PostMessageResponse  "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Not a member"
// @Failure     404  {object}  handlers.ErrorResponse  "Channel not found"
// @Failure     503  {object}  handlers.ErrorResponse  "Persist failed, retry"
// @Router      /groups/{id}/messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	groupID := groupParam(c)
	if groupID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid group id")
		return
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body required")
		return
	}

	clientID := req.ClientMessageID
	if key, found := middleware.GetIdempotencyKey(c); found {
		clientID = key
	}
	if strings.TrimSpace(clientID) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Idempotency-Key header or clientMessageId required")
		return
	}

	res, err := h.msgs.Submit(c.Request.Context(), userID(c), services.SendInput{
		GroupID:         groupID,
		ChannelID:       req.ChannelID,
		Body:            req.Body,
		ClientMessageID: clientID,
		Metadata:        req.Metadata,
	}, nil)
	if err != nil {
		failFor(c, err, ErrCodePersistFailed)
		return
	}

	status := http.StatusCreated
	if !res.Created {
		c.Header(middleware.HeaderIdempotencyReplayed, "true")
		status = http.StatusOK
	}
	ok(c, status, PostMessageResponse{Message: realtime.NewMessageView(res.Message)})
}
