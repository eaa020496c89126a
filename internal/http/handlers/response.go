// Package handlers – response helpers
//
// Uniform JSON error envelope and small success helpers shared by all
// handlers, plus the mapping from service sentinel errors to HTTP status
// codes and stable error codes.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vroymv/AfroLingo-sub000/internal/http/middleware"
	"github.com/vroymv/AfroLingo-sub000/internal/services"
)

// ErrorResponse is the JSON body of every non-2xx API response.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_a_member"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"not a member of this group"`
}

// fail aborts with an ErrorResponse. 5xx responses are logged with the
// request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	resp := ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	}

	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is fail for callers outside the package (router fallbacks).
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failFor maps a service error onto a response. Unknown errors become a 500
// with fallbackCode; their detail is logged, not returned.
func failFor(c *gin.Context, err error, fallbackCode string) {
	switch {
	case errors.Is(err, services.ErrValidation):
		fail(c, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, services.ErrNotAMember):
		fail(c, http.StatusForbidden, ErrCodeNotAMember, "not a member of this group")
	case errors.Is(err, services.ErrGroupNotFound):
		fail(c, http.StatusNotFound, ErrCodeGroupNotFound, "group not found")
	case errors.Is(err, services.ErrChannelNotFound):
		fail(c, http.StatusNotFound, ErrCodeChannelNotFound, "channel not found in group")
	case errors.Is(err, services.ErrNotificationNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotificationGone, "notification not found")
	case errors.Is(err, services.ErrPersistFailed):
		middleware.LoggerFrom(c).Error().Err(err).Msg("persist failed")
		c.Header("Retry-After", "1")
		fail(c, http.StatusServiceUnavailable, ErrCodePersistFailed, services.ErrPersistFailed.Error())
	default:
		middleware.LoggerFrom(c).Error().Err(err).Msg("unexpected service error")
		fail(c, http.StatusInternalServerError, fallbackCode, "internal error")
	}
}

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
