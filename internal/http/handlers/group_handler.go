// Group HTTP handlers.
//
//   - GET  /groups             (caller's active groups)
//   - POST /groups             (create; the caller becomes the first member)
//   - POST /groups/{id}/join   (join; repeat joins are no-ops)
//   - POST /groups/{id}/leave  (soft leave)
//
// Membership changes take effect for the message pipeline immediately.
// Connected sockets pick them up on their next groups:sync.
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vroymv/AfroLingo-sub000/internal/domain"
)

// maxGroupIDLen matches the group id column width.
const maxGroupIDLen = 64

// GroupView is the JSON form of a group.
type GroupView struct {
	ID        string    `json:"id" example:"5f0c6b52-3f7e-4d7a-9d55-0a8f3b7c1e21"`
	Name      string    `json:"name" example:"Swahili beginners"`
	CreatedBy string    `json:"createdBy" example:"user-123"`
	CreatedAt time.Time `json:"createdAt"`
}

// MembershipView is the JSON form of a membership.
type MembershipView struct {
	GroupID  string    `json:"groupId"`
	UserID   string    `json:"userId"`
	Role     string    `json:"role" example:"member"`
	JoinedAt time.Time `json:"joinedAt"`
}

// CreateGroupRequest is the payload of POST /groups.
type CreateGroupRequest struct {
	Name string `json:"name" binding:"required" example:"Swahili beginners"`
}

// ListGroupsResponse wraps the caller's groups.
type ListGroupsResponse struct {
	Groups []GroupView `json:"groups"`
}

// JoinGroupResponse reports the membership and whether this call created it.
type JoinGroupResponse struct {
	Membership MembershipView `json:"membership"`
	Created    bool           `json:"created"`
}

func newGroupView(g *domain.Group) GroupView {
	return GroupView{ID: g.ID, Name: g.Name, CreatedBy: g.CreatedBy, CreatedAt: g.CreatedAt}
}

func newMembershipView(m *domain.Membership) MembershipView {
	return MembershipView{GroupID: m.GroupID, UserID: m.UserID, Role: m.Role, JoinedAt: m.JoinedAt}
}

// groupParam returns the trimmed :id path parameter, or "" if it is unusable.
func groupParam(c *gin.Context) string {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" || len(id) > maxGroupIDLen {
		return ""
	}
	return id
}

// ListGroups godoc
// @ID          listGroups
// @Summary     List my groups
// @Tags        Groups
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.ListGroupsResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /groups [get]
func (h *Handlers) ListGroups(c *gin.Context) {
	items, err := h.groups.List(c.Request.Context(), userID(c))
	if err != nil {
		failFor(c, err, ErrCodeListFailed)
		return
	}
	out := make([]GroupView, 0, len(items))
	for i := range items {
		out = append(out, newGroupView(&items[i]))
	}
	ok(c, http.StatusOK, ListGroupsResponse{Groups: out})
}

// CreateGroup godoc
// @ID          createGroup
// @Summary     Create a group
// @Description The caller becomes the group's first member.
// @Tags        Groups
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.CreateGroupRequest  true  "Group"
// @Success     201   {object}  handlers.GroupView
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     401   {object}  handlers.ErrorResponse
// @Failure     500   {object}  handlers.ErrorResponse
// @Router      /groups [post]
func (h *Handlers) CreateGroup(c *gin.Context) {
	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required")
		return
	}
	g, err := h.groups.Create(c.Request.Context(), userID(c), req.Name)
	if err != nil {
		failFor(c, err, ErrCodeCreateFailed)
		return
	}
	c.Header("Location", "/groups/"+g.ID)
	ok(c, http.StatusCreated, newGroupView(g))
}

// JoinGroup godoc
// @ID          joinGroup
// @Summary     Join a group
// @Tags        Groups
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Group ID"
// @Success     200  {object}  handlers.JoinGroupResponse  "Already a member"
// @Success     201  {object}  handlers.JoinGroupResponse  "Joined"
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Group not found"
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /groups/{id}/join [post]
func (h *Handlers) JoinGroup(c *gin.Context) {
	groupID := groupParam(c)
	if groupID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid group id")
		return
	}
	m, created, err := h.groups.Join(c.Request.Context(), userID(c), groupID)
	if err != nil {
		failFor(c, err, ErrCodeInternal)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	ok(c, status, JoinGroupResponse{Membership: newMembershipView(m), Created: created})
}

// LeaveGroup godoc
// @ID          leaveGroup
// @Summary     Leave a group
// @Tags        Groups
// @Security    BearerAuth
// @Param       id   path  string  true  "Group ID"
// @Success     204  "Left"
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Not a member"
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /groups/{id}/leave [post]
func (h *Handlers) LeaveGroup(c *gin.Context) {
	groupID := groupParam(c)
	if groupID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid group id")
		return
	}
	if err := h.groups.Leave(c.Request.Context(), userID(c), groupID); err != nil {
		failFor(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}
