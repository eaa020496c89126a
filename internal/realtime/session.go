package realtime

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/vroymv/AfroLingo-sub000/internal/auth"
	"github.com/vroymv/AfroLingo-sub000/internal/fabric"
	"github.com/vroymv/AfroLingo-sub000/internal/presence"
)

// MembershipSource lists the groups a user is an active member of.
type MembershipSource interface {
	ActiveGroupIDs(ctx context.Context, userID string) ([]string, error)
}

// PresenceTracker is the subset of presence.Tracker sessions use.
type PresenceTracker interface {
	MarkOnline(ctx context.Context, groupID, userID string) error
	MarkOffline(ctx context.Context, groupID, userID string) error
	Roster(ctx context.Context, groupID string) (presence.Roster, error)
}

// SessionManager authenticates connections and keeps each connection's room
// set in line with the user's active memberships. Presence calls are
// best-effort: their errors are logged and never fail a session operation.
type SessionManager struct {
	Verifier        auth.Verifier
	Memberships     MembershipSource
	Presence        PresenceTracker // nil disables presence
	Fabric          *fabric.Fabric
	Emitter         *Emitter
	ProtocolVersion int
}

// Authenticate resolves the handshake credential to a user id. Any failure
// rejects the connection; nothing has been joined at this point.
func (s *SessionManager) Authenticate(r *http.Request) (string, error) {
	token := auth.BearerFromRequest(r)
	if token == "" {
		return "", auth.ErrMissingToken
	}
	return s.Verifier.Verify(r.Context(), token)
}

// Open joins c to its personal room and to one room per active membership,
// greets the client with hello, then marks the user online in each group and
// broadcasts the rosters. hello is always the first frame c queues.
func (s *SessionManager) Open(ctx context.Context, c *Conn) error {
	groups, err := s.Memberships.ActiveGroupIDs(ctx, c.userID)
	if err != nil {
		return fmt.Errorf("load memberships: %w", err)
	}
	groups = dedupe(groups)

	s.Fabric.Join(fabric.UserRoom(c.userID), c)
	for _, g := range groups {
		s.Fabric.Join(fabric.GroupRoom(g), c)
	}
	c.setGroups(groups)
	c.sendEvent(EventHello, HelloPayload{ProtocolVersion: s.ProtocolVersion, UserID: c.userID})

	for _, g := range groups {
		s.touch(ctx, c, g)
	}
	c.logger.Info().Int("groups", len(groups)).Msg("session opened")
	return nil
}

// Resync reconciles c's group rooms with the user's current memberships and
// confirms with groups:synced. With no membership change the room set is left
// exactly as it was. A membership lookup failure keeps the current rooms.
func (s *SessionManager) Resync(ctx context.Context, c *Conn) {
	current := c.Groups()
	desired, err := s.Memberships.ActiveGroupIDs(ctx, c.userID)
	if err != nil {
		c.logger.Warn().Err(err).Msg("resync: load memberships, keeping current rooms")
		c.sendEvent(EventGroupsSynced, GroupsSyncedPayload{GroupsCount: len(current)})
		return
	}
	desired = dedupe(desired)

	want := make(map[string]struct{}, len(desired))
	for _, g := range desired {
		want[g] = struct{}{}
	}
	have := make(map[string]struct{}, len(current))
	for _, g := range current {
		have[g] = struct{}{}
	}

	var left []string
	for _, g := range current {
		if _, ok := want[g]; !ok {
			s.Fabric.Leave(fabric.GroupRoom(g), c)
			left = append(left, g)
		}
	}
	for _, g := range desired {
		if _, ok := have[g]; !ok {
			s.Fabric.Join(fabric.GroupRoom(g), c)
		}
	}
	c.setGroups(desired)

	for _, g := range left {
		s.markOffline(ctx, c, g)
	}
	for _, g := range desired {
		s.touch(ctx, c, g)
	}

	c.sendEvent(EventGroupsSynced, GroupsSyncedPayload{GroupsCount: len(desired)})
	c.logger.Debug().Int("groups", len(desired)).Int("left", len(left)).Msg("rooms resynced")
}

// Heartbeat re-marks the user online in every cached group and broadcasts
// each roster.
func (s *SessionManager) Heartbeat(ctx context.Context, c *Conn) {
	for _, g := range c.Groups() {
		s.touch(ctx, c, g)
	}
}

// Close removes c from all rooms, then marks the user offline in every cached
// group and broadcasts the rosters. While another local session of the same
// user is still open the presence fields are left alone.
func (s *SessionManager) Close(ctx context.Context, c *Conn) {
	rooms := len(s.Fabric.Rooms(c))
	s.Fabric.LeaveAll(c)
	if s.Fabric.LocalCount(fabric.UserRoom(c.userID)) > 0 {
		c.logger.Info().Int("rooms", rooms).Msg("session closed, user still connected")
		return
	}
	for _, g := range c.Groups() {
		s.markOffline(ctx, c, g)
	}
	c.logger.Info().Int("rooms", rooms).Msg("session closed")
}

func (s *SessionManager) touch(ctx context.Context, c *Conn, groupID string) {
	if s.Presence == nil {
		return
	}
	if err := s.Presence.MarkOnline(ctx, groupID, c.userID); err != nil {
		c.logger.Warn().Err(err).Str("group_id", groupID).Msg("presence: mark online")
	}
	s.broadcastRoster(ctx, c, groupID)
}

func (s *SessionManager) markOffline(ctx context.Context, c *Conn, groupID string) {
	if s.Presence == nil {
		return
	}
	if err := s.Presence.MarkOffline(ctx, groupID, c.userID); err != nil {
		c.logger.Warn().Err(err).Str("group_id", groupID).Msg("presence: mark offline")
	}
	s.broadcastRoster(ctx, c, groupID)
}

func (s *SessionManager) broadcastRoster(ctx context.Context, c *Conn, groupID string) {
	roster, err := s.Presence.Roster(ctx, groupID)
	if err != nil {
		c.logger.Warn().Err(err).Str("group_id", groupID).Msg("presence: roster")
		return
	}
	s.Emitter.BroadcastRoster(ctx, roster)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
