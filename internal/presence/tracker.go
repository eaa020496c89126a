// Package presence tracks which users are online in which groups.
//
// Each group owns one Redis hash, <prefix>:group:<groupID>, mapping a user id
// to the unix-millisecond time of that user's last heartbeat. The hash key
// carries a TTL that is refreshed on every write, so an abandoned group
// expires on its own. A user is online while now-lastHeartbeat <= TTL; stale
// and unparsable fields are purged whenever the roster is read.
//
// The state is advisory. Losing it (a Redis restart) only empties rosters
// until the next heartbeats arrive.
package presence

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DefaultTTL is how long a heartbeat keeps a user online.
const DefaultTTL = 45 * time.Second

// Roster is a full snapshot of a group's online users.
type Roster struct {
	GroupID string   `json:"groupId"`
	UserIDs []string `json:"onlineUserIds"`
	Count   int      `json:"onlineCount"`
}

// Tracker reads and writes presence entries. It is safe for concurrent use.
type Tracker struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
	now    func() time.Time
}

// NewTracker returns a Tracker over rdb. A non-positive ttl falls back to
// DefaultTTL and an empty prefix to "presence".
func NewTracker(rdb redis.Cmdable, ttl time.Duration, prefix string) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if prefix == "" {
		prefix = "presence"
	}
	return &Tracker{rdb: rdb, ttl: ttl, prefix: prefix, now: time.Now}
}

// TTL returns the liveness window.
func (t *Tracker) TTL() time.Duration { return t.ttl }

// Key returns the Redis key holding groupID's presence hash.
func (t *Tracker) Key(groupID string) string {
	return t.prefix + ":group:" + groupID
}

// MarkOnline records a heartbeat for userID in groupID. The field write and
// the TTL refresh run in one MULTI/EXEC so expiry cannot slip in between.
func (t *Tracker) MarkOnline(ctx context.Context, groupID, userID string) error {
	key := t.Key(groupID)
	stamp := strconv.FormatInt(t.now().UnixMilli(), 10)
	_, err := t.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, userID, stamp)
		pipe.Expire(ctx, key, t.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("presence mark online %s/%s: %w", groupID, userID, err)
	}
	return nil
}

// MarkOffline removes userID's field only; other members keep the key alive.
func (t *Tracker) MarkOffline(ctx context.Context, groupID, userID string) error {
	if err := t.rdb.HDel(ctx, t.Key(groupID), userID).Err(); err != nil {
		return fmt.Errorf("presence mark offline %s/%s: %w", groupID, userID, err)
	}
	return nil
}

// Roster returns the users whose last heartbeat is within the TTL, sorted.
// Stale or unparsable fields are deleted and the key's TTL refreshed as a
// side effect.
func (t *Tracker) Roster(ctx context.Context, groupID string) (Roster, error) {
	key := t.Key(groupID)
	out := Roster{GroupID: groupID, UserIDs: []string{}}

	entries, err := t.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return out, fmt.Errorf("presence roster %s: %w", groupID, err)
	}
	if len(entries) == 0 {
		return out, nil
	}

	cutoff := t.now().Add(-t.ttl).UnixMilli()
	var stale []string
	for userID, raw := range entries {
		ms, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil || ms < cutoff {
			stale = append(stale, userID)
			continue
		}
		out.UserIDs = append(out.UserIDs, userID)
	}
	sort.Strings(out.UserIDs)
	out.Count = len(out.UserIDs)

	_, err = t.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(stale) > 0 {
			pipe.HDel(ctx, key, stale...)
		}
		pipe.Expire(ctx, key, t.ttl)
		return nil
	})
	if err != nil {
		// The fresh set is still correct; only the cleanup failed.
		log.Warn().Err(err).Str("group_id", groupID).Int("stale", len(stale)).Msg("presence: purge failed")
	}
	return out, nil
}

// IsOnline reports whether userID is in the roster of groupID.
func (r Roster) IsOnline(userID string) bool {
	i := sort.SearchStrings(r.UserIDs, userID)
	return i < len(r.UserIDs) && r.UserIDs[i] == userID
}
