package presence

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestTracker(t *testing.T) (*Tracker, *miniredis.Miniredis, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(rdb, 45*time.Second, "test")
	tr.now = func() time.Time { return clock }
	return tr, mr, &clock
}

func TestNewTracker_Defaults(t *testing.T) {
	tr := NewTracker(nil, 0, "")
	if tr.TTL() != DefaultTTL {
		t.Fatalf("TTL = %v; want %v", tr.TTL(), DefaultTTL)
	}
	if tr.Key("g1") != "presence:group:g1" {
		t.Fatalf("Key = %q", tr.Key("g1"))
	}
}

func TestMarkOnline_SetsFieldAndTTL(t *testing.T) {
	tr, mr, clock := newTestTracker(t)
	ctx := context.Background()

	if err := tr.MarkOnline(ctx, "g1", "u1"); err != nil {
		t.Fatalf("MarkOnline: %v", err)
	}
	key := tr.Key("g1")
	if got := mr.HGet(key, "u1"); got == "" {
		t.Fatalf("field not written")
	} else if want := strconv.FormatInt(clock.UnixMilli(), 10); got != want {
		t.Fatalf("field = %s; want %s", got, want)
	}
	if ttl := mr.TTL(key); ttl != 45*time.Second {
		t.Fatalf("key TTL = %v; want 45s", ttl)
	}
}

func TestMarkOffline_RemovesOnlyField(t *testing.T) {
	tr, mr, _ := newTestTracker(t)
	ctx := context.Background()
	_ = tr.MarkOnline(ctx, "g1", "u1")
	_ = tr.MarkOnline(ctx, "g1", "u2")

	if err := tr.MarkOffline(ctx, "g1", "u1"); err != nil {
		t.Fatalf("MarkOffline: %v", err)
	}
	if !mr.Exists(tr.Key("g1")) {
		t.Fatalf("key should survive while other members remain")
	}
	r, err := tr.Roster(ctx, "g1")
	if err != nil {
		t.Fatalf("Roster: %v", err)
	}
	if !reflect.DeepEqual(r.UserIDs, []string{"u2"}) || r.Count != 1 {
		t.Fatalf("roster = %+v", r)
	}
}

func TestRoster_PurgesStaleAndUnparsable(t *testing.T) {
	tr, mr, clock := newTestTracker(t)
	ctx := context.Background()
	key := tr.Key("g1")

	_ = tr.MarkOnline(ctx, "g1", "old")
	*clock = clock.Add(30 * time.Second)
	_ = tr.MarkOnline(ctx, "g1", "fresh")
	mr.HSet(key, "garbage", "not-a-number")

	*clock = clock.Add(20 * time.Second) // old is 50s stale, fresh is 20s

	r, err := tr.Roster(ctx, "g1")
	if err != nil {
		t.Fatalf("Roster: %v", err)
	}
	if !reflect.DeepEqual(r.UserIDs, []string{"fresh"}) || r.Count != 1 || r.GroupID != "g1" {
		t.Fatalf("roster = %+v", r)
	}
	if mr.HGet(key, "old") != "" || mr.HGet(key, "garbage") != "" {
		t.Fatalf("stale fields should be deleted")
	}
	if ttl := mr.TTL(key); ttl != 45*time.Second {
		t.Fatalf("roster read should refresh TTL, got %v", ttl)
	}
}

func TestRoster_BoundaryIsInclusive(t *testing.T) {
	tr, _, clock := newTestTracker(t)
	ctx := context.Background()
	_ = tr.MarkOnline(ctx, "g1", "u1")

	*clock = clock.Add(45 * time.Second)
	r, _ := tr.Roster(ctx, "g1")
	if !r.IsOnline("u1") {
		t.Fatalf("heartbeat exactly TTL old should still count as online")
	}

	*clock = clock.Add(time.Millisecond)
	r, _ = tr.Roster(ctx, "g1")
	if r.IsOnline("u1") || r.Count != 0 {
		t.Fatalf("heartbeat older than TTL must be excluded: %+v", r)
	}
}

func TestRoster_EmptyGroup(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	r, err := tr.Roster(context.Background(), "nobody-here")
	if err != nil || r.Count != 0 || r.UserIDs == nil {
		t.Fatalf("empty roster = %+v err=%v", r, err)
	}
}

func TestKeyExpiresWithoutHeartbeats(t *testing.T) {
	tr, mr, _ := newTestTracker(t)
	_ = tr.MarkOnline(context.Background(), "g1", "u1")
	mr.FastForward(46 * time.Second)
	if mr.Exists(tr.Key("g1")) {
		t.Fatalf("key should expire after TTL without heartbeats")
	}
}

func TestErrorsWhenStoreDown(t *testing.T) {
	tr, mr, _ := newTestTracker(t)
	mr.Close()
	ctx := context.Background()

	for name, err := range map[string]error{
		"online":  tr.MarkOnline(ctx, "g1", "u1"),
		"offline": tr.MarkOffline(ctx, "g1", "u1"),
	} {
		if err == nil || !strings.Contains(err.Error(), "presence") {
			t.Fatalf("%s: expected wrapped error, got %v", name, err)
		}
	}
	if _, err := tr.Roster(ctx, "g1"); err == nil || errors.Is(err, context.Canceled) {
		t.Fatalf("roster: expected store error, got %v", err)
	}
}

// failPurge fails every pipeline that does not write a heartbeat, leaving
// MarkOnline's transaction untouched.
type failPurge struct{}

func (failPurge) DialHook(next redis.DialHook) redis.DialHook { return next }

func (failPurge) ProcessHook(next redis.ProcessHook) redis.ProcessHook { return next }

func (failPurge) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		for _, cmd := range cmds {
			if cmd.Name() == "hset" {
				return next(ctx, cmds)
			}
		}
		return errors.New("purge failed")
	}
}

func TestRoster_PurgeFailureKeepsFreshSet(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	rdb.AddHook(failPurge{})

	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(rdb, 45*time.Second, "test")
	tr.now = func() time.Time { return clock }
	ctx := context.Background()

	if err := tr.MarkOnline(ctx, "g1", "u2"); err != nil {
		t.Fatalf("MarkOnline: %v", err)
	}
	mr.HSet(tr.Key("g1"), "gone", strconv.FormatInt(clock.Add(-time.Hour).UnixMilli(), 10))

	r, err := tr.Roster(ctx, "g1")
	if err != nil {
		t.Fatalf("cleanup failure must not fail the read: %v", err)
	}
	if !reflect.DeepEqual(r.UserIDs, []string{"u2"}) || r.Count != 1 {
		t.Fatalf("roster = %+v", r)
	}
	if mr.HGet(tr.Key("g1"), "gone") == "" {
		t.Fatalf("stale field should survive a failed purge")
	}
}
