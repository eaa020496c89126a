package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vroymv/AfroLingo-sub000/internal/auth"
	"github.com/vroymv/AfroLingo-sub000/internal/config"
	"github.com/vroymv/AfroLingo-sub000/internal/fabric"
	"github.com/vroymv/AfroLingo-sub000/internal/presence"
	"github.com/vroymv/AfroLingo-sub000/internal/repo"
	"github.com/vroymv/AfroLingo-sub000/internal/services"
)

const testSecret = "realtime-secret"

// harness wires the full stack in-process: sqlite, miniredis presence, a
// local-only fabric, the services, and a Server whose connections have no
// socket. Frames queued for a connection are read straight off its buffer.
type harness struct {
	t       *testing.T
	db      *gorm.DB
	mr      *miniredis.Miniredis
	tracker *presence.Tracker
	fabric  *fabric.Fabric
	server  *Server
}

func wsConfig() config.WSConfig {
	return config.WSConfig{
		MaxMessageBytes: 64 << 10,
		WriteWait:       time.Second,
		PongWait:        5 * time.Second,
		SendBuffer:      128,
		InboundRPS:      1000,
		InboundBurst:    1000,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	dsn := fmt.Sprintf("file:rt_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	tracker := presence.NewTracker(rdb, presence.DefaultTTL, "presence")

	fab := fabric.New(fabric.Options{})
	fab.Start(context.Background())
	t.Cleanup(func() { _ = fab.Close() })

	emitter := NewEmitter(fab)
	groups := services.NewGroupService(db)
	notifs := services.NewNotificationService(db, tracker, emitter)
	msgs := services.NewMessageService(db, emitter, notifs)

	verifier, err := auth.NewJWTVerifier(testSecret, "", "")
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	sessions := &SessionManager{
		Verifier:        verifier,
		Memberships:     groups,
		Presence:        tracker,
		Fabric:          fab,
		Emitter:         emitter,
		ProtocolVersion: 1,
	}
	srv := NewServer(wsConfig(), sessions, msgs, emitter, nil)
	return &harness{t: t, db: db, mr: mr, tracker: tracker, fabric: fab, server: srv}
}

func (h *harness) join(groupID string, users ...string) {
	h.t.Helper()
	for _, u := range users {
		if _, _, err := repo.JoinGroup(context.Background(), h.db, groupID, u, repo.RoleMember); err != nil {
			h.t.Fatalf("join %s/%s: %v", groupID, u, err)
		}
	}
}

// connect opens a session for userID on a socketless connection.
func (h *harness) connect(userID string) *Conn {
	h.t.Helper()
	c := newConn(uuid.NewString(), userID, nil, 128, nil)
	if err := h.server.Sessions.Open(context.Background(), c); err != nil {
		h.t.Fatalf("open %s: %v", userID, err)
	}
	return c
}

func (h *harness) send(c *Conn, event string, data any) {
	h.t.Helper()
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			h.t.Fatalf("marshal: %v", err)
		}
		raw = b
	}
	frame, _ := json.Marshal(Envelope{Event: event, Data: raw})
	h.server.dispatch(context.Background(), c, frame)
}

func (h *harness) roster(groupID string) presence.Roster {
	h.t.Helper()
	r, err := h.tracker.Roster(context.Background(), groupID)
	if err != nil {
		h.t.Fatalf("roster: %v", err)
	}
	return r
}

// drain returns every frame queued on c.
func drain(t *testing.T, c *Conn) []Envelope {
	t.Helper()
	var out []Envelope
	for {
		select {
		case f := <-c.send:
			var env Envelope
			if err := json.Unmarshal(f, &env); err != nil {
				t.Fatalf("bad frame %s: %v", f, err)
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

func only(envs []Envelope, event string) []Envelope {
	var out []Envelope
	for _, e := range envs {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func decode[T any](t *testing.T, env Envelope) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatalf("decode %s: %v", env.Event, err)
	}
	return v
}

func (h *harness) count(model any) int64 {
	h.t.Helper()
	var n int64
	if err := h.db.Model(model).Count(&n).Error; err != nil {
		h.t.Fatalf("count: %v", err)
	}
	return n
}
