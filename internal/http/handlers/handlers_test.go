package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vroymv/AfroLingo-sub000/internal/domain"
	"github.com/vroymv/AfroLingo-sub000/internal/http/middleware"
	"github.com/vroymv/AfroLingo-sub000/internal/repo"
	"github.com/vroymv/AfroLingo-sub000/internal/services"
)

// ---------- test plumbing ----------

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

type recordingBroadcaster struct {
	mu   sync.Mutex
	msgs []*domain.Message
}

func (b *recordingBroadcaster) BroadcastMessage(_ context.Context, m *domain.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, m)
}

func (b *recordingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.msgs)
}

// api runs the handlers over real services and an in-memory database. The
// caller is taken from X-Test-User, standing in for bearer authentication.
type api struct {
	t  *testing.T
	db *gorm.DB
	bc *recordingBroadcaster
	r  *gin.Engine
}

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)
	_ = captureLogs(t)

	db := newTestDB(t)
	bc := &recordingBroadcaster{}
	notifs := services.NewNotificationService(db, nil, nil)
	h := New(services.NewGroupService(db), services.NewMessageService(db, bc, notifs), notifs)

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(func(c *gin.Context) {
		if u := c.GetHeader("X-Test-User"); u != "" {
			c.Set("userID", u)
		}
		c.Next()
	})
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))

	r.GET("/groups", h.ListGroups)
	r.POST("/groups", h.CreateGroup)
	r.POST("/groups/:id/join", h.JoinGroup)
	r.POST("/groups/:id/leave", h.LeaveGroup)
	r.GET("/groups/:id/messages", h.ListMessages)
	r.POST("/groups/:id/messages", h.PostMessage)
	r.GET("/notifications", h.ListNotifications)
	r.POST("/notifications/:id/read", h.MarkNotificationRead)

	return &api{t: t, db: db, bc: bc, r: r}
}

func (a *api) do(method, path, user string, body any, headers map[string]string) *httptest.ResponseRecorder {
	a.t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			a.t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	return w
}

func (a *api) join(groupID string, users ...string) {
	a.t.Helper()
	for _, u := range users {
		if _, _, err := repo.JoinGroup(context.Background(), a.db, groupID, u, repo.RoleMember); err != nil {
			a.t.Fatalf("join %s/%s: %v", groupID, u, err)
		}
	}
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func wantError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d; want %d (%s)", w.Code, status, w.Body.String())
	}
	if er := decodeBody[ErrorResponse](t, w); er.Code != code || er.RequestID == "" {
		t.Fatalf("error body = %+v; want code %s", er, code)
	}
}
