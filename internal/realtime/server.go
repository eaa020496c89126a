package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/vroymv/AfroLingo-sub000/internal/config"
)

// Server upgrades authenticated requests to websocket connections and runs
// one read pump and one write pump per connection.
type Server struct {
	Sessions *SessionManager
	Messages MessageSubmitter
	Emitter  *Emitter

	cfg      config.WSConfig
	upgrader websocket.Upgrader
	routes   map[string]handlerFunc

	base   context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	conns map[string]*Conn
	wg    sync.WaitGroup
}

// NewServer builds a Server. allowedOrigins restricts browser origins; an
// empty list or "*" allows any origin (mobile clients send none).
func NewServer(cfg config.WSConfig, sessions *SessionManager, messages MessageSubmitter, emitter *Emitter, allowedOrigins []string) *Server {
	base, cancel := context.WithCancel(context.Background())
	s := &Server{
		Sessions: sessions,
		Messages: messages,
		Emitter:  emitter,
		cfg:      cfg,
		base:     base,
		cancel:   cancel,
		conns:    make(map[string]*Conn),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	s.routes = s.handlers()
	return s
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(set) == 0 {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Handler authenticates the handshake and upgrades. Authentication failures
// answer 401 before the upgrade.
func (s *Server) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := s.Sessions.Authenticate(c.Request)
		if err != nil {
			handshakeRejects.Inc()
			log.Debug().Err(err).Str("remote", c.ClientIP()).Msg("websocket handshake rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "unauthorized",
				"message": "missing or invalid credentials",
			})
			return
		}

		ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade has already written the HTTP error.
			log.Debug().Err(err).Msg("websocket upgrade failed")
			return
		}

		conn := newConn(uuid.NewString(), userID, ws, s.cfg.SendBuffer,
			rate.NewLimiter(rate.Limit(s.cfg.InboundRPS), s.cfg.InboundBurst))
		s.serve(conn)
	}
}

// serve runs a connection to completion on the calling goroutine.
func (s *Server) serve(c *Conn) {
	if !s.track(c) {
		_ = c.ws.Close()
		return
	}
	defer s.untrack(c)

	ctx := s.base
	// The writer drains frames while Open queues one roster per group.
	go c.writePump(s.cfg.WriteWait, s.cfg.PingInterval())
	if err := s.Sessions.Open(ctx, c); err != nil {
		c.logger.Error().Err(err).Msg("open session")
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session unavailable"),
			deadline(s.cfg.WriteWait))
		c.close()
		s.Sessions.Fabric.LeaveAll(c)
		return
	}

	c.readPump(s.cfg.MaxMessageBytes, s.cfg.PongWait, func(raw []byte) {
		s.dispatch(ctx, c, raw)
	})

	c.close()
	// The base context may already be cancelled during shutdown; offline
	// marks still need to reach the presence store.
	s.Sessions.Close(context.WithoutCancel(ctx), c)
}

func (s *Server) track(c *Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.base.Err() != nil {
		return false
	}
	s.conns[c.id] = c
	s.wg.Add(1)
	connectionsOpen.Inc()
	return true
}

func (s *Server) untrack(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
	connectionsOpen.Dec()
	s.wg.Done()
}

// Shutdown closes every connection and waits until each has marked itself
// offline, or until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.cancel()
	for _, c := range s.conns {
		c.close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func deadline(d time.Duration) time.Time { return time.Now().Add(d) }
