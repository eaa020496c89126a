package realtime

import (
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Conn is one authenticated client connection. It is a fabric subscriber:
// frames for its rooms are queued on send and written by the write pump.
type Conn struct {
	id     string
	userID string
	ws     *websocket.Conn

	send    chan []byte
	done    chan struct{}
	closing sync.Once

	limiter *rate.Limiter
	logger  zerolog.Logger

	mu     sync.RWMutex
	groups []string // sorted ids of the group rooms this connection sits in
}

func newConn(id, userID string, ws *websocket.Conn, buffer int, limiter *rate.Limiter) *Conn {
	return &Conn{
		id:      id,
		userID:  userID,
		ws:      ws,
		send:    make(chan []byte, buffer),
		done:    make(chan struct{}),
		limiter: limiter,
		logger:  log.With().Str("conn_id", id).Str("user_id", userID).Logger(),
	}
}

// ID implements fabric.Subscriber.
func (c *Conn) ID() string { return c.id }

// Deliver implements fabric.Subscriber. It never blocks: a full buffer or a
// closed connection drops the frame.
func (c *Conn) Deliver(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// sendEvent queues an event for this connection only.
func (c *Conn) sendEvent(event string, data any) {
	frame, err := Encode(event, data)
	if err != nil {
		c.logger.Error().Err(err).Str("event", event).Msg("encode frame")
		return
	}
	if !c.Deliver(frame) {
		c.logger.Warn().Str("event", event).Msg("send buffer full, frame dropped")
	}
}

// sendError reports a client error to this connection only.
func (c *Conn) sendError(code, message string, retryable bool, ctx map[string]any) {
	errorsOut.WithLabelValues(code).Inc()
	c.sendEvent(EventError, ErrorPayload{Code: code, Message: message, Retryable: retryable, Context: ctx})
}

// Groups returns a copy of the cached group ids.
func (c *Conn) Groups() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.groups...)
}

func (c *Conn) setGroups(ids []string) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	c.mu.Lock()
	c.groups = sorted
	c.mu.Unlock()
}

func (c *Conn) inGroup(groupID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i := sort.SearchStrings(c.groups, groupID)
	return i < len(c.groups) && c.groups[i] == groupID
}

// allow applies the per-connection inbound rate limit.
func (c *Conn) allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

// close stops delivery. The write pump then sends a close frame and tears
// down the socket, which unblocks the read pump.
func (c *Conn) close() {
	c.closing.Do(func() { close(c.done) })
}

// readPump reads frames and hands each to handle, one at a time, so a
// connection's events are processed in arrival order.
func (c *Conn) readPump(maxBytes int64, pongWait time.Duration, handle func([]byte)) {
	c.ws.SetReadLimit(maxBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Msg("websocket closed unexpectedly")
			}
			return
		}
		handle(raw)
	}
}

// writePump drains send to the socket and keeps the peer alive with pings.
// It is the only writer on the socket.
func (c *Conn) writePump(writeWait, pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
		_ = c.ws.Close()
	}()
	for {
		select {
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug().Err(err).Msg("write failed")
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
