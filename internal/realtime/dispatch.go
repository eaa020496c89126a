package realtime

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/vroymv/AfroLingo-sub000/internal/services"
)

// MessageSubmitter runs the message pipeline.
type MessageSubmitter interface {
	Submit(ctx context.Context, senderID string, in services.SendInput, ack func(*services.SendResult)) (*services.SendResult, error)
}

// handlerFunc handles one client event type.
type handlerFunc func(ctx context.Context, c *Conn, data json.RawMessage)

// handlers is the closed set of client events. Anything else is rejected.
func (s *Server) handlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		EventMessageSend:       s.handleSend,
		EventPresenceHeartbeat: s.handleHeartbeat,
		EventTypingStart:       s.handleTyping(true),
		EventTypingStop:        s.handleTyping(false),
		EventGroupsSync:        s.handleSync,
	}
}

// dispatch decodes one inbound frame and runs its handler on the caller's
// goroutine.
func (s *Server) dispatch(ctx context.Context, c *Conn, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		framesIn.WithLabelValues("malformed").Inc()
		c.sendError(CodeValidation, "malformed frame", false, nil)
		return
	}
	framesIn.WithLabelValues(eventLabel(env.Event)).Inc()

	if !c.allow() {
		c.sendError(CodeValidation, "rate limited", true, map[string]any{"event": env.Event})
		return
	}

	h, ok := s.routes[env.Event]
	if !ok {
		c.sendError(CodeValidation, "unknown event", false, map[string]any{"event": env.Event})
		return
	}
	h(ctx, c, env.Data)
}

func (s *Server) handleSend(ctx context.Context, c *Conn, data json.RawMessage) {
	var p SendPayload
	if err := decodePayload(data, &p); err != nil {
		c.sendError(CodeValidation, "invalid message:send payload", false, nil)
		return
	}
	errCtx := map[string]any{"groupId": p.GroupID, "clientMessageId": p.ClientMessageID}

	_, err := s.Messages.Submit(ctx, c.userID, services.SendInput{
		GroupID:         p.GroupID,
		ChannelID:       p.ChannelID,
		Body:            p.Body,
		ClientMessageID: p.ClientMessageID,
		Metadata:        p.Metadata,
	}, func(res *services.SendResult) {
		c.sendEvent(EventMessageAck, AckPayload{
			ClientMessageID: res.Message.ClientMessageID,
			ServerMessageID: res.Message.ID,
			CreatedAt:       res.Message.CreatedAt,
		})
	})
	if err != nil {
		code, retryable := ErrorFor(err)
		if code == CodePersistFailed {
			c.logger.Error().Err(err).Str("group_id", p.GroupID).Msg("message persist failed")
		}
		c.sendError(code, clientMessage(err), retryable, errCtx)
	}
}

func (s *Server) handleHeartbeat(ctx context.Context, c *Conn, _ json.RawMessage) {
	s.Sessions.Heartbeat(ctx, c)
}

func (s *Server) handleSync(ctx context.Context, c *Conn, _ json.RawMessage) {
	s.Sessions.Resync(ctx, c)
}

// handleTyping relays typing state to a group the connection is in. Typing
// for any other group is ignored.
func (s *Server) handleTyping(isTyping bool) handlerFunc {
	return func(ctx context.Context, c *Conn, data json.RawMessage) {
		var p TypingPayload
		if err := decodePayload(data, &p); err != nil || strings.TrimSpace(p.GroupID) == "" {
			c.sendError(CodeValidation, "groupId is required", false, nil)
			return
		}
		if !c.inGroup(p.GroupID) {
			c.logger.Debug().Str("group_id", p.GroupID).Msg("typing for a group outside the room set, ignored")
			return
		}
		s.Emitter.BroadcastTyping(ctx, TypingUpdatePayload{
			GroupID:   p.GroupID,
			ChannelID: p.ChannelID,
			UserID:    c.userID,
			IsTyping:  isTyping,
		})
	}
}

// clientMessage strips internal detail from persistence failures.
func clientMessage(err error) string {
	code, _ := ErrorFor(err)
	if code == CodePersistFailed {
		return services.ErrPersistFailed.Error()
	}
	return err.Error()
}
