// Package realtime implements the websocket surface of the messaging core:
// session establishment, the event protocol, per-connection pumps, and the
// dispatch of client events into the message pipeline and presence tracker.
package realtime

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/vroymv/AfroLingo-sub000/internal/domain"
	"github.com/vroymv/AfroLingo-sub000/internal/services"
)

// Events sent by the server.
const (
	EventHello           = "hello"
	EventMessageAck      = "message:ack"
	EventMessageNew      = "message:new"
	EventPresenceUpdate  = "presence:update"
	EventTypingUpdate    = "typing:update"
	EventGroupsSynced    = "groups:synced"
	EventNotificationNew = "notification:new"
	EventError           = "error"
)

// Events sent by clients.
const (
	EventMessageSend       = "message:send"
	EventPresenceHeartbeat = "presence:heartbeat"
	EventTypingStart       = "typing:start"
	EventTypingStop        = "typing:stop"
	EventGroupsSync        = "groups:sync"
)

// Error codes carried by the error event.
const (
	CodeValidation    = "VALIDATION_ERROR"
	CodeNotAMember    = "NOT_A_MEMBER"
	CodeChannelAbsent = "CHANNEL_NOT_FOUND"
	CodePersistFailed = "MESSAGE_PERSIST_FAILED"
)

// Envelope is the frame format in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode marshals one frame.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// HelloPayload acknowledges an established session.
type HelloPayload struct {
	ProtocolVersion int    `json:"protocolVersion"`
	UserID          string `json:"userId"`
}

// SendPayload is the body of message:send.
type SendPayload struct {
	GroupID         string         `json:"groupId"`
	ChannelID       string         `json:"channelId,omitempty"`
	Body            string         `json:"body"`
	ClientMessageID string         `json:"clientMessageId"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// AckPayload confirms a persisted message to its sender.
type AckPayload struct {
	ClientMessageID string    `json:"clientMessageId"`
	ServerMessageID string    `json:"serverMessageId"`
	CreatedAt       time.Time `json:"createdAt"`
}

// MessageView is the wire form of a message. Metadata is null when the
// sender supplied none and is otherwise passed through as stored, {} included.
type MessageView struct {
	ID              string         `json:"id"`
	GroupID         string         `json:"groupId"`
	ChannelID       string         `json:"channelId"`
	SenderID        string         `json:"senderId"`
	Body            string         `json:"body"`
	Metadata        map[string]any `json:"metadata"`
	ClientMessageID string         `json:"clientMessageId"`
	CreatedAt       time.Time      `json:"createdAt"`
}

// NewMessageView converts a stored message.
func NewMessageView(m *domain.Message) MessageView {
	return MessageView{
		ID:              m.ID,
		GroupID:         m.GroupID,
		ChannelID:       m.ChannelID,
		SenderID:        m.SenderID,
		Body:            m.Body,
		Metadata:        m.Metadata,
		ClientMessageID: m.ClientMessageID,
		CreatedAt:       m.CreatedAt,
	}
}

// MessageNewPayload is broadcast once per newly created message.
type MessageNewPayload struct {
	GroupID   string      `json:"groupId"`
	ChannelID string      `json:"channelId"`
	Message   MessageView `json:"message"`
}

// TypingPayload is the body of typing:start and typing:stop.
type TypingPayload struct {
	GroupID   string `json:"groupId"`
	ChannelID string `json:"channelId,omitempty"`
}

// TypingUpdatePayload is relayed to the group room.
type TypingUpdatePayload struct {
	GroupID   string `json:"groupId"`
	ChannelID string `json:"channelId,omitempty"`
	UserID    string `json:"userId"`
	IsTyping  bool   `json:"isTyping"`
}

// GroupsSyncedPayload confirms a room resync.
type GroupsSyncedPayload struct {
	GroupsCount int `json:"groupsCount"`
}

// NotificationView is the wire form of a notification.
type NotificationView struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	Type      string         `json:"type"`
	Body      string         `json:"body"`
	GroupID   string         `json:"groupId"`
	ChannelID string         `json:"channelId"`
	MessageID string         `json:"messageId"`
	SenderID  string         `json:"senderId"`
	Data      map[string]any `json:"data,omitempty"`
	ReadAt    *time.Time     `json:"readAt"`
	CreatedAt time.Time      `json:"createdAt"`
}

// NewNotificationView converts a stored notification.
func NewNotificationView(n *domain.Notification) NotificationView {
	return NotificationView{
		ID:        n.ID,
		UserID:    n.UserID,
		Type:      n.Type,
		Body:      n.Body,
		GroupID:   n.GroupID,
		ChannelID: n.ChannelID,
		MessageID: n.MessageID,
		SenderID:  n.SenderID,
		Data:      n.Data,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
}

// NotificationNewPayload is pushed to the recipient's personal room.
type NotificationNewPayload struct {
	Notification NotificationView `json:"notification"`
}

// ErrorPayload reports a client error to the offending connection only.
type ErrorPayload struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Context   map[string]any `json:"context,omitempty"`
}

// ErrorFor maps a pipeline error to its wire code. Only persistence failures
// are worth retrying; the client must reuse its clientMessageId.
func ErrorFor(err error) (code string, retryable bool) {
	switch {
	case errors.Is(err, services.ErrNotAMember):
		return CodeNotAMember, false
	case errors.Is(err, services.ErrChannelNotFound):
		return CodeChannelAbsent, false
	case errors.Is(err, services.ErrValidation):
		return CodeValidation, false
	default:
		return CodePersistFailed, true
	}
}

// decodePayload decodes an event body into out. Decoding is weakly typed so
// numeric ids sent by clients land in string fields.
func decodePayload(data json.RawMessage, out any) error {
	fields := map[string]any{}
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &fields); err != nil {
			return err
		}
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		TagName:          "json",
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(fields)
}
