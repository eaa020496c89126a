package realtime

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/vroymv/AfroLingo-sub000/internal/domain"
	"github.com/vroymv/AfroLingo-sub000/internal/fabric"
	"github.com/vroymv/AfroLingo-sub000/internal/presence"
)

// Emitter encodes server events and hands them to the broadcast fabric. It
// satisfies the delivery interfaces the services layer depends on.
type Emitter struct {
	fabric *fabric.Fabric
}

// NewEmitter returns an Emitter over f.
func NewEmitter(f *fabric.Fabric) *Emitter {
	return &Emitter{fabric: f}
}

// Emit encodes one event and emits it to room on every process.
func (e *Emitter) Emit(ctx context.Context, room, event string, data any) {
	frame, err := Encode(event, data)
	if err != nil {
		log.Error().Err(err).Str("event", event).Str("room", room).Msg("encode frame")
		return
	}
	e.fabric.Emit(ctx, room, frame)
}

// BroadcastMessage sends message:new to the message's group room.
func (e *Emitter) BroadcastMessage(ctx context.Context, m *domain.Message) {
	e.Emit(ctx, fabric.GroupRoom(m.GroupID), EventMessageNew, MessageNewPayload{
		GroupID:   m.GroupID,
		ChannelID: m.ChannelID,
		Message:   NewMessageView(m),
	})
}

// PushNotification sends notification:new to the recipient's personal room.
func (e *Emitter) PushNotification(ctx context.Context, n *domain.Notification) {
	e.Emit(ctx, fabric.UserRoom(n.UserID), EventNotificationNew, NotificationNewPayload{
		Notification: NewNotificationView(n),
	})
}

// BroadcastRoster sends a full presence snapshot to the group room.
func (e *Emitter) BroadcastRoster(ctx context.Context, r presence.Roster) {
	if r.UserIDs == nil {
		r.UserIDs = []string{}
	}
	e.Emit(ctx, fabric.GroupRoom(r.GroupID), EventPresenceUpdate, r)
}

// BroadcastTyping relays a typing indicator to the group room.
func (e *Emitter) BroadcastTyping(ctx context.Context, u TypingUpdatePayload) {
	e.Emit(ctx, fabric.GroupRoom(u.GroupID), EventTypingUpdate, u)
}
