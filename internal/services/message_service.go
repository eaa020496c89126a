// Package services – MessageService
//
// This file implements MessageService, the application-level component that
// owns the lifecycle of group messages. Send validates input, re-reads the
// sender's membership, resolves the target channel, and persists the message
// idempotently on (sender, client message id). Submit wraps Send with the
// post-persist steps (ack, broadcast, fan-out) so every entry point runs the
// same pipeline in the same order.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include group/user identifiers and pagination parameters where applicable.

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/vroymv/AfroLingo-sub000/internal/domain"
	"github.com/vroymv/AfroLingo-sub000/internal/repo"
	"github.com/vroymv/AfroLingo-sub000/internal/utils"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/unicode/norm"
)

const (
	// MaxBodyRunes bounds a message body after trimming.
	MaxBodyRunes = 4000

	// MaxClientMessageIDLen matches the column width of client_message_id.
	MaxClientMessageIDLen = 128

	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// SendInput is one message submission.
type SendInput struct {
	GroupID         string
	ChannelID       string
	Body            string
	ClientMessageID string
	Metadata        map[string]any
}

// SendResult carries the persisted message and whether this call created it.
// Created is false when the submission was a retry of an earlier send.
type SendResult struct {
	Message *domain.Message
	Created bool
}

// MessageBroadcaster delivers a newly created message to its group's room.
type MessageBroadcaster interface {
	BroadcastMessage(ctx context.Context, m *domain.Message)
}

// FanOuter notifies members who missed a message live.
type FanOuter interface {
	FanOut(ctx context.Context, m *domain.Message) int
}

// MessageService coordinates message persistence, history, and delivery.
type MessageService struct {
	DB          *gorm.DB
	Broadcaster MessageBroadcaster
	Notifier    FanOuter

	// MaxBodyRunes overrides the package default when positive.
	MaxBodyRunes int
}

// NewMessageService wires a MessageService. Broadcaster and notifier may be
// nil; the matching step is then skipped.
func NewMessageService(db *gorm.DB, b MessageBroadcaster, n FanOuter) *MessageService {
	return &MessageService{DB: db, Broadcaster: b, Notifier: n, MaxBodyRunes: MaxBodyRunes}
}

// Send validates, authorizes, resolves the channel and persists in that
// order. The first failing step decides the returned error:
// ErrValidation, ErrNotAMember, ErrChannelNotFound or ErrPersistFailed.
func (s *MessageService) Send(ctx context.Context, senderID string, in SendInput) (*SendResult, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("group.id", in.GroupID),
			attribute.String("user.id", senderID),
			attribute.String("client_message.id", in.ClientMessageID),
		),
	)
	defer span.End()

	res, outcome, err := s.send(ctx, senderID, in)
	messagesTotal.WithLabelValues(outcome).Inc()
	if err != nil {
		span.SetStatus(codes.Error, outcome)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("message.id", res.Message.ID),
		attribute.Bool("message.created", res.Created),
	)
	return res, nil
}

func (s *MessageService) send(ctx context.Context, senderID string, in SendInput) (*SendResult, string, error) {
	// received -> validated
	groupID := strings.TrimSpace(in.GroupID)
	clientID := strings.TrimSpace(in.ClientMessageID)
	if groupID == "" {
		return nil, "invalid", fmt.Errorf("%w: groupId is required", ErrValidation)
	}
	if clientID == "" {
		return nil, "invalid", fmt.Errorf("%w: clientMessageId is required", ErrValidation)
	}
	if len(clientID) > MaxClientMessageIDLen {
		return nil, "invalid", fmt.Errorf("%w: clientMessageId exceeds %d bytes", ErrValidation, MaxClientMessageIDLen)
	}
	body, err := NormalizeBody(in.Body, s.maxBody())
	if err != nil {
		return nil, "invalid", err
	}

	// validated -> authorized; never cached, membership may change mid-session.
	if err := s.requireMember(ctx, groupID, senderID); err != nil {
		if errors.Is(err, ErrNotAMember) {
			return nil, "forbidden", err
		}
		return nil, "failed", err
	}

	ch, err := repo.ResolveChannel(ctx, s.DB, groupID, strings.TrimSpace(in.ChannelID))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, "no_channel", ErrChannelNotFound
		}
		return nil, "failed", fmt.Errorf("%w: resolve channel: %v", ErrPersistFailed, err)
	}

	// authorized -> persisted
	m := &domain.Message{
		GroupID:         groupID,
		ChannelID:       ch.ID,
		SenderID:        senderID,
		Body:            body,
		ClientMessageID: clientID,
	}
	if in.Metadata != nil {
		m.Metadata = datatypes.JSONMap(in.Metadata)
	}
	err = repo.CreateMessage(ctx, s.DB, m)
	switch {
	case err == nil:
		return &SendResult{Message: m, Created: true}, "created", nil
	case errors.Is(err, repo.ErrDuplicate):
		orig, gerr := repo.GetMessageBySenderClientID(ctx, s.DB, senderID, clientID)
		if gerr != nil {
			return nil, "failed", fmt.Errorf("%w: recover original: %v", ErrPersistFailed, gerr)
		}
		return &SendResult{Message: orig, Created: false}, "replayed", nil
	default:
		return nil, "failed", fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}
}

// Submit runs the whole pipeline for one submission: Send, then ack, then
// broadcast and fan-out for newly created messages only. A retried send is
// acknowledged again but never re-broadcast or re-notified.
func (s *MessageService) Submit(ctx context.Context, senderID string, in SendInput, ack func(*SendResult)) (*SendResult, error) {
	res, err := s.Send(ctx, senderID, in)
	if err != nil {
		return nil, err
	}
	if ack != nil {
		ack(res)
	}
	if res.Created {
		s.Deliver(ctx, res.Message)
	}
	return res, nil
}

// Deliver broadcasts m to its group and then fans out notifications. Neither
// step can fail the send: both are best-effort and log their own errors.
func (s *MessageService) Deliver(ctx context.Context, m *domain.Message) {
	if s.Broadcaster != nil {
		s.Broadcaster.BroadcastMessage(ctx, m)
	}
	if s.Notifier != nil {
		n := s.Notifier.FanOut(ctx, m)
		log.Debug().
			Str("message_id", m.ID).
			Str("group_id", m.GroupID).
			Int("notified", n).
			Msg("message delivered")
	}
}

// History returns up to limit messages of a group, newest first, and the
// cursor of the next page ("" on the last page). The caller must be an
// active member.
func (s *MessageService) History(ctx context.Context, userID, groupID, channelID, cursor string, limit int) ([]domain.Message, string, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "History",
		trace.WithAttributes(
			attribute.String("group.id", groupID),
			attribute.String("user.id", userID),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	before, err := utils.DecodeCursor(cursor)
	if err != nil {
		return nil, "", fmt.Errorf("%w: cursor", ErrValidation)
	}
	if err := s.requireMember(ctx, groupID, userID); err != nil {
		return nil, "", err
	}

	limit = utils.ClampLimit(limit, defaultHistoryLimit, maxHistoryLimit)
	items, err := repo.ListMessagesPage(ctx, s.DB, groupID, channelID, before, limit)
	if err != nil {
		return nil, "", err
	}
	next := ""
	if len(items) == limit {
		last := items[len(items)-1]
		next = utils.EncodeCursor(utils.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return items, next, nil
}

// Stats returns the message count and newest timestamp of a group; handlers
// derive a weak ETag from it. Like History it is member-only.
func (s *MessageService) Stats(ctx context.Context, userID, groupID string) (int64, *time.Time, error) {
	if err := s.requireMember(ctx, groupID, userID); err != nil {
		return 0, nil, err
	}
	return repo.MessagesStats(ctx, s.DB, groupID)
}

func (s *MessageService) requireMember(ctx context.Context, groupID, userID string) error {
	m, err := repo.FindMembership(ctx, s.DB, groupID, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotAMember
		}
		return fmt.Errorf("%w: membership lookup: %v", ErrPersistFailed, err)
	}
	if !m.Active() {
		return ErrNotAMember
	}
	return nil
}

func (s *MessageService) maxBody() int {
	if s.MaxBodyRunes > 0 {
		return s.MaxBodyRunes
	}
	return MaxBodyRunes
}

// NormalizeBody NFC-normalizes and trims body, then enforces 1..max runes.
func NormalizeBody(body string, max int) (string, error) {
	body = strings.TrimSpace(norm.NFC.String(body))
	n := utf8.RuneCountInString(body)
	if n == 0 {
		return "", fmt.Errorf("%w: body is empty", ErrValidation)
	}
	if n > max {
		return "", fmt.Errorf("%w: body exceeds %d characters", ErrValidation, max)
	}
	return body, nil
}
