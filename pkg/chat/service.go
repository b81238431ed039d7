package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"livechat/pkg/events"
	"livechat/pkg/metrics"
)

const MaxBodyLength = 10000

var (
	ErrEmptyBody     = errors.New("message body cannot be empty")
	ErrBodyTooLong   = fmt.Errorf("message body too long (max %d characters)", MaxBodyLength)
	ErrInvalidCount  = errors.New("unread count must be zero or greater")
	ErrInvalidSender = errors.New("sender must be customer or agent")
)

// ValidateBody trims body and checks it is non-empty and within MaxBodyLength.
func ValidateBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", ErrEmptyBody
	}
	if utf8.RuneCountInString(body) > MaxBodyLength {
		return "", ErrBodyTooLong
	}
	return body, nil
}

type ConversationService interface {
	Append(ctx context.Context, conversationID string, sender Sender, body string) (Message, error)
	List(ctx context.Context, conversationID string, since int64) ([]Message, error)
	MarkRead(ctx context.Context, conversationID string, reader Sender) (int, error)
	MarkUnread(ctx context.Context, conversationID string, count int) (int, error)
	UnreadCount(ctx context.Context, conversationID string, reader Sender) (int, error)
}

type conversationService struct {
	store     Store
	publisher events.Publisher
	log       *zap.Logger
}

func NewConversationService(store Store, publisher events.Publisher, log *zap.Logger) ConversationService {
	if publisher == nil {
		publisher = events.Noop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &conversationService{store: store, publisher: publisher, log: log}
}

// Append stores a message. Customers open their conversation implicitly with
// the first message; agents can only reply to an existing one.
func (s *conversationService) Append(ctx context.Context, conversationID string, sender Sender, body string) (Message, error) {
	if !sender.Valid() {
		return Message{}, ErrInvalidSender
	}
	body, err := ValidateBody(body)
	if err != nil {
		return Message{}, err
	}

	if sender == SenderAgent {
		exists, err := s.store.ConversationExists(ctx, conversationID)
		if err != nil {
			return Message{}, err
		}
		if !exists {
			return Message{}, ErrConversationNotFound
		}
	}

	msg, err := s.store.AppendMessage(ctx, conversationID, sender, body)
	if err != nil {
		return Message{}, err
	}

	metrics.MessagesAppended.WithLabelValues(string(sender)).Inc()
	s.log.Info("message_appended",
		zap.String("conversation_id", conversationID),
		zap.Int64("message_id", msg.ID),
		zap.String("sender", string(sender)))
	s.publish(ctx, events.Event{
		Type:           events.MessageAppended,
		ConversationID: conversationID,
		MessageID:      msg.ID,
		Sender:         string(sender),
		OccurredAt:     msg.CreatedAt,
	})
	return msg, nil
}

func (s *conversationService) List(ctx context.Context, conversationID string, since int64) ([]Message, error) {
	if since < 0 {
		since = 0
	}
	return s.store.ListMessages(ctx, conversationID, since)
}

// MarkRead is idempotent and returns the reader's unread count afterwards.
func (s *conversationService) MarkRead(ctx context.Context, conversationID string, reader Sender) (int, error) {
	if !reader.Valid() {
		return 0, ErrInvalidSender
	}
	changed, err := s.store.MarkRead(ctx, conversationID, reader)
	if err != nil {
		return 0, err
	}
	metrics.MarkReadCalls.WithLabelValues(string(reader)).Inc()

	unread, err := s.store.UnreadCount(ctx, conversationID, reader)
	if err != nil {
		return 0, err
	}

	if changed > 0 {
		s.log.Debug("conversation_read",
			zap.String("conversation_id", conversationID),
			zap.String("reader", string(reader)),
			zap.Int("changed", changed))
		s.publish(ctx, events.Event{
			Type:           events.ConversationRead,
			ConversationID: conversationID,
			Reader:         string(reader),
			UnreadCount:    &unread,
		})
	}
	return unread, nil
}

// MarkUnread sets the agent-side unread count to count. Per-message read
// flags are left as they are; the override wins until the agent next marks
// the conversation read.
func (s *conversationService) MarkUnread(ctx context.Context, conversationID string, count int) (int, error) {
	if count < 0 {
		return 0, ErrInvalidCount
	}
	if err := s.store.SetUnreadOverride(ctx, conversationID, count); err != nil {
		return 0, err
	}
	metrics.MarkUnreadCalls.Inc()
	s.log.Info("conversation_marked_unread", zap.String("conversation_id", conversationID), zap.Int("count", count))
	s.publish(ctx, events.Event{
		Type:           events.ConversationMarkedUnread,
		ConversationID: conversationID,
		Reader:         string(SenderAgent),
		UnreadCount:    &count,
	})
	return count, nil
}

func (s *conversationService) UnreadCount(ctx context.Context, conversationID string, reader Sender) (int, error) {
	if !reader.Valid() {
		return 0, ErrInvalidSender
	}
	return s.store.UnreadCount(ctx, conversationID, reader)
}

// publish never fails the caller; the message is already stored.
func (s *conversationService) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.log.Warn("event_publish_failed", zap.String("type", string(e.Type)), zap.Error(err))
	}
}
