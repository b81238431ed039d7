package chat

import (
	"context"
	"errors"
)

var ErrConversationNotFound = errors.New("conversation not found")

// Store is the append-only message log. AppendMessage is the only writer of
// a conversation's sequence; besides it only read flags and the unread
// override ever change.
type Store interface {
	// AppendMessage stores body as the next message of the conversation,
	// creating the conversation on its first message.
	AppendMessage(ctx context.Context, conversationID string, sender Sender, body string) (Message, error)
	// ListMessages returns messages with id > afterID in id order.
	ListMessages(ctx context.Context, conversationID string, afterID int64) ([]Message, error)
	// MarkRead flags every unread message authored by reader's counterpart and
	// returns how many changed. An agent reader also clears the override.
	MarkRead(ctx context.Context, conversationID string, reader Sender) (int, error)
	SetUnreadOverride(ctx context.Context, conversationID string, count int) error
	UnreadCount(ctx context.Context, conversationID string, reader Sender) (int, error)
	ConversationExists(ctx context.Context, conversationID string) (bool, error)
	Summaries(ctx context.Context) ([]Summary, error)
}
