package chat

import (
	"time"
)

// Sender is the role that authored a message.
type Sender string

const (
	SenderCustomer Sender = "customer"
	SenderAgent    Sender = "agent"
)

func (s Sender) Valid() bool {
	return s == SenderCustomer || s == SenderAgent
}

// Counterpart is the role whose messages s reads.
func (s Sender) Counterpart() Sender {
	if s == SenderAgent {
		return SenderCustomer
	}
	return SenderAgent
}

// Message is the single canonical shape a stored chat message takes.
// ConversationID is the owning identity's id.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         Sender    `json:"sender"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
	Read           bool      `json:"read"`
}

// Summary is the per-conversation aggregate the roster is built from.
// UnreadCount is the agent-side count with any override applied.
type Summary struct {
	ConversationID string
	LastMessage    Message
	UnreadCount    int
	TotalCount     int
	Overridden     bool
}

// MessageList is the data returned by the conversation GET endpoints.
type MessageList struct {
	Messages    []Message `json:"messages"`
	UnreadCount int       `json:"unread_count"`
}

// UnreadState is the data returned by the conversation PATCH endpoints.
type UnreadState struct {
	UnreadCount int `json:"unread_count"`
}
