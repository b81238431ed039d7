package roster

import (
	"errors"
	"strings"
	"time"

	"livechat/pkg/chat"
)

// Entry is the agent-facing summary of one conversation. It is recomputed on
// every fetch and never stored.
type Entry struct {
	IdentityID         string      `json:"identity_id"`
	DisplayName        string      `json:"display_name"`
	ContactAddress     string      `json:"contact_address"`
	LastMessagePreview string      `json:"last_message_preview"`
	LastMessageAt      time.Time   `json:"last_message_at"`
	LastSender         chat.Sender `json:"last_sender"`
	UnreadCount        int         `json:"unread_count"`
	TotalCount         int         `json:"total_count"`

	lastMessageID int64
}

type Filter string

const (
	FilterAll    Filter = "all"
	FilterUnread Filter = "unread"
)

var ErrInvalidFilter = errors.New("filter must be all or unread")

// ParseFilter accepts "", "all" and "unread".
func ParseFilter(s string) (Filter, error) {
	switch Filter(strings.ToLower(strings.TrimSpace(s))) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterUnread:
		return FilterUnread, nil
	}
	return "", ErrInvalidFilter
}

// Query selects roster entries. Search is a case-insensitive substring of the
// display name or contact address; empty matches everything.
type Query struct {
	Filter Filter
	Search string
}

// Data is what the roster endpoint returns.
type Data struct {
	Entries []Entry `json:"entries"`
}
