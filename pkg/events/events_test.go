package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEvent_JSONShape(t *testing.T) {
	unread := 0
	e := Event{
		Type:           ConversationRead,
		ConversationID: "id-1",
		Reader:         "agent",
		UnreadCount:    &unread,
		OccurredAt:     time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	raw, err := json.Marshal(e)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Equal(t, "conversation_read", got["type"])
	require.Equal(t, float64(0), got["unread_count"])
	require.NotContains(t, got, "message_id")
	require.NotContains(t, got, "sender")
}

func TestRecorderAndNoop(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, Noop{}.Publish(ctx, Event{Type: MessageAppended}))

	var r Recorder
	require.NoError(t, r.Publish(ctx, Event{Type: MessageAppended, MessageID: 1}))
	require.NoError(t, r.Publish(ctx, Event{Type: ConversationMarkedUnread}))

	got := r.Events()
	require.Len(t, got, 2)
	require.Equal(t, int64(1), got[0].MessageID)
	require.Equal(t, ConversationMarkedUnread, got[1].Type)
}
