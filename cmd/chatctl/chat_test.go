package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"livechat/pkg/auth"
	"livechat/pkg/chat"
	"livechat/pkg/poller"
	"livechat/pkg/roster"
	"livechat/pkg/viewport"
)

func TestTranscript_PrintsEachMessageOnce(t *testing.T) {
	var buf bytes.Buffer
	tr := newTranscript(&buf)
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	first := poller.Item{Message: chat.Message{ID: 1, Sender: chat.SenderCustomer, Body: "hello", CreatedAt: at}}
	tr.render(poller.Snapshot{Items: []poller.Item{first}})
	tr.render(poller.Snapshot{
		Items:       []poller.Item{first, {Message: chat.Message{ID: 2, Sender: chat.SenderAgent, Body: "hi there", CreatedAt: at}}},
		UnreadCount: 1,
		Scroll:      viewport.Decision{Action: viewport.ActionShowAffordance, NewMessages: 1},
	})

	out := buf.String()
	require.Equal(t, 1, strings.Count(out, "hello"))
	require.Contains(t, out, "hi there")
	require.Contains(t, out, "-- 1 new message(s) --")
	require.Contains(t, out, "(1 unread)")
}

func TestConversationFor(t *testing.T) {
	conversationFlag = ""
	id, err := conversationFor(auth.RoleCustomer)
	require.NoError(t, err)
	require.Empty(t, id)

	_, err = conversationFor(auth.RoleAgent)
	require.Error(t, err)

	conversationFlag = "id-ann"
	defer func() { conversationFlag = "" }()
	id, err = conversationFor(auth.RoleAgent)
	require.NoError(t, err)
	require.Equal(t, "id-ann", id)
}

func TestPrintRoster(t *testing.T) {
	var buf bytes.Buffer
	printRoster(&buf, []roster.Entry{{IdentityID: "id-1", DisplayName: "Ann", ContactAddress: "a@x.com", UnreadCount: 2, LastMessagePreview: "Hi"}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], "UNREAD"))
	require.Contains(t, lines[1], "Ann")
	require.Contains(t, lines[1], "id-1")
}
