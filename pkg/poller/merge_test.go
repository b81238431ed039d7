package poller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"livechat/pkg/chat"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func confirmed(id int64, sender chat.Sender, body string, at time.Time) chat.Message {
	return chat.Message{ID: id, ConversationID: "c1", Sender: sender, Body: body, CreatedAt: at}
}

func pending(tempID string, sender chat.Sender, body string, at time.Time) Item {
	return Item{Message: chat.Message{Sender: sender, Body: body, CreatedAt: at}, TempID: tempID}
}

func bodies(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it.Pending() {
			out = append(out, "~"+it.Body)
			continue
		}
		out = append(out, it.Body)
	}
	return out
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name   string
		local  []Item
		server []chat.Message
		want   []string
	}{
		{
			name:   "empty local takes the server page in id order",
			server: []chat.Message{confirmed(2, chat.SenderAgent, "b", t0), confirmed(1, chat.SenderCustomer, "a", t0)},
			want:   []string{"a", "b"},
		},
		{
			name:   "server copy wins for a held id",
			local:  []Item{{Message: confirmed(1, chat.SenderCustomer, "stale", t0)}},
			server: []chat.Message{confirmed(1, chat.SenderCustomer, "fresh", t0)},
			want:   []string{"fresh"},
		},
		{
			name:   "a since page keeps earlier history",
			local:  []Item{{Message: confirmed(1, chat.SenderCustomer, "a", t0)}},
			server: []chat.Message{confirmed(2, chat.SenderAgent, "b", t0)},
			want:   []string{"a", "b"},
		},
		{
			name:   "matching server message replaces the optimistic one",
			local:  []Item{pending("tmp-1", chat.SenderCustomer, "hi", t0)},
			server: []chat.Message{confirmed(1, chat.SenderCustomer, "hi", t0.Add(2*time.Second))},
			want:   []string{"hi"},
		},
		{
			name:   "different sender does not match",
			local:  []Item{pending("tmp-1", chat.SenderCustomer, "hi", t0)},
			server: []chat.Message{confirmed(1, chat.SenderAgent, "hi", t0)},
			want:   []string{"hi", "~hi"},
		},
		{
			name:   "outside the window does not match",
			local:  []Item{pending("tmp-1", chat.SenderCustomer, "hi", t0)},
			server: []chat.Message{confirmed(1, chat.SenderCustomer, "hi", t0.Add(-5*time.Minute))},
			want:   []string{"hi", "~hi"},
		},
		{
			name: "one server message consumes one of two identical sends",
			local: []Item{
				pending("tmp-1", chat.SenderCustomer, "ok", t0),
				pending("tmp-2", chat.SenderCustomer, "ok", t0.Add(time.Second)),
			},
			server: []chat.Message{confirmed(7, chat.SenderCustomer, "ok", t0)},
			want:   []string{"ok", "~ok"},
		},
		{
			name: "a message already held never consumes a pending twin",
			local: []Item{
				{Message: confirmed(1, chat.SenderCustomer, "ok", t0)},
				pending("tmp-2", chat.SenderCustomer, "ok", t0),
			},
			server: []chat.Message{confirmed(1, chat.SenderCustomer, "ok", t0)},
			want:   []string{"ok", "~ok"},
		},
		{
			name: "pending items stay after confirmed ones in send order",
			local: []Item{
				pending("tmp-1", chat.SenderCustomer, "first", t0),
				pending("tmp-2", chat.SenderCustomer, "second", t0),
			},
			server: []chat.Message{confirmed(3, chat.SenderAgent, "reply", t0)},
			want:   []string{"reply", "~first", "~second"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			once := Merge(tt.local, tt.server, DefaultMatchWindow)
			require.Equal(t, tt.want, bodies(once))

			twice := Merge(once, tt.server, DefaultMatchWindow)
			require.Equal(t, once, twice)
		})
	}
}

func TestMerge_DoesNotMutateInput(t *testing.T) {
	local := []Item{pending("tmp-1", chat.SenderCustomer, "hi", t0)}
	Merge(local, []chat.Message{confirmed(1, chat.SenderCustomer, "hi", t0)}, DefaultMatchWindow)
	require.Equal(t, "tmp-1", local[0].TempID)
}

func TestLastConfirmedID(t *testing.T) {
	require.Zero(t, LastConfirmedID(nil))
	require.Equal(t, int64(4), LastConfirmedID([]Item{
		{Message: confirmed(2, chat.SenderCustomer, "a", t0)},
		{Message: confirmed(4, chat.SenderAgent, "b", t0)},
		pending("tmp-1", chat.SenderCustomer, "c", t0),
	}))
}
