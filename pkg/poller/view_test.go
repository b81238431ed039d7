package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"livechat/pkg/auth"
	"livechat/pkg/chat"
	"livechat/pkg/client"
	"livechat/pkg/roster"
	"livechat/pkg/viewport"
)

// fakeServer is an in-memory conversation as seen from one surface.
type fakeServer struct {
	mu        sync.Mutex
	msgs      []chat.Message
	nextID    int64
	unread    int
	markReads int
	sendErr   error
	listErr   error
	onSend    func()
}

func (f *fakeServer) ListMessages(_ context.Context, _ client.Session, _ string, since int64) (chat.MessageList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return chat.MessageList{}, f.listErr
	}
	var out []chat.Message
	for _, m := range f.msgs {
		if m.ID > since {
			out = append(out, m)
		}
	}
	return chat.MessageList{Messages: out, UnreadCount: f.unread}, nil
}

func (f *fakeServer) SendMessage(_ context.Context, _ client.Session, _ string, body string) (chat.Message, error) {
	if f.onSend != nil {
		f.onSend()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return chat.Message{}, f.sendErr
	}
	return f.appendLocked(chat.SenderCustomer, body), nil
}

func (f *fakeServer) MarkRead(context.Context, client.Session, string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReads++
	f.unread = 0
	return 0, nil
}

func (f *fakeServer) appendLocked(sender chat.Sender, body string) chat.Message {
	f.nextID++
	m := chat.Message{ID: f.nextID, ConversationID: "c1", Sender: sender, Body: body, CreatedAt: t0.Add(time.Duration(f.nextID) * time.Second)}
	f.msgs = append(f.msgs, m)
	return m
}

// reply simulates the other side writing.
func (f *fakeServer) reply(body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appendLocked(chat.SenderAgent, body)
	f.unread++
}

func (f *fakeServer) markReadCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.markReads
}

type snapshots struct {
	mu   sync.Mutex
	list []Snapshot
}

func (s *snapshots) record(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = append(s.list, snap)
}

func (s *snapshots) all() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Snapshot(nil), s.list...)
}

var customer = client.Session{Token: "t", Role: auth.RoleCustomer}

func newView(api ConversationAPI, clock Clock, rec *snapshots) *ConversationView {
	return NewConversationView(api, customer, "", ViewOptions{Clock: clock, OnChange: rec.record})
}

func TestConversationView_OpenMarksReadOnce(t *testing.T) {
	srv := &fakeServer{}
	srv.reply("Welcome")
	rec := &snapshots{}
	clock := newManualClock()
	v := newView(srv, clock, rec)

	require.NoError(t, v.Open(context.Background()))
	defer v.Close()

	snap := v.Snapshot()
	require.Equal(t, []string{"Welcome"}, bodies(snap.Items))
	require.Zero(t, snap.UnreadCount)
	require.Equal(t, 1, srv.markReadCalls())

	srv.reply("Are you there?")
	require.Eventually(t, func() bool {
		clock.Tick()
		return len(v.Snapshot().Items) == 2
	}, eventually, 5*time.Millisecond)

	// background ticks show the count but never mark read
	require.Equal(t, 1, v.Snapshot().UnreadCount)
	require.Equal(t, 1, srv.markReadCalls())

	require.NoError(t, v.Refresh(context.Background()))
	require.Zero(t, v.Snapshot().UnreadCount)
	require.Equal(t, 2, srv.markReadCalls())
}

func TestConversationView_SendIsOptimistic(t *testing.T) {
	srv := &fakeServer{}
	rec := &snapshots{}
	v := newView(srv, newManualClock(), rec)

	msg, err := v.Send(context.Background(), "  Hello  ")
	require.NoError(t, err)
	require.Equal(t, "Hello", msg.Body)

	snaps := rec.all()
	require.Len(t, snaps, 2)
	require.Len(t, snaps[0].Items, 1)
	require.True(t, snaps[0].Items[0].Pending())
	require.Contains(t, snaps[0].Items[0].TempID, "tmp-")
	require.Equal(t, viewport.ActionScrollToNewest, snaps[0].Scroll.Action)

	final := v.Snapshot()
	require.Len(t, final.Items, 1)
	require.False(t, final.Items[0].Pending())
	require.Equal(t, msg.ID, final.Items[0].ID)

	// the next fetch returns the same message and must not duplicate it
	require.NoError(t, v.Refresh(context.Background()))
	require.Equal(t, []string{"Hello"}, bodies(v.Snapshot().Items))
}

func TestConversationView_TickConfirmsBeforeSendReturns(t *testing.T) {
	srv := &fakeServer{}
	rec := &snapshots{}
	clock := newManualClock()
	v := newView(srv, clock, rec)

	// the poll lands while the send request is still in flight
	srv.onSend = func() {
		srv.onSend = nil
		srv.mu.Lock()
		m := srv.appendLocked(chat.SenderCustomer, "hi")
		srv.mu.Unlock()
		apply, err := v.fetchTick(context.Background())
		require.NoError(t, err)
		apply()
		srv.mu.Lock()
		srv.msgs = srv.msgs[:len(srv.msgs)-1]
		srv.nextID--
		srv.mu.Unlock()
		require.Equal(t, int64(1), m.ID)
	}

	_, err := v.Send(context.Background(), "hi")
	require.NoError(t, err)
	require.Equal(t, []string{"hi"}, bodies(v.Snapshot().Items))
}

func TestConversationView_SendFailureRollsBack(t *testing.T) {
	srv := &fakeServer{sendErr: client.ErrRateLimited}
	rec := &snapshots{}
	v := newView(srv, newManualClock(), rec)

	_, err := v.Send(context.Background(), "typed text")

	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	require.Equal(t, "typed text", sendErr.Body)
	require.ErrorIs(t, err, client.ErrRateLimited)
	require.Empty(t, v.Snapshot().Items)

	snaps := rec.all()
	require.Len(t, snaps, 2)
	require.Len(t, snaps[0].Items, 1)
	require.Empty(t, snaps[1].Items)
}

func TestConversationView_EmptyBodyNeverLeavesTheClient(t *testing.T) {
	srv := &fakeServer{sendErr: errors.New("must not be called")}
	rec := &snapshots{}
	v := newView(srv, newManualClock(), rec)

	_, err := v.Send(context.Background(), " \n ")

	require.ErrorIs(t, err, chat.ErrEmptyBody)
	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	require.Empty(t, rec.all())
}

func TestConversationView_ScrolledUpGetsAffordance(t *testing.T) {
	srv := &fakeServer{}
	srv.reply("one")
	rec := &snapshots{}
	clock := newManualClock()
	v := newView(srv, clock, rec)

	require.NoError(t, v.Open(context.Background()))
	defer v.Close()
	v.Viewport().OnScroll(0, 400, 2000)

	srv.reply("two")
	srv.reply("three")
	require.Eventually(t, func() bool {
		clock.Tick()
		return len(v.Snapshot().Items) == 3
	}, eventually, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		snaps := rec.all()
		last := snaps[len(snaps)-1]
		return last.Scroll == viewport.Decision{Action: viewport.ActionShowAffordance, NewMessages: 2}
	}, eventually, time.Millisecond)
	require.False(t, v.Viewport().IsAtBottom())
}

func TestConversationView_FailedTickKeepsState(t *testing.T) {
	srv := &fakeServer{}
	srv.reply("hello")
	rec := &snapshots{}
	clock := newManualClock()
	v := newView(srv, clock, rec)
	require.NoError(t, v.Open(context.Background()))
	defer v.Close()
	before := len(rec.all())

	srv.mu.Lock()
	srv.listErr = client.ErrNetwork
	srv.mu.Unlock()
	for i := 0; i < 3; i++ {
		clock.Tick()
		time.Sleep(2 * time.Millisecond)
	}

	require.Equal(t, []string{"hello"}, bodies(v.Snapshot().Items))
	require.Len(t, rec.all(), before)
	require.Equal(t, StatePolling, v.State())
	require.ErrorIs(t, v.Refresh(context.Background()), client.ErrNetwork)
}

func TestIsSessionLost(t *testing.T) {
	require.False(t, IsSessionLost(&client.APIError{StatusCode: 401}))
	require.True(t, IsSessionLost(client.ErrInvalidToken))
	require.False(t, IsSessionLost(client.ErrNetwork))
}

type fakeRoster struct {
	mu      sync.Mutex
	queries []roster.Query
}

func (f *fakeRoster) Roster(_ context.Context, _ client.Session, q roster.Query) ([]roster.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	entries := []roster.Entry{{IdentityID: "1", DisplayName: "Ann", UnreadCount: 2}, {IdentityID: "2", DisplayName: "Bob"}}
	if q.Filter == roster.FilterUnread {
		entries = entries[:1]
	}
	return entries, nil
}

func TestRosterView_PollsAndFollowsQuery(t *testing.T) {
	api := &fakeRoster{}
	var mu sync.Mutex
	var seen [][]roster.Entry
	v := NewRosterView(api, client.Session{Token: "a", Role: auth.RoleAgent}, roster.Query{Filter: roster.FilterAll},
		ViewOptions{Clock: newManualClock()}, func(e []roster.Entry) {
			mu.Lock()
			seen = append(seen, e)
			mu.Unlock()
		})

	v.Open()
	defer v.Close()
	require.Eventually(t, func() bool { return len(v.Entries()) == 2 }, eventually, time.Millisecond)

	v.SetQuery(roster.Query{Filter: roster.FilterUnread})
	require.Eventually(t, func() bool { return len(v.Entries()) == 1 }, eventually, time.Millisecond)
	require.Equal(t, "Ann", v.Entries()[0].DisplayName)

	mu.Lock()
	require.GreaterOrEqual(t, len(seen), 2)
	mu.Unlock()
}
