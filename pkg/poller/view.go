package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"livechat/pkg/auth"
	"livechat/pkg/chat"
	"livechat/pkg/client"
	"livechat/pkg/roster"
	"livechat/pkg/viewport"
)

// ConversationAPI is the part of client.Client a conversation surface uses.
type ConversationAPI interface {
	ListMessages(ctx context.Context, s client.Session, conversationID string, since int64) (chat.MessageList, error)
	SendMessage(ctx context.Context, s client.Session, conversationID, body string) (chat.Message, error)
	MarkRead(ctx context.Context, s client.Session, conversationID string) (int, error)
}

// SendError is returned by a failed send. The optimistic message has already
// been removed; Body is what the user typed so the input can be refilled.
type SendError struct {
	Body string
	Err  error
}

func (e *SendError) Error() string { return fmt.Sprintf("send failed: %v", e.Err) }
func (e *SendError) Unwrap() error { return e.Err }

// Snapshot is what a conversation surface renders.
type Snapshot struct {
	Items       []Item
	UnreadCount int
	Scroll      viewport.Decision
}

// ConversationView is the local state of one open conversation: confirmed
// and optimistic messages, the unread count, and the viewport policy.
type ConversationView struct {
	api            ConversationAPI
	session        client.Session
	conversationID string
	own            chat.Sender
	clock          Clock
	window         time.Duration
	viewport       *viewport.Viewport
	log            *zap.Logger
	loop           *Loop

	mu       sync.Mutex
	items    []Item
	unread   int
	onChange func(Snapshot)
}

type ViewOptions struct {
	Interval    time.Duration
	Clock       Clock
	MatchWindow time.Duration
	Threshold   float64
	Logger      *zap.Logger
	// OnChange runs after every local mutation. It must not call back into the view.
	OnChange func(Snapshot)
}

func (o ViewOptions) withDefaults() ViewOptions {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Clock == nil {
		o.Clock = Real()
	}
	if o.MatchWindow <= 0 {
		o.MatchWindow = DefaultMatchWindow
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// NewConversationView builds the view for a customer's own conversation
// (conversationID empty) or, with an agent session, for that customer.
func NewConversationView(api ConversationAPI, s client.Session, conversationID string, opts ViewOptions) *ConversationView {
	opts = opts.withDefaults()
	v := &ConversationView{
		api:            api,
		session:        s,
		conversationID: conversationID,
		own:            senderFor(s.Role),
		clock:          opts.Clock,
		window:         opts.MatchWindow,
		viewport:       viewport.New(opts.Threshold),
		log:            opts.Logger,
		onChange:       opts.OnChange,
	}
	v.loop = NewLoop(v.fetchTick, WithInterval(opts.Interval), WithClock(opts.Clock), WithLogger(opts.Logger))
	return v
}

func senderFor(r auth.Role) chat.Sender {
	if r == auth.RoleAgent {
		return chat.SenderAgent
	}
	return chat.SenderCustomer
}

// Open loads the conversation as a foreground fetch and starts polling.
func (v *ConversationView) Open(ctx context.Context) error {
	err := v.Refresh(ctx)
	v.loop.Open()
	return err
}

func (v *ConversationView) Close()                 { v.loop.Close() }
func (v *ConversationView) SetVisible(visible bool) { v.loop.SetVisible(visible) }
func (v *ConversationView) State() State            { return v.loop.State() }
func (v *ConversationView) Viewport() *viewport.Viewport {
	return v.viewport
}

func (v *ConversationView) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked(viewport.Decision{})
}

func (v *ConversationView) snapshotLocked(d viewport.Decision) Snapshot {
	items := make([]Item, len(v.items))
	copy(items, v.items)
	return Snapshot{Items: items, UnreadCount: v.unread, Scroll: d}
}

func (v *ConversationView) cursor() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return LastConfirmedID(v.items)
}

// mergeLocked applies a server page and reports how many confirmed messages
// were new.
func (v *ConversationView) mergeLocked(page []chat.Message) int {
	before := len(v.items) - pendingCount(v.items)
	v.items = Merge(v.items, page, v.window)
	return len(v.items) - pendingCount(v.items) - before
}

func pendingCount(items []Item) int {
	n := 0
	for _, it := range items {
		if it.Pending() {
			n++
		}
	}
	return n
}

func (v *ConversationView) emit(s Snapshot) {
	if v.onChange != nil {
		v.onChange(s)
	}
}

func (v *ConversationView) fetchTick(ctx context.Context) (func(), error) {
	list, err := v.api.ListMessages(ctx, v.session, v.conversationID, v.cursor())
	if err != nil {
		return nil, err
	}
	return func() {
		v.mu.Lock()
		added := v.mergeLocked(list.Messages)
		changed := added > 0 || v.unread != list.UnreadCount
		v.unread = list.UnreadCount
		s := v.snapshotLocked(v.viewport.OnPollAppend(added))
		v.mu.Unlock()
		if changed {
			v.emit(s)
		}
	}, nil
}

// Refresh is a user-initiated fetch. Unlike a tick it surfaces errors and
// marks the conversation read.
func (v *ConversationView) Refresh(ctx context.Context) error {
	list, err := v.api.ListMessages(ctx, v.session, v.conversationID, v.cursor())
	if err != nil {
		return err
	}

	unread := list.UnreadCount
	if viewport.ShouldMarkRead(viewport.TriggerForeground) && unread > 0 {
		if unread, err = v.api.MarkRead(ctx, v.session, v.conversationID); err != nil {
			return err
		}
	}

	v.mu.Lock()
	v.mergeLocked(list.Messages)
	v.unread = unread
	s := v.snapshotLocked(v.viewport.JumpToNewest())
	v.mu.Unlock()
	v.emit(s)
	return nil
}

// Send shows body immediately as an optimistic message, then confirms or
// rolls it back.
func (v *ConversationView) Send(ctx context.Context, body string) (chat.Message, error) {
	clean, err := chat.ValidateBody(body)
	if err != nil {
		return chat.Message{}, &SendError{Body: body, Err: err}
	}

	tempID := "tmp-" + uuid.NewString()
	v.mu.Lock()
	v.items = append(v.items, Item{
		Message: chat.Message{Sender: v.own, Body: clean, CreatedAt: v.clock.Now()},
		TempID:  tempID,
	})
	s := v.snapshotLocked(v.viewport.OnLocalSend())
	v.mu.Unlock()
	v.emit(s)

	msg, err := v.api.SendMessage(ctx, v.session, v.conversationID, clean)

	v.mu.Lock()
	v.removeLocked(tempID)
	if err == nil {
		// held locally as confirmed so a later tick does not consume another pending twin
		v.items = Merge(append(v.items, Item{Message: msg}), nil, v.window)
	}
	s = v.snapshotLocked(viewport.Decision{})
	v.mu.Unlock()
	v.emit(s)

	if err != nil {
		v.log.Info("send_failed", zap.Error(err))
		return chat.Message{}, &SendError{Body: body, Err: err}
	}
	return msg, nil
}

func (v *ConversationView) removeLocked(tempID string) {
	out := v.items[:0]
	for _, it := range v.items {
		if it.TempID != tempID {
			out = append(out, it)
		}
	}
	v.items = out
}

// IsSessionLost reports whether err means the surface must sign in again.
func IsSessionLost(err error) bool {
	return errors.Is(err, client.ErrInvalidToken)
}

// RosterAPI is the part of client.Client the agent roster uses.
type RosterAPI interface {
	Roster(ctx context.Context, s client.Session, q roster.Query) ([]roster.Entry, error)
}

// RosterView keeps the agent's roster fresh on its own timer, independent of
// any open conversation.
type RosterView struct {
	api     RosterAPI
	session client.Session
	loop    *Loop

	mu       sync.Mutex
	query    roster.Query
	entries  []roster.Entry
	onChange func([]roster.Entry)
}

func NewRosterView(api RosterAPI, s client.Session, q roster.Query, opts ViewOptions, onChange func([]roster.Entry)) *RosterView {
	opts = opts.withDefaults()
	r := &RosterView{api: api, session: s, query: q, onChange: onChange}
	r.loop = NewLoop(r.fetchTick, WithInterval(opts.Interval), WithClock(opts.Clock), WithLogger(opts.Logger))
	return r
}

func (r *RosterView) Open()                   { r.loop.Open() }
func (r *RosterView) Close()                  { r.loop.Close() }
func (r *RosterView) SetVisible(visible bool) { r.loop.SetVisible(visible) }

// SetQuery changes the filter or search and fetches right away.
func (r *RosterView) SetQuery(q roster.Query) {
	r.mu.Lock()
	r.query = q
	r.mu.Unlock()
	r.loop.Kick()
}

func (r *RosterView) Entries() []roster.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]roster.Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Refresh is a foreground fetch; errors are returned to the caller.
func (r *RosterView) Refresh(ctx context.Context) error {
	apply, err := r.fetchTick(ctx)
	if err != nil {
		return err
	}
	apply()
	return nil
}

func (r *RosterView) fetchTick(ctx context.Context) (func(), error) {
	r.mu.Lock()
	q := r.query
	r.mu.Unlock()

	entries, err := r.api.Roster(ctx, r.session, q)
	if err != nil {
		return nil, err
	}
	return func() {
		r.mu.Lock()
		// the query changed while this fetch was in flight
		if r.query != q {
			r.mu.Unlock()
			return
		}
		r.entries = entries
		out := make([]roster.Entry, len(entries))
		copy(out, entries)
		r.mu.Unlock()
		if r.onChange != nil {
			r.onChange(out)
		}
	}, nil
}
