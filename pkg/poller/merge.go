package poller

import (
	"sort"
	"time"

	"livechat/pkg/chat"
)

// DefaultMatchWindow is how far apart an optimistic message and its server
// copy may be stamped and still be treated as the same message.
const DefaultMatchWindow = time.Minute

// Item is one rendered message. TempID is set only while the message is an
// unconfirmed optimistic send; Message.ID is zero for those.
type Item struct {
	chat.Message
	TempID string `json:"temp_id,omitempty"`
}

func (it Item) Pending() bool { return it.TempID != "" }

// Merge folds a server page into the local list. Server copies win for every
// server id. Optimistic items stay after the confirmed ones, in send order,
// until a server message not previously held locally matches their sender and
// body within window; each server message replaces at most one of them.
// Merge(Merge(l, s), s) equals Merge(l, s).
func Merge(local []Item, server []chat.Message, window time.Duration) []Item {
	byID := make(map[int64]chat.Message, len(local)+len(server))
	var pending []Item
	for _, it := range local {
		if it.Pending() {
			pending = append(pending, it)
			continue
		}
		byID[it.ID] = it.Message
	}

	var fresh []chat.Message
	for _, m := range server {
		if _, held := byID[m.ID]; !held {
			fresh = append(fresh, m)
		}
		byID[m.ID] = m
	}

	pending = dropMatched(pending, fresh, window)

	out := make([]Item, 0, len(byID)+len(pending))
	for _, m := range byID {
		out = append(out, Item{Message: m})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return append(out, pending...)
}

func dropMatched(pending []Item, fresh []chat.Message, window time.Duration) []Item {
	if len(pending) == 0 || len(fresh) == 0 {
		return pending
	}
	sort.Slice(fresh, func(i, j int) bool { return fresh[i].ID < fresh[j].ID })

	used := make([]bool, len(fresh))
	kept := pending[:0:0]
	for _, it := range pending {
		matched := false
		for i, m := range fresh {
			if used[i] || !sameMessage(it.Message, m, window) {
				continue
			}
			used[i] = true
			matched = true
			break
		}
		if !matched {
			kept = append(kept, it)
		}
	}
	return kept
}

func sameMessage(local, server chat.Message, window time.Duration) bool {
	if local.Sender != server.Sender || local.Body != server.Body {
		return false
	}
	d := server.CreatedAt.Sub(local.CreatedAt)
	if d < 0 {
		d = -d
	}
	return d <= window
}

// LastConfirmedID is the since cursor for the next fetch.
func LastConfirmedID(items []Item) int64 {
	var last int64
	for _, it := range items {
		if !it.Pending() && it.ID > last {
			last = it.ID
		}
	}
	return last
}
