package roster

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"livechat/pkg/chat"
	"livechat/pkg/identity"
	"livechat/pkg/metrics"
)

const previewLength = 80

// SummarySource is the part of the message store the roster reads.
type SummarySource interface {
	Summaries(ctx context.Context) ([]chat.Summary, error)
}

// IdentityLister is the part of the identity repository the roster reads.
type IdentityLister interface {
	ListIdentities(ctx context.Context) ([]identity.Identity, error)
}

type RosterService interface {
	List(ctx context.Context, q Query) ([]Entry, error)
}

type rosterService struct {
	summaries  SummarySource
	identities IdentityLister
	log        *zap.Logger
}

func NewRosterService(summaries SummarySource, identities IdentityLister, log *zap.Logger) RosterService {
	if log == nil {
		log = zap.NewNop()
	}
	return &rosterService{summaries: summaries, identities: identities, log: log}
}

func (s *rosterService) List(ctx context.Context, q Query) ([]Entry, error) {
	if q.Filter == "" {
		q.Filter = FilterAll
	}

	sums, err := s.summaries.Summaries(ctx)
	if err != nil {
		return nil, err
	}
	people, err := s.identities.ListIdentities(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]identity.Identity, len(people))
	for _, p := range people {
		byID[p.ID] = p
	}

	entries := make([]Entry, 0, len(sums))
	for _, sum := range sums {
		in, ok := byID[sum.ConversationID]
		if !ok {
			s.log.Warn("roster_orphan_conversation", zap.String("conversation_id", sum.ConversationID))
		}
		entries = append(entries, Entry{
			IdentityID:         sum.ConversationID,
			DisplayName:        in.DisplayName,
			ContactAddress:     in.ContactAddress,
			LastMessagePreview: Preview(sum.LastMessage.Body),
			LastMessageAt:      sum.LastMessage.CreatedAt,
			LastSender:         sum.LastMessage.Sender,
			UnreadCount:        sum.UnreadCount,
			TotalCount:         sum.TotalCount,
			lastMessageID:      sum.LastMessage.ID,
		})
	}

	metrics.RosterFetches.WithLabelValues(string(q.Filter)).Inc()
	return Apply(entries, q), nil
}

// Apply filters and searches entries and sorts them newest activity first.
func Apply(entries []Entry, q Query) []Entry {
	term := strings.ToLower(strings.TrimSpace(q.Search))

	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if q.Filter == FilterUnread && e.UnreadCount <= 0 {
			continue
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(e.DisplayName), term) &&
			!strings.Contains(strings.ToLower(e.ContactAddress), term) {
			continue
		}
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].LastMessageAt.After(out[j].LastMessageAt)
		}
		return out[i].lastMessageID > out[j].lastMessageID
	})
	return out
}

// Preview shortens body to a single line of at most previewLength runes.
func Preview(body string) string {
	body = strings.Join(strings.Fields(body), " ")
	if utf8.RuneCountInString(body) <= previewLength {
		return body
	}
	runes := []rune(body)
	return string(runes[:previewLength-1]) + "…"
}
