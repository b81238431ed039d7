package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "livechat",
		Name:      "messages_appended_total",
		Help:      "Messages stored, by sender role.",
	}, []string{"sender"})

	MarkReadCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "livechat",
		Name:      "mark_read_total",
		Help:      "Mark-read operations, by reader role.",
	}, []string{"reader"})

	MarkUnreadCalls = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "livechat",
		Name:      "mark_unread_total",
		Help:      "Administrative unread overrides issued from the agent console.",
	})

	Registrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "livechat",
		Name:      "registrations_total",
		Help:      "Register calls, by outcome (new, existing).",
	}, []string{"outcome"})

	Authentications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "livechat",
		Name:      "authentications_total",
		Help:      "Credential checks, by role and result.",
	}, []string{"role", "result"})

	RosterFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "livechat",
		Name:      "roster_fetches_total",
		Help:      "Roster fetches, by filter.",
	}, []string{"filter"})

	SendRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "livechat",
		Name:      "send_rate_limited_total",
		Help:      "Message sends rejected by the per-identity rate limit.",
	})
)
