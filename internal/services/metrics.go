package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	friendRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gymtribe_friend_requests_total",
		Help: "Friend request operations by action and outcome.",
	}, []string{"action", "outcome"})

	messagesSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gymtribe_messages_sent_total",
		Help: "Messages persisted.",
	})

	feedEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gymtribe_feed_events_total",
		Help: "Events delivered to live feeds.",
	}, []string{"feed", "kind"})

	feedReconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gymtribe_feed_reconnects_total",
		Help: "Store subscription failures that triggered a reconnect.",
	}, []string{"feed"})

	activeFeeds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gymtribe_active_feeds",
		Help: "Open live feeds.",
	}, []string{"feed"})

	alertsRaisedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gymtribe_alerts_raised_total",
		Help: "Transient alerts raised by kind.",
	}, []string{"kind"})

	suggestionRankDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gymtribe_suggestion_rank_duration_seconds",
		Help:    "Time to rank friend suggestions for a viewer.",
		Buckets: prometheus.DefBuckets,
	})
)

