package notifications

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	channelSendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expirywatch_channel_send_total",
			Help: "Notification send attempts by channel and status.",
		},
		[]string{"channel", "status"},
	)
	dispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expirywatch_dispatch_total",
			Help: "Dispatcher outcomes (sent, unavailable, failed, denied).",
		},
		[]string{"outcome"},
	)
	tickTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expirywatch_scheduler_tick_total",
			Help: "Scheduler wake-ups by outcome.",
		},
		[]string{"outcome"},
	)
)
