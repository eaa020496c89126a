package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// messagesTotal counts send attempts by outcome:
	// created, replayed, invalid, forbidden, no_channel, failed.
	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Message sends by outcome.",
		},
		[]string{"outcome"},
	)

	// notificationsTotal counts fan-out creates by outcome:
	// created, duplicate, failed.
	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notification creates by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(messagesTotal, notificationsTotal)
}
