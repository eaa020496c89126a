package realtime

import "github.com/prometheus/client_golang/prometheus"

var (
	connectionsOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connections_open",
		Help: "Websocket connections currently open on this process.",
	})
	handshakeRejects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ws_handshake_rejected_total",
		Help: "Websocket handshakes rejected before upgrade.",
	})
	framesIn = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_frames_in_total",
		Help: "Inbound websocket frames by event.",
	}, []string{"event"})
	errorsOut = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_errors_sent_total",
		Help: "Error events sent to clients by code.",
	}, []string{"code"})
)

func init() {
	prometheus.MustRegister(connectionsOpen, handshakeRejects, framesIn, errorsOut)
}

// eventLabel keeps metric cardinality bounded to the known event set.
func eventLabel(event string) string {
	switch event {
	case EventMessageSend, EventPresenceHeartbeat, EventTypingStart, EventTypingStop, EventGroupsSync:
		return event
	default:
		return "unknown"
	}
}
